package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  []string
	args [][]any
	err  error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	r.args = append(r.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func TestLogCreditGrant(t *testing.T) {
	db := &recordingExecer{}
	l := NewLogger(db)

	require.NoError(t, l.LogCreditGrant(context.Background(), "admin-1", "user-9", "bonus", 25, "launch promo"))
	require.Len(t, db.args, 1)

	args := db.args[0]
	assert.True(t, strings.HasPrefix(args[0].(string), "audit-"))
	assert.Equal(t, "credits.bonus", args[1])
	assert.Equal(t, "user_credits", args[2])
	assert.Equal(t, "user-9", args[3])
	assert.Equal(t, "admin-1", args[4])

	var details map[string]any
	require.NoError(t, json.Unmarshal(args[5].([]byte), &details))
	assert.Equal(t, float64(25), details["amount"])
	assert.Equal(t, "launch promo", details["reason"])
}

func TestLogProduction(t *testing.T) {
	db := &recordingExecer{}
	l := NewLogger(db)

	require.NoError(t, l.LogProduction(context.Background(), "run-1", "u1", false, 0))
	assert.Equal(t, "production.failed", db.args[0][1])
	assert.Equal(t, "production_run", db.args[0][2])
}

func TestLogAction_DatabaseError(t *testing.T) {
	l := NewLogger(&recordingExecer{err: errors.New("connection refused")})
	err := l.LogAction(context.Background(), "x", "y", "z", "actor", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write audit log")
}

func TestLogAction_NoDatabase(t *testing.T) {
	var nilLogger *Logger
	assert.NoError(t, nilLogger.LogAction(context.Background(), "x", "y", "z", "actor", nil))
	assert.NoError(t, NewLogger(nil).LogCreditGrant(context.Background(), "a", "u", "refund", 5, "oops"))
}
