package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/domain"
)

type recordingExecer struct {
	args [][]any
	err  error
}

func (r *recordingExecer) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	r.args = append(r.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

type captureSender struct {
	sent []Params
	err  error
}

func (c *captureSender) Send(_ context.Context, p Params) error {
	c.sent = append(c.sent, p)
	return c.err
}

func TestInboxSender_Send(t *testing.T) {
	db := &recordingExecer{}
	s := NewInboxSender(db)

	err := s.Send(context.Background(), Params{
		RecipientID: "u1", Type: TypeProductionComplete, Title: "t", Message: "m",
		ResourceType: "production_run", ResourceID: "run-1",
	})
	require.NoError(t, err)
	require.Len(t, db.args, 1)
	assert.Equal(t, "u1", db.args[0][1])
	assert.Equal(t, TypeProductionComplete, db.args[0][2])
	assert.Equal(t, "run-1", db.args[0][6])
}

func TestInboxSender_Validation(t *testing.T) {
	db := &recordingExecer{}
	s := NewInboxSender(db)

	tests := []struct {
		name string
		p    Params
	}{
		{"missing recipient", Params{Type: TypeCreditsGranted, Title: "t", Message: "m"}},
		{"unknown type", Params{RecipientID: "u", Type: "VM_STATUS_CHANGE", Title: "t", Message: "m"}},
		{"missing title", Params{RecipientID: "u", Type: TypeCreditsGranted, Message: "m"}},
		{"missing message", Params{RecipientID: "u", Type: TypeCreditsGranted, Title: "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Send(context.Background(), tt.p))
		})
	}
	assert.Empty(t, db.args)
}

func TestInboxSender_DatabaseError(t *testing.T) {
	s := NewInboxSender(&recordingExecer{err: errors.New("boom")})
	err := s.Send(context.Background(), Params{RecipientID: "u", Type: TypeCreditsGranted, Title: "t", Message: "m"})
	assert.ErrorContains(t, err, "create notification for user u")
}

func TestTriggers_OnProductionFinished(t *testing.T) {
	sender := &captureSender{}
	tr := NewTriggers(sender)

	tr.OnProductionFinished(context.Background(), "u1", "run-1", domain.ProductionResult{Success: true, CreditsUsed: 16})
	tr.OnProductionFinished(context.Background(), "u1", "run-2", domain.ProductionResult{Error: "video generation failed"})

	require.Len(t, sender.sent, 2)
	assert.Equal(t, TypeProductionComplete, sender.sent[0].Type)
	assert.Contains(t, sender.sent[0].Message, "16 credits")
	assert.Equal(t, TypeProductionFailed, sender.sent[1].Type)
	assert.Contains(t, sender.sent[1].Message, "video generation failed")
	assert.Equal(t, "run-2", sender.sent[1].ResourceID)
}

func TestTriggers_SendFailureIsSwallowed(t *testing.T) {
	sender := &captureSender{err: errors.New("down")}
	tr := NewTriggers(sender)

	assert.NotPanics(t, func() {
		tr.OnCreditsGranted(context.Background(), "u1", 20, domain.TxRefund, "failed render")
	})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "20 credits were added to your account (refund): failed render", sender.sent[0].Message)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Params{RecipientID: "u", Type: TypeCreditsGranted, Title: "t", Message: "m"}))
	assert.Error(t, LogSender{}.Send(context.Background(), Params{}))
}
