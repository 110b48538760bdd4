// Package audit records append-only audit entries for privileged actions.
//
// Audit rows are never updated or deleted by the application.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Logger writes audit records to the database. Without a database the
// records only go to the structured log.
type Logger struct {
	db Execer
}

// NewLogger creates a new audit Logger. db may be nil.
func NewLogger(db Execer) *Logger {
	return &Logger{db: db}
}

const sqlInsertAudit = `
INSERT INTO audit_logs (id, action, resource_type, resource_id, actor, details)
VALUES ($1, $2, $3, $4, $5, $6)`

// LogAction records an auditable action.
func (l *Logger) LogAction(ctx context.Context, action, resourceType, resourceID, actor string, details map[string]any) error {
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("resource_type", resourceType),
		zap.String("resource_id", resourceID),
		zap.String("actor", actor),
	}
	if l == nil || l.db == nil {
		logger.Info("audit", append(fields, zap.Any("details", details))...)
		return nil
	}

	var encoded []byte
	if details != nil {
		var err error
		if encoded, err = json.Marshal(details); err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}
	if _, err := l.db.Exec(ctx, sqlInsertAudit, generateAuditID(), action, resourceType, resourceID, actor, encoded); err != nil {
		logger.Error("Failed to write audit log", append(fields, zap.Error(err))...)
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// LogCreditGrant records an administrative bonus or refund.
func (l *Logger) LogCreditGrant(ctx context.Context, actor, userID, grantType string, amount int64, reason string) error {
	return l.LogAction(ctx, "credits."+grantType, "user_credits", userID, actor, map[string]any{
		"amount": amount,
		"reason": reason,
	})
}

// LogProduction records the outcome of a production run.
func (l *Logger) LogProduction(ctx context.Context, runID, userID string, success bool, creditsUsed int64) error {
	action := "production.complete"
	if !success {
		action = "production.failed"
	}
	return l.LogAction(ctx, action, "production_run", runID, userID, map[string]any{
		"credits_used": creditsUsed,
	})
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
