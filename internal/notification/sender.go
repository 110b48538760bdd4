// Package notification writes in-app notifications for production and
// credit events.
//
// Notifications are synchronous inbox writes. Delivery failures are
// logged and never fail the business operation that triggered them.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// Type constants stored in notifications.type.
const (
	TypeProductionComplete = "PRODUCTION_COMPLETE"
	TypeProductionFailed   = "PRODUCTION_FAILED"
	TypeCreditsGranted     = "CREDITS_GRANTED"
)

var knownTypes = map[string]struct{}{
	TypeProductionComplete: {},
	TypeProductionFailed:   {},
	TypeCreditsGranted:     {},
}

// Params holds the required fields for creating a notification.
type Params struct {
	RecipientID  string // User ID of the recipient
	Type         string // One of Type* constants above
	Title        string
	Message      string
	ResourceType string // e.g. "production_run"
	ResourceID   string
}

// Sender defines the interface for sending notifications.
type Sender interface {
	Send(ctx context.Context, params Params) error
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InboxSender writes notifications to the notifications table.
type InboxSender struct {
	db Execer
}

// NewInboxSender creates a new inbox sender.
func NewInboxSender(db Execer) *InboxSender {
	return &InboxSender{db: db}
}

const sqlInsertNotification = `
INSERT INTO notifications (id, user_id, type, title, message, resource_type, resource_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Send stores a single notification.
func (s *InboxSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}

	_, err := s.db.Exec(ctx, sqlInsertNotification,
		uuid.NewString(), params.RecipientID, params.Type, params.Title,
		params.Message, params.ResourceType, params.ResourceID,
	)
	if err != nil {
		return fmt.Errorf("create notification for user %s: %w", params.RecipientID, err)
	}

	logger.Debug("notification sent",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
	)
	return nil
}

// LogSender only logs notifications; used when no database is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}
	logger.Info("notification",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
	)
	return nil
}

var (
	_ Sender = (*InboxSender)(nil)
	_ Sender = LogSender{}
)

func validateParams(p Params) error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if _, ok := knownTypes[p.Type]; !ok {
		return fmt.Errorf("unknown notification type: %s", p.Type)
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
