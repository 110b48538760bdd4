package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
)

// Triggers maps production and credit events to inbox notifications.
type Triggers struct {
	sender Sender
}

// NewTriggers creates a new notification trigger service.
func NewTriggers(sender Sender) *Triggers {
	return &Triggers{sender: sender}
}

// OnProductionFinished notifies the owner of an asynchronous run.
func (t *Triggers) OnProductionFinished(ctx context.Context, userID, runID string, result domain.ProductionResult) {
	params := Params{
		RecipientID:  userID,
		Type:         TypeProductionComplete,
		Title:        "Your episode is ready",
		Message:      fmt.Sprintf("Production %s finished using %d credits", runID, result.CreditsUsed),
		ResourceType: "production_run",
		ResourceID:   runID,
	}
	if !result.Success {
		params.Type = TypeProductionFailed
		params.Title = "Your episode could not be produced"
		params.Message = fmt.Sprintf("Production %s failed: %s", runID, result.Error)
	}

	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send production notification",
			zap.String("run_id", runID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// OnCreditsGranted notifies a user of a bonus or refund.
func (t *Triggers) OnCreditsGranted(ctx context.Context, userID string, amount int64, grantType domain.TransactionType, reason string) {
	msg := fmt.Sprintf("%d credits were added to your account (%s)", amount, grantType)
	if reason != "" {
		msg += ": " + reason
	}
	params := Params{
		RecipientID:  userID,
		Type:         TypeCreditsGranted,
		Title:        "Credits added",
		Message:      msg,
		ResourceType: "user_credits",
		ResourceID:   userID,
	}
	if err := t.sender.Send(ctx, params); err != nil {
		logger.Error("failed to send credit notification",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
