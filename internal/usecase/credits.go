package usecase

import (
	"context"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/governance/audit"
	"halcyon.studio/cinema/internal/notification"
	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/pkg/logger"
)

// CreditSummary is the GET /credits response body.
type CreditSummary struct {
	CreditsRemaining int64                      `json:"creditsRemaining"`
	Transactions     []domain.CreditTransaction `json:"transactions"`
}

// GrantInput is an administrative bonus or refund.
type GrantInput struct {
	UserID      string                 `json:"userId"`
	Amount      int64                  `json:"amount"`
	Type        domain.TransactionType `json:"type"`
	Reason      string                 `json:"reason"`
	ReferenceID string                 `json:"referenceId,omitempty"`
}

// CreditsUseCase serves balance lookups and admin grants.
type CreditsUseCase struct {
	credits  *credits.Service
	audit    *audit.Logger
	notifier *notification.Triggers
}

func NewCreditsUseCase(svc *credits.Service, al *audit.Logger, notifier *notification.Triggers) *CreditsUseCase {
	return &CreditsUseCase{credits: svc, audit: al, notifier: notifier}
}

// Summary returns the balance and recent transactions, opening the
// account on first use.
func (uc *CreditsUseCase) Summary(ctx context.Context, userID string, limit int) (*CreditSummary, error) {
	bal, err := uc.credits.Balance(ctx, userID)
	if err != nil {
		return nil, creditError(err)
	}
	txs, err := uc.credits.History(ctx, userID, limit)
	if err != nil {
		return nil, creditError(err)
	}
	if txs == nil {
		txs = []domain.CreditTransaction{}
	}
	return &CreditSummary{CreditsRemaining: bal, Transactions: txs}, nil
}

// Grant credits a user on behalf of actor and records it in the audit log.
func (uc *CreditsUseCase) Grant(ctx context.Context, actor string, in GrantInput) (int64, error) {
	if in.UserID == "" {
		return 0, apperrors.ErrValidationf("userId", "userId is required")
	}
	if in.Reason == "" {
		return 0, apperrors.ErrValidationf("reason", "reason is required")
	}
	remaining, err := uc.credits.Grant(ctx, actor, credits.AddRequest{
		UserID:      in.UserID,
		Amount:      in.Amount,
		Reason:      in.Reason,
		ReferenceID: in.ReferenceID,
		Type:        in.Type,
	})
	if err != nil {
		return 0, creditError(err)
	}
	if uc.audit != nil {
		if err := uc.audit.LogCreditGrant(ctx, actor, in.UserID, string(in.Type), in.Amount, in.Reason); err != nil {
			logger.Warn("credit grant audit failed", zap.String("user_id", in.UserID), zap.Error(err))
		}
	}
	if uc.notifier != nil {
		uc.notifier.OnCreditsGranted(ctx, in.UserID, in.Amount, in.Type, in.Reason)
	}
	return remaining, nil
}
