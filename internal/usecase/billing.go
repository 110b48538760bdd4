// Package usecase provides the application use cases behind the HTTP
// handlers, the River workers and the CLI.
package usecase

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/domain"
	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/provider"
)

// Billing charges users for generation that already happened.
type Billing struct {
	credits    *credits.Service
	reconciler *credits.Reconciler
}

func NewBilling(svc *credits.Service, rec *credits.Reconciler) *Billing {
	return &Billing{credits: svc, reconciler: rec}
}

// Charge is the outcome of settling one generation.
type Charge struct {
	// Remaining is nil when the balance is unknown.
	Remaining *int64
	// Pending is set when the deduction was handed to reconciliation.
	Pending bool
}

// Settle deducts amount for delivered output. A DB_UNAVAILABLE ledger
// defers the deduction and still succeeds; a balance spent elsewhere in
// the meantime returns a 402 reporting zero remaining.
func (b *Billing) Settle(ctx context.Context, userID string, amount int64, reason, referenceID string) (Charge, error) {
	if amount <= 0 {
		if bal, err := b.credits.Balance(ctx, userID); err == nil {
			return Charge{Remaining: &bal}, nil
		}
		return Charge{}, nil
	}

	remaining, err := b.credits.Deduct(ctx, credits.DeductRequest{
		UserID:      userID,
		Amount:      amount,
		Reason:      reason,
		ReferenceID: referenceID,
	})
	if err == nil {
		return Charge{Remaining: &remaining}, nil
	}

	var ce *credits.CreditError
	errors.As(err, &ce)
	switch credits.CodeOf(err) {
	case credits.CodeDBUnavailable:
		b.reconciler.Defer(ctx, credits.Deferred{
			UserID:      userID,
			Amount:      amount,
			Reason:      reason,
			ReferenceID: referenceID,
		})
		return Charge{Pending: true}, nil
	case credits.CodeDuplicate:
		return Charge{Remaining: ce.Remaining}, nil
	case credits.CodeInsufficientCredits:
		return Charge{}, apperrors.ErrInsufficientCreditsf(amount, 0)
	default:
		return Charge{}, apperrors.Wrap(err, apperrors.CodeInternal, "credit deduction failed", http.StatusInternalServerError)
	}
}

// Preflight rejects a request the user cannot afford before any provider
// call. An unreachable ledger lets the request through; the charge is
// then reconciled after generation.
func (b *Billing) Preflight(ctx context.Context, userID string, required int64) error {
	bal, err := b.credits.Balance(ctx, userID)
	if err != nil {
		if credits.IsCode(err, credits.CodeDBUnavailable) {
			logger.Warn("credit preflight skipped: ledger unavailable",
				zap.String("user_id", userID),
				zap.Int64("required", required),
			)
			return nil
		}
		return creditError(err)
	}
	if bal < required {
		return apperrors.ErrInsufficientCreditsf(required, bal)
	}
	return nil
}

// creditError converts a ledger failure for the HTTP boundary.
func creditError(err error) error {
	var ce *credits.CreditError
	if !errors.As(err, &ce) {
		return apperrors.Wrap(err, apperrors.CodeInternal, "credit ledger error", http.StatusInternalServerError)
	}
	switch ce.Code {
	case credits.CodeInsufficientCredits:
		var remaining int64
		if ce.Remaining != nil {
			remaining = *ce.Remaining
		}
		return apperrors.ErrInsufficientCreditsf(0, remaining)
	case credits.CodeDBUnavailable:
		return apperrors.Wrap(err, apperrors.CodeDBUnavailable, "credit service temporarily unavailable", http.StatusServiceUnavailable)
	case credits.CodeInvalidAmount:
		return apperrors.Wrap(err, apperrors.CodeInvalidAmount, ce.Message, http.StatusBadRequest)
	case credits.CodeDuplicate:
		return apperrors.Wrap(err, apperrors.CodeDuplicateTransaction, ce.Message, http.StatusConflict)
	case credits.CodeAccountNotFound:
		return apperrors.Wrap(err, apperrors.CodeAccountNotFound, ce.Message, http.StatusNotFound)
	default:
		return apperrors.Wrap(err, apperrors.CodeInternal, "credit ledger error", http.StatusInternalServerError)
	}
}

// generationError converts a failed outcome for the HTTP boundary.
func generationError(err error) error {
	msg := provider.PublicMessage(err)
	switch {
	case errors.Is(err, provider.ErrValidation):
		var ve *provider.ValidationError
		if errors.As(err, &ve) {
			return apperrors.ErrValidationf(ve.Field, ve.Message)
		}
		return apperrors.ErrValidationf("", msg)
	case errors.Is(err, provider.ErrNotConfigured):
		return apperrors.Wrap(err, apperrors.CodeProviderUnavailable, "generation provider is not configured", http.StatusServiceUnavailable)
	case errors.Is(err, provider.ErrTimeout):
		return apperrors.Wrap(err, apperrors.CodeGenerationTimeout, msg, http.StatusGatewayTimeout)
	case errors.Is(err, provider.ErrTransient):
		return apperrors.Wrap(err, apperrors.CodeProviderUnavailable, msg, http.StatusServiceUnavailable)
	default:
		return apperrors.Wrap(err, apperrors.CodeGenerationFailed, msg, http.StatusBadGateway)
	}
}

// outcomeError returns the boundary error for a failed outcome, or nil.
func outcomeError(out domain.Outcome[domain.Asset]) error {
	if out.Status != domain.OutcomeFailed {
		return nil
	}
	return generationError(out.Err)
}
