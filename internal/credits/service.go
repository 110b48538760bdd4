package credits

import (
	"context"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
)

// Service adds account provisioning, validation and domain events on top
// of a Ledger.
type Service struct {
	ledger          Ledger
	events          *domain.EventDispatcher
	startingBalance int64
}

// NewService creates a Service. events may be nil.
func NewService(ledger Ledger, events *domain.EventDispatcher, startingBalance int64) *Service {
	return &Service{ledger: ledger, events: events, startingBalance: startingBalance}
}

// Balance returns the user's balance, opening the account on first use.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.EnsureAccount(ctx, userID, s.startingBalance)
}

// Deduct debits the user for generation work.
func (s *Service) Deduct(ctx context.Context, req DeductRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, invalidAmount("deduction amount must be positive")
	}
	typ, err := req.EntryType()
	if err != nil {
		return 0, err
	}
	remaining, err := s.ledger.Deduct(ctx, req)
	if err != nil {
		logger.Warn("credit deduction failed",
			zap.String("user_id", req.UserID),
			zap.Int64("amount", req.Amount),
			zap.String("reference_id", req.ReferenceID),
			zap.String("code", string(CodeOf(err))),
			zap.Error(err),
		)
		return 0, err
	}
	s.events.Emit(ctx, domain.EventCreditsDeducted, "user", req.UserID, req.UserID, domain.CreditsPayload{
		Amount:      req.Amount,
		Type:        typ,
		Reason:      req.Reason,
		ReferenceID: req.ReferenceID,
		Remaining:   &remaining,
	})
	return remaining, nil
}

// Grant credits a user with a bonus or refund on behalf of actor.
func (s *Service) Grant(ctx context.Context, actor string, req AddRequest) (int64, error) {
	if req.Type != domain.TxBonus && req.Type != domain.TxRefund {
		return 0, invalidAmount("grant type must be bonus or refund")
	}
	if req.Amount <= 0 {
		return 0, invalidAmount("grant amount must be positive")
	}
	if _, err := s.Balance(ctx, req.UserID); err != nil {
		return 0, err
	}
	remaining, err := s.ledger.Add(ctx, req)
	if err != nil {
		return 0, err
	}
	logger.Info("credits granted",
		zap.String("user_id", req.UserID),
		zap.String("actor", actor),
		zap.Int64("amount", req.Amount),
		zap.String("type", string(req.Type)),
	)
	s.events.Emit(ctx, domain.EventCreditsGranted, "user", req.UserID, actor, domain.CreditsPayload{
		Amount:      req.Amount,
		Type:        req.Type,
		Reason:      req.Reason,
		ReferenceID: req.ReferenceID,
		Remaining:   &remaining,
	})
	return remaining, nil
}

// History returns the user's newest transactions first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.Transactions(ctx, userID, limit)
}

// EmitDeferred records that a deduction is owed but could not be written.
func (s *Service) EmitDeferred(ctx context.Context, d Deferred) {
	s.events.Emit(ctx, domain.EventCreditsDeferred, "user", d.UserID, d.UserID, domain.CreditsPayload{
		Amount:      d.Amount,
		Type:        domain.TxGeneration,
		Reason:      d.Reason,
		ReferenceID: d.ReferenceID,
	})
}
