package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/governance/audit"
	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/production"
	"halcyon.studio/cinema/internal/provider"
	"halcyon.studio/cinema/internal/ratelimit"
)

// DefaultRunTimeout bounds one production when none is configured.
const DefaultRunTimeout = 15 * time.Minute

// MaxTargetDuration caps the requested episode length in seconds.
const MaxTargetDuration = 300

// RateRule is a fixed-window limit.
type RateRule struct {
	Max    int
	Window time.Duration
}

// ProduceInput is one produce-episode call.
type ProduceInput struct {
	Request      domain.ProductionRequest
	EstimateOnly bool
	Async        bool
}

// ProduceOutput is the produce-episode response body.
type ProduceOutput struct {
	domain.ProductionResult
	CreditsRemaining *int64                   `json:"creditsRemaining,omitempty"`
	CreditsPending   bool                     `json:"creditsPending,omitempty"`
	Estimate         *production.CostEstimate `json:"estimate,omitempty"`
	RunID            string                   `json:"runId,omitempty"`
}

// RunLauncher starts an asynchronous production run.
type RunLauncher interface {
	Launch(ctx context.Context, run *domain.ProductionRun) error
}

// ProduceEpisodeUseCase validates, prices, rate-limits and runs a
// production, then bills the user for what was generated.
type ProduceEpisodeUseCase struct {
	mixer      *production.Mixer
	billing    *Billing
	limiter    *ratelimit.Limiter
	rule       RateRule
	pricing    provider.Pricing
	launcher   RunLauncher
	events     *domain.EventDispatcher
	audit      *audit.Logger
	runTimeout time.Duration
}

// NewProduceEpisodeUseCase creates the use case. Async runs need
// WithLauncher.
func NewProduceEpisodeUseCase(mixer *production.Mixer, billing *Billing, limiter *ratelimit.Limiter, rule RateRule, pricing provider.Pricing) *ProduceEpisodeUseCase {
	return &ProduceEpisodeUseCase{
		mixer:      mixer,
		billing:    billing,
		limiter:    limiter,
		rule:       rule,
		pricing:    pricing,
		runTimeout: DefaultRunTimeout,
	}
}

// WithLauncher enables async productions.
func (uc *ProduceEpisodeUseCase) WithLauncher(l RunLauncher) *ProduceEpisodeUseCase {
	uc.launcher = l
	return uc
}

// WithEvents sets the domain event dispatcher (optional dependency).
func (uc *ProduceEpisodeUseCase) WithEvents(d *domain.EventDispatcher) *ProduceEpisodeUseCase {
	uc.events = d
	return uc
}

// WithAuditLogger sets the audit logger (optional dependency).
func (uc *ProduceEpisodeUseCase) WithAuditLogger(al *audit.Logger) *ProduceEpisodeUseCase {
	uc.audit = al
	return uc
}

// WithRunTimeout overrides DefaultRunTimeout.
func (uc *ProduceEpisodeUseCase) WithRunTimeout(d time.Duration) *ProduceEpisodeUseCase {
	if d > 0 {
		uc.runTimeout = d
	}
	return uc
}

// Execute runs the produce-episode use case.
func (uc *ProduceEpisodeUseCase) Execute(ctx context.Context, in ProduceInput) (*ProduceOutput, error) {
	req := in.Request
	if err := validateProductionRequest(req); err != nil {
		return nil, err
	}
	plan, err := uc.mixer.Plan(req)
	if err != nil {
		return nil, planError(err)
	}
	est := plan.Estimate(uc.pricing)
	if in.EstimateOnly {
		return &ProduceOutput{ProductionResult: domain.ProductionResult{Success: true}, Estimate: &est}, nil
	}

	if d := uc.limiter.Check(ctx, ratelimit.Key("user", req.UserID, "produce"), uc.rule.Max, uc.rule.Window); !d.Allowed {
		return nil, apperrors.ErrRateLimitedf(d.RetryAfter)
	}
	if err := uc.billing.Preflight(ctx, req.UserID, est.Total); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if in.Async {
		return uc.launch(ctx, runID, req, est)
	}

	uc.events.Emit(ctx, domain.EventProductionRequested, "production", runID, req.UserID, domain.ProductionPayload{
		RunID:     runID,
		ProjectID: req.ProjectID,
	})
	// A run is not cancelled by the client going away, only by its timeout.
	detached := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithTimeout(detached, uc.runTimeout)
	defer cancel()
	result := uc.mixer.Produce(runCtx, req, nil)

	charge, err := uc.billing.Settle(detached, req.UserID, result.CreditsUsed, productionReason(req), runID)
	if err != nil {
		return nil, err
	}
	recordProduction(detached, uc.events, uc.audit, runID, req, result)
	return &ProduceOutput{
		ProductionResult: result,
		CreditsRemaining: charge.Remaining,
		CreditsPending:   charge.Pending,
	}, nil
}

func (uc *ProduceEpisodeUseCase) launch(ctx context.Context, runID string, req domain.ProductionRequest, est production.CostEstimate) (*ProduceOutput, error) {
	if uc.launcher == nil {
		return nil, apperrors.ServiceUnavailable(apperrors.CodeAsyncUnavailable, "asynchronous production is not available")
	}
	run := &domain.ProductionRun{
		ID:        runID,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Status:    domain.RunQueued,
		Progress:  domain.Progress{Stage: domain.StageInitializing, CurrentTask: "Queued"},
		Request:   req,
	}
	if err := uc.launcher.Launch(ctx, run); err != nil {
		logger.Error("production launch failed", zap.String("run_id", runID), zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.CodeAsyncUnavailable, "could not start production, please try again", http.StatusServiceUnavailable)
	}
	uc.events.Emit(ctx, domain.EventProductionRequested, "production", runID, req.UserID, domain.ProductionPayload{
		RunID:     runID,
		ProjectID: req.ProjectID,
	})
	logger.Info("production queued",
		zap.String("run_id", runID),
		zap.String("user_id", req.UserID),
		zap.Int64("estimate", est.Total),
	)
	return &ProduceOutput{
		ProductionResult: domain.ProductionResult{Success: true, Progress: run.Progress},
		Estimate:         &est,
		RunID:            runID,
	}, nil
}

func productionReason(req domain.ProductionRequest) string {
	return "episode production " + req.ProjectID
}

// recordProduction emits the completion event and the audit entry.
func recordProduction(ctx context.Context, events *domain.EventDispatcher, al *audit.Logger, runID string, req domain.ProductionRequest, result domain.ProductionResult) {
	eventType := domain.EventProductionCompleted
	if !result.Success {
		eventType = domain.EventProductionFailed
	}
	events.Emit(ctx, eventType, "production", runID, req.UserID, domain.ProductionPayload{
		RunID:       runID,
		ProjectID:   req.ProjectID,
		Success:     result.Success,
		CreditsUsed: result.CreditsUsed,
		Error:       result.Error,
	})
	if al != nil {
		if err := al.LogProduction(ctx, runID, req.UserID, result.Success, result.CreditsUsed); err != nil {
			logger.Warn("production audit failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
}

func validateProductionRequest(req domain.ProductionRequest) error {
	switch {
	case req.UserID == "":
		return apperrors.Unauthorized(apperrors.CodeAuthFailed, "authentication required")
	case !provider.ValidID(req.ProjectID):
		return apperrors.ErrValidationf("projectId", "projectId must be 1-64 letters, digits, '-' or '_'")
	case strings.TrimSpace(req.Prompt) == "" && len(req.Scenes) == 0:
		return apperrors.ErrValidationf("prompt", "prompt or scenes are required")
	case len([]rune(req.Prompt)) > provider.MaxPromptRunes:
		return apperrors.ErrValidationf("prompt", "prompt is too long")
	case req.TargetDuration < 0 || req.TargetDuration > MaxTargetDuration:
		return apperrors.ErrValidationf("targetDuration", "targetDuration must be between 0 and 300 seconds")
	}
	if err := production.ValidateSettings(req.Settings); err != nil {
		return generationError(err)
	}
	for _, s := range req.Scenes {
		if s.ID != "" && !provider.ValidID(s.ID) {
			return apperrors.ErrValidationf("scenes", "scene id "+s.ID+" is invalid")
		}
		if len([]rune(s.Prompt)) > provider.MaxPromptRunes {
			return apperrors.ErrValidationf("scenes", "scene prompt is too long")
		}
	}
	return nil
}

func planError(err error) error {
	if errors.Is(err, production.ErrUnknownProfile) {
		return apperrors.NotFound(apperrors.CodeProfileNotFound, err.Error())
	}
	return generationError(err)
}
