package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/provider"
)

// ImageGenerator is satisfied by *provider.ImageAdapter.
type ImageGenerator interface {
	Generate(ctx context.Context, req provider.ImageRequest) domain.Outcome[domain.Asset]
}

// MusicGenerator is satisfied by *provider.MusicAdapter.
type MusicGenerator interface {
	Generate(ctx context.Context, req provider.MusicRequest) domain.Outcome[domain.Asset]
}

// VoiceoverGenerator is satisfied by *provider.VoiceoverAdapter.
type VoiceoverGenerator interface {
	Generate(ctx context.Context, req provider.VoiceoverRequest) domain.Outcome[domain.Asset]
}

// PredictionResumer is satisfied by *provider.Resumer.
type PredictionResumer interface {
	Resume(ctx context.Context, req provider.ResumeRequest) domain.Outcome[domain.Asset]
}

// MediaOutput is the response body of a single generation.
type MediaOutput struct {
	Success          bool                 `json:"success"`
	Status           domain.OutcomeStatus `json:"status"`
	Asset            *domain.Asset        `json:"asset,omitempty"`
	PredictionID     string               `json:"predictionId,omitempty"`
	CreditsUsed      int64                `json:"creditsUsed"`
	CreditsRemaining *int64               `json:"creditsRemaining,omitempty"`
	CreditsPending   bool                 `json:"creditsPending,omitempty"`
	// Warning explains a degraded asset URL.
	Warning string `json:"warning,omitempty"`
}

// GenerateMediaUseCase runs one adapter call and bills it.
type GenerateMediaUseCase struct {
	image     ImageGenerator
	music     MusicGenerator
	voiceover VoiceoverGenerator
	resumer   PredictionResumer
	billing   *Billing
	pricing   provider.Pricing
}

func NewGenerateMediaUseCase(
	image ImageGenerator,
	music MusicGenerator,
	voiceover VoiceoverGenerator,
	resumer PredictionResumer,
	billing *Billing,
	pricing provider.Pricing,
) *GenerateMediaUseCase {
	return &GenerateMediaUseCase{
		image:     image,
		music:     music,
		voiceover: voiceover,
		resumer:   resumer,
		billing:   billing,
		pricing:   pricing,
	}
}

// Image generates one image.
func (uc *GenerateMediaUseCase) Image(ctx context.Context, userID string, req provider.ImageRequest) (*MediaOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, generationError(err)
	}
	return uc.run(ctx, userID, domain.MediaImage, uc.pricing.ImageCost, func(ctx context.Context) domain.Outcome[domain.Asset] {
		return uc.image.Generate(ctx, req)
	})
}

// Music generates one music clip. A prediction outliving the poll budget
// is returned as pending and billed when resumed.
func (uc *GenerateMediaUseCase) Music(ctx context.Context, userID string, req provider.MusicRequest) (*MediaOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, generationError(err)
	}
	return uc.run(ctx, userID, domain.MediaMusic, uc.pricing.MusicClipCost, func(ctx context.Context) domain.Outcome[domain.Asset] {
		return uc.music.Generate(ctx, req)
	})
}

// Voiceover synthesizes speech; the price follows the text length.
func (uc *GenerateMediaUseCase) Voiceover(ctx context.Context, userID string, req provider.VoiceoverRequest) (*MediaOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, generationError(err)
	}
	return uc.run(ctx, userID, domain.MediaVoiceover, uc.pricing.VoiceoverCost(req.Text), func(ctx context.Context) domain.Outcome[domain.Asset] {
		return uc.voiceover.Generate(ctx, req)
	})
}

// Resume re-polls a pending prediction once and bills it on success.
// Billing is keyed by prediction, so resuming twice charges once.
func (uc *GenerateMediaUseCase) Resume(ctx context.Context, userID string, req provider.ResumeRequest) (*MediaOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, generationError(err)
	}
	out := uc.resumer.Resume(ctx, req)
	return uc.settle(ctx, userID, req.Kind, out)
}

func (uc *GenerateMediaUseCase) run(
	ctx context.Context,
	userID string,
	kind domain.MediaKind,
	cost int64,
	generate func(context.Context) domain.Outcome[domain.Asset],
) (*MediaOutput, error) {
	if err := uc.billing.Preflight(ctx, userID, cost); err != nil {
		return nil, err
	}
	return uc.settle(ctx, userID, kind, generate(ctx))
}

func (uc *GenerateMediaUseCase) settle(ctx context.Context, userID string, kind domain.MediaKind, out domain.Outcome[domain.Asset]) (*MediaOutput, error) {
	if err := outcomeError(out); err != nil {
		return nil, err
	}
	if out.Status == domain.OutcomePending {
		return &MediaOutput{Status: out.Status, PredictionID: out.PredictionID}, nil
	}

	ref := "gen:" + uuid.NewString()
	if out.PredictionID != "" {
		ref = "prediction:" + out.PredictionID
	}
	charge, err := uc.billing.Settle(ctx, userID, out.Credits, "generate "+string(kind), ref)
	if err != nil {
		return nil, err
	}

	asset := out.Value
	res := &MediaOutput{
		Success:          true,
		Status:           out.Status,
		Asset:            &asset,
		PredictionID:     out.PredictionID,
		CreditsUsed:      out.Credits,
		CreditsRemaining: charge.Remaining,
		CreditsPending:   charge.Pending,
	}
	if out.Status == domain.OutcomeDegraded {
		res.Warning = "asset could not be stored permanently; the link may expire"
		logger.Warn("generation delivered with temporary url",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(out.Err),
		)
	}
	return res, nil
}
