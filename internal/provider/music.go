package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/storage"
)

// MusicRequest asks for one music clip.
type MusicRequest struct {
	ProjectID string `json:"projectId"`
	SceneID   string `json:"sceneId,omitempty"`
	Prompt    string `json:"prompt"`
	Genre     string `json:"genre"`
	Mood      string `json:"mood"`
	Duration  int    `json:"duration,omitempty"`
}

// Validate applies defaults and checks the allow-lists.
func (r *MusicRequest) Validate() error {
	if r.Duration == 0 {
		r.Duration = DefaultMusicSeconds
	}
	if err := checkIDs(r.ProjectID, r.SceneID); err != nil {
		return err
	}
	if err := checkPrompt("prompt", r.Prompt, MaxPromptRunes); err != nil {
		return err
	}
	if err := oneOf("genre", r.Genre, MusicGenres); err != nil {
		return err
	}
	if err := oneOf("mood", r.Mood, MusicMoods); err != nil {
		return err
	}
	return checkRange("duration", r.Duration, MinMusicSeconds, MaxMusicSeconds)
}

// MusicAdapter generates music through an async prediction model.
type MusicAdapter struct {
	predictions *PredictionClient
	model       string
	persister   Persister
	cost        int64
}

func NewMusicAdapter(predictions *PredictionClient, model string, persister Persister, pricing Pricing) *MusicAdapter {
	return &MusicAdapter{predictions: predictions, model: model, persister: persister, cost: pricing.MusicClipCost}
}

func (a *MusicAdapter) Generate(ctx context.Context, req MusicRequest) domain.Outcome[domain.Asset] {
	if err := req.Validate(); err != nil {
		return domain.Failed[domain.Asset](err)
	}
	input := map[string]any{
		"prompt":                 fmt.Sprintf("%s %s music. %s", req.Mood, req.Genre, req.Prompt),
		"duration":               req.Duration,
		"output_format":          "mp3",
		"model_version":          "stereo-large",
		"normalization_strategy": "peak",
	}
	out := runPrediction(ctx, a.predictions, a.model, input, storage.PersistRequest{
		ProjectID:   req.ProjectID,
		SceneID:     req.SceneID,
		Kind:        domain.MediaMusic,
		ContentType: "audio/mpeg",
	}, a.cost, a.persister)
	if out.Usable() {
		out = withDuration(out, time.Duration(req.Duration)*time.Second)
	}
	return out
}

// runPrediction creates a prediction, waits for it and persists the output.
func runPrediction(
	ctx context.Context,
	predictions *PredictionClient,
	model string,
	input map[string]any,
	target storage.PersistRequest,
	cost int64,
	persister Persister,
) domain.Outcome[domain.Asset] {
	kind := string(target.Kind)
	if !predictions.Configured() {
		return domain.Failed[domain.Asset](failure(kind, ErrNotConfigured))
	}

	p, err := predictions.Create(ctx, model, input)
	if err != nil {
		logger.Warn("prediction create failed", zap.String("kind", kind), zap.Error(err))
		return domain.Failed[domain.Asset](failure(kind, err))
	}
	p, err = predictions.Wait(ctx, p)
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) {
			return domain.Pending[domain.Asset](p.ID)
		}
		logger.Warn("prediction poll failed", zap.String("kind", kind), zap.String("prediction_id", p.ID), zap.Error(err))
		return domain.Failed[domain.Asset](failure(kind, err))
	}
	return settle(ctx, p, target, cost, persister)
}

// settle turns a prediction into an outcome.
func settle(ctx context.Context, p Prediction, target storage.PersistRequest, cost int64, persister Persister) domain.Outcome[domain.Asset] {
	kind := string(target.Kind)
	switch p.Status {
	case PredictionSucceeded:
		url := p.OutputURL()
		if url == "" {
			return domain.Failed[domain.Asset](failure(kind, fmt.Errorf("%w: prediction %s has no output", ErrProvider, p.ID)))
		}
		target.SourceURL = url
		out := persistRemote(ctx, persister, target, cost, p.ID)
		out.PredictionID = p.ID
		return out
	case PredictionFailed, PredictionCanceled:
		logger.Warn("prediction did not succeed",
			zap.String("kind", kind),
			zap.String("prediction_id", p.ID),
			zap.String("status", string(p.Status)),
		)
		out := domain.Failed[domain.Asset](failure(kind, fmt.Errorf("%w: %s", ErrProvider, p.FailureMessage())))
		out.PredictionID = p.ID
		return out
	default:
		return domain.Pending[domain.Asset](p.ID)
	}
}
