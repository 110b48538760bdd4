package provider

import (
	"context"
	"time"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/storage"
)

// ResumeRequest identifies a pending prediction to check again.
type ResumeRequest struct {
	PredictionID string           `json:"predictionId"`
	Kind         domain.MediaKind `json:"kind"`
	ProjectID    string           `json:"projectId"`
	SceneID      string           `json:"sceneId,omitempty"`
}

func (r ResumeRequest) Validate() error {
	if !ValidID(r.PredictionID) {
		return invalid("predictionId", "is malformed")
	}
	if r.Kind != domain.MediaMusic && r.Kind != domain.MediaVideo {
		return invalid("kind", "must be music or video")
	}
	return checkIDs(r.ProjectID, r.SceneID)
}

// Resumer finishes predictions that outlived their poll budget.
type Resumer struct {
	predictions *PredictionClient
	persister   Persister
	pricing     Pricing
}

func NewResumer(predictions *PredictionClient, persister Persister, pricing Pricing) *Resumer {
	return &Resumer{predictions: predictions, persister: persister, pricing: pricing}
}

// Resume polls the prediction once. A still-running prediction yields a
// Pending outcome; a finished one is persisted and charged like a
// fresh call.
func (r *Resumer) Resume(ctx context.Context, req ResumeRequest) domain.Outcome[domain.Asset] {
	if err := req.Validate(); err != nil {
		return domain.Failed[domain.Asset](err)
	}
	if !r.predictions.Configured() {
		return domain.Failed[domain.Asset](failure(string(req.Kind), ErrNotConfigured))
	}

	callCtx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()
	p, err := r.predictions.Get(callCtx, req.PredictionID)
	if err != nil {
		return domain.Failed[domain.Asset](failure(string(req.Kind), err))
	}

	target := storage.PersistRequest{
		ProjectID: req.ProjectID,
		SceneID:   req.SceneID,
		Kind:      req.Kind,
	}
	var length time.Duration
	switch req.Kind {
	case domain.MediaMusic:
		target.ContentType = "audio/mpeg"
	case domain.MediaVideo:
		target.ContentType = "video/mp4"
		length = DefaultClipSeconds * time.Second
	}
	out := settle(ctx, p, target, r.pricing.CostOf(req.Kind), r.persister)
	if out.Usable() && length > 0 {
		out = withDuration(out, length)
	}
	return out
}
