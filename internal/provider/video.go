package provider

import (
	"context"
	"time"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/storage"
)

// VideoRequest asks for one video clip.
type VideoRequest struct {
	ProjectID  string `json:"projectId"`
	SceneID    string `json:"sceneId,omitempty"`
	Prompt     string `json:"prompt"`
	Resolution string `json:"resolution,omitempty"`
	Motion     string `json:"motion,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	// ImageURL optionally seeds the first frame.
	ImageURL string `json:"imageUrl,omitempty"`
}

// Validate applies defaults and checks the allow-lists.
func (r *VideoRequest) Validate() error {
	if r.Resolution == "" {
		r.Resolution = "1080p"
	}
	if r.Motion == "" {
		r.Motion = "medium"
	}
	if r.Duration == 0 {
		r.Duration = DefaultClipSeconds
	}
	if err := checkIDs(r.ProjectID, r.SceneID); err != nil {
		return err
	}
	if err := checkPrompt("prompt", r.Prompt, MaxPromptRunes); err != nil {
		return err
	}
	if err := oneOf("resolution", r.Resolution, VideoResolutions); err != nil {
		return err
	}
	if err := oneOf("motion", r.Motion, VideoMotions); err != nil {
		return err
	}
	return checkRange("duration", r.Duration, MinClipSeconds, MaxClipSeconds)
}

// VideoAdapter generates video clips through an async prediction model.
type VideoAdapter struct {
	predictions *PredictionClient
	model       string
	persister   Persister
	cost        int64
}

func NewVideoAdapter(predictions *PredictionClient, model string, persister Persister, pricing Pricing) *VideoAdapter {
	return &VideoAdapter{predictions: predictions, model: model, persister: persister, cost: pricing.VideoClipCost}
}

func (a *VideoAdapter) Generate(ctx context.Context, req VideoRequest) domain.Outcome[domain.Asset] {
	if err := req.Validate(); err != nil {
		return domain.Failed[domain.Asset](err)
	}
	input := map[string]any{
		"prompt":     req.Prompt,
		"resolution": req.Resolution,
		"motion":     req.Motion,
		"duration":   req.Duration,
	}
	if req.ImageURL != "" {
		input["first_frame_image"] = req.ImageURL
	}
	out := runPrediction(ctx, a.predictions, a.model, input, storage.PersistRequest{
		ProjectID:   req.ProjectID,
		SceneID:     req.SceneID,
		Kind:        domain.MediaVideo,
		ContentType: "video/mp4",
	}, a.cost, a.persister)
	if out.Usable() {
		out = withDuration(out, time.Duration(req.Duration)*time.Second)
	}
	return out
}
