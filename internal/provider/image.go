package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/storage"
)

// ImageRequest asks for one still image.
type ImageRequest struct {
	ProjectID string `json:"projectId"`
	SceneID   string `json:"sceneId,omitempty"`
	Prompt    string `json:"prompt"`
	Size      string `json:"size,omitempty"`
	Quality   string `json:"quality,omitempty"`
}

// Validate applies defaults and checks the allow-lists.
func (r *ImageRequest) Validate() error {
	if r.Size == "" {
		r.Size = ImageSizes[0]
	}
	if r.Quality == "" {
		r.Quality = "standard"
	}
	if err := checkIDs(r.ProjectID, r.SceneID); err != nil {
		return err
	}
	if err := checkPrompt("prompt", r.Prompt, MaxPromptRunes); err != nil {
		return err
	}
	if err := oneOf("size", r.Size, ImageSizes); err != nil {
		return err
	}
	return oneOf("quality", r.Quality, ImageQualities)
}

// ImageAdapter generates images through an OpenAI-compatible endpoint.
type ImageAdapter struct {
	api       *apiClient
	model     string
	persister Persister
	cost      int64
	timeout   time.Duration
}

func NewImageAdapter(api APIConfig, model string, persister Persister, pricing Pricing, timeout time.Duration, opts ...Option) *ImageAdapter {
	return &ImageAdapter{
		api:       newAPIClient(api, opts...),
		model:     model,
		persister: persister,
		cost:      pricing.ImageCost,
		timeout:   syncTimeout(timeout),
	}
}

type imageGenerationRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageGenerationResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate never returns an error: failures are Failed outcomes.
func (a *ImageAdapter) Generate(ctx context.Context, req ImageRequest) domain.Outcome[domain.Asset] {
	if err := req.Validate(); err != nil {
		return domain.Failed[domain.Asset](err)
	}
	if !a.api.configured() {
		return domain.Failed[domain.Asset](failure("image", ErrNotConfigured))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var resp imageGenerationResponse
	err := a.api.doJSON(callCtx, http.MethodPost, "images/generations", imageGenerationRequest{
		Model:          a.model,
		Prompt:         req.Prompt,
		N:              1,
		Size:           req.Size,
		Quality:        req.Quality,
		ResponseFormat: "url",
	}, &resp)
	if err != nil {
		logger.Warn("image generation failed", zap.String("project_id", req.ProjectID), zap.Error(err))
		return domain.Failed[domain.Asset](failure("image", classify(err)))
	}
	if len(resp.Data) == 0 || (resp.Data[0].URL == "" && resp.Data[0].B64JSON == "") {
		return domain.Failed[domain.Asset](failure("image", fmt.Errorf("%w: empty image response", ErrProvider)))
	}

	item := resp.Data[0]
	persistReq := storage.PersistRequest{
		ProjectID:   req.ProjectID,
		SceneID:     req.SceneID,
		Kind:        domain.MediaImage,
		ContentType: "image/png",
	}
	if item.URL == "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return domain.Failed[domain.Asset](failure("image", fmt.Errorf("%w: decode image: %v", ErrProvider, err)))
		}
		persistReq.Data = data
		return persistBytes(ctx, a.persister, persistReq, a.cost)
	}
	persistReq.SourceURL = item.URL
	return persistRemote(ctx, a.persister, persistReq, a.cost, "")
}

func syncTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultHTTPTimeout
	}
	return d
}
