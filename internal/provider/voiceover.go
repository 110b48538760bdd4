package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/storage"
)

// VoiceoverRequest asks for narration of Text.
type VoiceoverRequest struct {
	ProjectID string  `json:"projectId"`
	SceneID   string  `json:"sceneId,omitempty"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// Validate applies defaults and checks the allow-lists.
func (r *VoiceoverRequest) Validate() error {
	if r.Voice == "" {
		r.Voice = "alloy"
	}
	if r.Speed == 0 {
		r.Speed = 1
	}
	if err := checkIDs(r.ProjectID, r.SceneID); err != nil {
		return err
	}
	if err := checkPrompt("text", r.Text, MaxVoiceoverRunes); err != nil {
		return err
	}
	if err := oneOf("voice", r.Voice, Voices); err != nil {
		return err
	}
	if r.Speed < 0.25 || r.Speed > 4 {
		return invalid("speed", "must be between 0.25 and 4")
	}
	return nil
}

// Narration speed used to estimate clip length.
const wordsPerMinute = 150

// EstimateSpeech approximates how long text takes to read aloud.
func EstimateSpeech(text string, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	words := len(strings.Fields(text))
	return time.Duration(float64(words) / wordsPerMinute / speed * float64(time.Minute))
}

// VoiceoverAdapter synthesizes speech through an OpenAI-compatible endpoint.
type VoiceoverAdapter struct {
	api       *apiClient
	model     string
	persister Persister
	pricing   Pricing
	timeout   time.Duration
}

func NewVoiceoverAdapter(api APIConfig, model string, persister Persister, pricing Pricing, timeout time.Duration, opts ...Option) *VoiceoverAdapter {
	return &VoiceoverAdapter{
		api:       newAPIClient(api, opts...),
		model:     model,
		persister: persister,
		pricing:   pricing,
		timeout:   syncTimeout(timeout),
	}
}

type speechRequest struct {
	Model          string  `json:"model,omitempty"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Cost returns what Generate will charge for req.
func (a *VoiceoverAdapter) Cost(req VoiceoverRequest) int64 {
	return a.pricing.VoiceoverCost(req.Text)
}

func (a *VoiceoverAdapter) Generate(ctx context.Context, req VoiceoverRequest) domain.Outcome[domain.Asset] {
	if err := req.Validate(); err != nil {
		return domain.Failed[domain.Asset](err)
	}
	if !a.api.configured() {
		return domain.Failed[domain.Asset](failure("voiceover", ErrNotConfigured))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	audio, contentType, err := a.api.do(callCtx, http.MethodPost, "audio/speech", speechRequest{
		Model:          a.model,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: "mp3",
		Speed:          req.Speed,
	})
	if err != nil {
		logger.Warn("speech synthesis failed", zap.String("project_id", req.ProjectID), zap.Error(err))
		return domain.Failed[domain.Asset](failure("voiceover", classify(err)))
	}
	if len(audio) == 0 {
		return domain.Failed[domain.Asset](failure("voiceover", fmt.Errorf("%w: empty audio", ErrProvider)))
	}
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "audio/mpeg"
	}

	out := persistBytes(ctx, a.persister, storage.PersistRequest{
		ProjectID:   req.ProjectID,
		SceneID:     req.SceneID,
		Kind:        domain.MediaVoiceover,
		Data:        audio,
		ContentType: contentType,
	}, a.Cost(req))
	return withDuration(out, EstimateSpeech(req.Text, req.Speed))
}
