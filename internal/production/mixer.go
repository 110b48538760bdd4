package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/provider"
	"halcyon.studio/cinema/internal/storage"
)

// Stage weights. They sum to 100.
const (
	WeightInitializing = 10
	WeightVideo        = 40
	WeightAudio        = 20
	WeightVoiceover    = 15
	WeightCaptions     = 10
	WeightMixing       = 5
)

// VideoGenerator produces video clips.
type VideoGenerator interface {
	Generate(ctx context.Context, req provider.VideoRequest) domain.Outcome[domain.Asset]
}

// MusicGenerator produces music clips.
type MusicGenerator interface {
	Generate(ctx context.Context, req provider.MusicRequest) domain.Outcome[domain.Asset]
}

// VoiceoverGenerator produces narration.
type VoiceoverGenerator interface {
	Generate(ctx context.Context, req provider.VoiceoverRequest) domain.Outcome[domain.Asset]
}

// Run is the working state of one production.
type Run struct {
	Request domain.ProductionRequest
	Profile Profile
	Plan    Plan
	Result  domain.ProductionResult

	progress *tracker
}

// charge adds a usable outcome's asset and cost to the result.
func (r *Run) charge(out domain.Outcome[domain.Asset]) {
	r.Result.CreditsUsed += out.Credits
	r.Result.Assets = append(r.Result.Assets, out.Value)
}

func (r *Run) pending(stage domain.Stage, kind domain.MediaKind, predictionID string) {
	r.Result.Pending = append(r.Result.Pending, domain.PendingPrediction{Stage: stage, Kind: kind, PredictionID: predictionID})
}

func (r *Run) warn(stage domain.Stage, err error) {
	r.Result.Warnings = append(r.Result.Warnings, domain.StageWarning{Stage: stage, Message: provider.PublicMessage(err)})
}

// Mixer runs productions through the stage pipeline.
type Mixer struct {
	video     VideoGenerator
	music     MusicGenerator
	voiceover VoiceoverGenerator
	persister provider.Persister
	catalog   *Catalog
	now       func() time.Time
	pipeline  *Pipeline
}

// MixerOption customizes a Mixer.
type MixerOption func(*Mixer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MixerOption {
	return func(m *Mixer) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCatalog overrides the built-in profile catalog.
func WithCatalog(c *Catalog) MixerOption {
	return func(m *Mixer) {
		if c != nil {
			m.catalog = c
		}
	}
}

// NewMixer wires the generators. persister may be nil, in which case
// captions and the manifest are returned inline.
func NewMixer(video VideoGenerator, music MusicGenerator, voiceover VoiceoverGenerator, persister provider.Persister, opts ...MixerOption) *Mixer {
	m := &Mixer{
		video:     video,
		music:     music,
		voiceover: voiceover,
		persister: persister,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.catalog == nil {
		m.catalog = DefaultCatalog()
	}
	p, err := NewPipeline(
		StageSpec{Name: domain.StageInitializing, Weight: WeightInitializing, Required: true, Run: m.initialize},
		StageSpec{Name: domain.StageGeneratingVideo, Weight: WeightVideo, Required: true, Run: m.generateVideo},
		StageSpec{Name: domain.StageGeneratingAudio, Weight: WeightAudio,
			Enabled: func(r *Run) bool { return r.Plan.Music && m.music != nil }, Run: m.generateAudio},
		StageSpec{Name: domain.StageGeneratingVoiceover, Weight: WeightVoiceover,
			Enabled: func(r *Run) bool { return r.Plan.Voiceover && m.voiceover != nil }, Run: m.generateVoiceover},
		StageSpec{Name: domain.StageGeneratingCaptions, Weight: WeightCaptions,
			Enabled: func(r *Run) bool { return r.Plan.Captions }, Run: m.generateCaptions},
		StageSpec{Name: domain.StageMixing, Weight: WeightMixing, Run: m.mix},
	)
	if err != nil {
		panic(err)
	}
	m.pipeline = p
	return m
}

// Catalog returns the profile catalog in use.
func (m *Mixer) Catalog() *Catalog { return m.catalog }

// Pipeline returns the stage pipeline.
func (m *Mixer) Pipeline() *Pipeline { return m.pipeline }

// Produce runs one production to completion. Progress events go to
// broker when it is non-nil. The result is complete when returned;
// partial failure is reported in it, not as an error.
func (m *Mixer) Produce(ctx context.Context, req domain.ProductionRequest, broker *Broker) domain.ProductionResult {
	started := m.now()
	r := &Run{Request: req, progress: newTracker(broker, m.now)}

	err := m.pipeline.Execute(ctx, r)
	r.Result.Progress = r.progress.current
	r.Result.ProcessingTimeMs = m.now().Sub(started).Milliseconds()
	if err != nil {
		r.Result.Success = false
		r.Result.Error = provider.PublicMessage(err)
		logger.Warn("production failed",
			zap.String("project_id", req.ProjectID),
			zap.String("user_id", req.UserID),
			zap.Int64("credits_used", r.Result.CreditsUsed),
			zap.Error(err),
		)
		return r.Result
	}
	r.Result.Success = true
	logger.Info("production complete",
		zap.String("project_id", req.ProjectID),
		zap.String("user_id", req.UserID),
		zap.String("profile", r.Profile.ID),
		zap.Int64("credits_used", r.Result.CreditsUsed),
		zap.Int("pending", len(r.Result.Pending)),
		zap.Int("warnings", len(r.Result.Warnings)),
	)
	return r.Result
}

// Plan resolves the profile and plan for req without running anything.
func (m *Mixer) Plan(req domain.ProductionRequest) (Plan, error) {
	profile, err := m.catalog.Resolve(req)
	if err != nil {
		return Plan{}, err
	}
	return BuildPlan(req, profile)
}

func (m *Mixer) initialize(_ context.Context, r *Run) error {
	if !provider.ValidID(r.Request.ProjectID) {
		return &provider.ValidationError{Field: "projectId", Message: "is malformed"}
	}
	plan, err := m.Plan(r.Request)
	if err != nil {
		return &provider.ValidationError{Field: "request", Message: err.Error()}
	}
	r.Profile, r.Plan = plan.Profile, plan
	return nil
}

func (m *Mixer) generateVideo(ctx context.Context, r *Run) error {
	spec := StageSpec{Name: domain.StageGeneratingVideo, Weight: WeightVideo}
	clips := r.Plan.Clips
	var first string
	for i, clip := range clips {
		r.progress.within(spec, float64(i)/float64(len(clips)), "Generating clip "+strconv.Itoa(i+1)+" of "+strconv.Itoa(len(clips)))
		out := m.video.Generate(ctx, provider.VideoRequest{
			ProjectID:  r.Request.ProjectID,
			SceneID:    clip.SceneID,
			Prompt:     clip.Prompt,
			Resolution: r.Profile.Video.Resolution,
			Motion:     r.Profile.Video.Motion,
			Duration:   clip.Seconds,
		})
		switch {
		case out.Usable():
			r.charge(out)
			if first == "" {
				first = out.Value.URL
			}
		case out.Status == domain.OutcomePending:
			r.pending(spec.Name, domain.MediaVideo, out.PredictionID)
		default:
			return fmt.Errorf("clip %d: %w", i+1, out.Err)
		}
	}
	if first == "" {
		return errors.New("video is still processing; resume the pending predictions")
	}
	r.Result.VideoURL = first
	return nil
}

func (m *Mixer) generateAudio(ctx context.Context, r *Run) error {
	out := m.music.Generate(ctx, provider.MusicRequest{
		ProjectID: r.Request.ProjectID,
		Prompt:    r.Plan.Clips[0].Prompt,
		Genre:     r.Plan.MusicGenre,
		Mood:      r.Plan.MusicMood,
		Duration:  r.Plan.MusicSeconds,
	})
	switch {
	case out.Usable():
		r.charge(out)
		r.Result.AudioURL = out.Value.URL
	case out.Status == domain.OutcomePending:
		r.pending(domain.StageGeneratingAudio, domain.MediaMusic, out.PredictionID)
	default:
		return out.Err
	}
	return nil
}

func (m *Mixer) generateVoiceover(ctx context.Context, r *Run) error {
	out := m.voiceover.Generate(ctx, provider.VoiceoverRequest{
		ProjectID: r.Request.ProjectID,
		Text:      r.Plan.Script,
		Voice:     r.Plan.Voice,
	})
	if !out.Usable() {
		return out.Err
	}
	r.charge(out)
	r.Result.VoiceoverURL = out.Value.URL
	return nil
}

func (m *Mixer) generateCaptions(ctx context.Context, r *Run) error {
	cues := Segment(r.Plan.Script, r.Plan.CaptionStyle)
	if len(cues) == 0 {
		return errors.New("script has no caption text")
	}
	asset := m.store(ctx, r, domain.MediaCaptions, "text/vtt", []byte(RenderVTT(cues)))
	asset.Duration = cues[len(cues)-1].End
	asset.DurationSecs = asset.Duration.Seconds()
	r.Result.Assets = append(r.Result.Assets, asset)
	r.Result.CaptionsURL = asset.URL
	return nil
}

func (m *Mixer) mix(ctx context.Context, r *Run) error {
	if len(r.Result.Assets) < 2 {
		// A single clip is already the episode.
		return nil
	}
	manifest := BuildManifest(r.Request.ProjectID, r.Profile.ID, r.Result.Assets, m.now())
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	asset := m.store(ctx, r, domain.MediaManifest, "application/json", data)
	r.Result.Assets = append(r.Result.Assets, asset)
	r.Result.ManifestURL = asset.URL
	return nil
}

// store persists locally produced files, inlining them on failure.
// Local files cost nothing.
func (m *Mixer) store(ctx context.Context, r *Run, kind domain.MediaKind, contentType string, data []byte) domain.Asset {
	asset := domain.Asset{
		Kind:        kind,
		URL:         storage.DataURL(contentType, data),
		URLType:     domain.URLData,
		ContentType: contentType,
	}
	if m.persister == nil {
		return asset
	}
	stored, err := m.persister.Persist(ctx, storage.PersistRequest{
		ProjectID:   r.Request.ProjectID,
		Kind:        kind,
		Data:        data,
		ContentType: contentType,
	})
	if err != nil {
		logger.Warn("local asset persistence failed, returning inline data url",
			zap.String("kind", string(kind)),
			zap.String("project_id", r.Request.ProjectID),
			zap.Error(err),
		)
		return asset
	}
	asset.URL, asset.URLType, asset.Path = stored.URL, domain.URLPermanent, stored.Path
	return asset
}
