package modules

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"halcyon.studio/cinema/internal/api/handlers"
	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/provider"
	"halcyon.studio/cinema/internal/storage"
	"halcyon.studio/cinema/internal/usecase"
)

const (
	upstreamHealthInterval = 60 * time.Second
	upstreamCheckTimeout   = 5 * time.Second
	bucketCacheTTL         = 24 * time.Hour
)

// GenerationModule owns the provider adapters, asset storage and the
// standalone media endpoints.
type GenerationModule struct {
	infra    *Infrastructure
	Storage  *storage.Client
	Adapters *provider.Adapters
	Health   *provider.HealthChecker
	media    *usecase.GenerateMediaUseCase
}

func NewGenerationModule(infra *Infrastructure, billing *usecase.Billing) *GenerationModule {
	cfg := infra.Config

	var opts []storage.Option
	if cfg.Storage.BucketCache == "redis" && infra.Redis != nil {
		opts = append(opts, storage.WithBucketCache(storage.NewRedisBucketCache(infra.Redis, bucketCacheTTL)))
	}
	store := storage.NewClient(storage.Config{
		BaseURL:    cfg.Storage.URL,
		ServiceKey: cfg.Storage.ServiceKey,
		Bucket:     cfg.Storage.Bucket,
		Timeout:    cfg.Storage.Timeout,
	}, opts...)

	adapters := provider.NewAdapters(ProviderSettings(cfg), store)

	return &GenerationModule{
		infra:    infra,
		Storage:  store,
		Adapters: adapters,
		Health:   provider.NewHealthChecker(adapters.UpstreamChecks(), upstreamCheckTimeout),
		media: usecase.NewGenerateMediaUseCase(
			adapters.Image,
			adapters.Music,
			adapters.Voiceover,
			adapters.Resumer,
			billing,
			adapters.Pricing,
		),
	}
}

// ProviderSettings maps configuration onto adapter settings. The CLI
// uses it for offline estimates.
func ProviderSettings(cfg *config.Config) provider.Settings {
	return provider.Settings{
		OpenAI: provider.APIConfig{
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Token:   cfg.Providers.OpenAI.APIKey,
		},
		ImageModel: cfg.Providers.OpenAI.ImageModel,
		TTSModel:   cfg.Providers.OpenAI.TTSModel,

		Replicate: provider.APIConfig{
			BaseURL: cfg.Providers.Replicate.BaseURL,
			Token:   cfg.Providers.Replicate.APIToken,
		},
		MusicModel: cfg.Providers.Replicate.MusicVersion,
		VideoModel: cfg.Providers.Replicate.VideoVersion,

		SyncTimeout:  cfg.Providers.SyncTimeout,
		PollInterval: cfg.Providers.PollInterval,
		PollTimeout:  cfg.Providers.PollTimeout,
		MaxRetries:   cfg.Providers.MaxRetries,

		Pricing: Pricing(cfg.Credits),
	}
}

// Pricing maps the configured credit costs.
func Pricing(c config.CreditsConfig) provider.Pricing {
	p := provider.DefaultPricing()
	if c.ImageCost > 0 {
		p.ImageCost = c.ImageCost
	}
	if c.VideoClipCost > 0 {
		p.VideoClipCost = c.VideoClipCost
	}
	if c.MusicClipCost > 0 {
		p.MusicClipCost = c.MusicClipCost
	}
	if c.VoiceoverCharsPerCredit > 0 {
		p.VoiceoverCharsPerCredit = c.VoiceoverCharsPerCredit
	}
	if c.VoiceoverMinCost > 0 {
		p.VoiceoverMinCost = c.VoiceoverMinCost
	}
	return p
}

func (m *GenerationModule) Name() string { return "generation" }

func (m *GenerationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Media = m.media
	deps.Health = m.Health
}

func (m *GenerationModule) RegisterWorkers(_ *river.Workers) {}

// Start schedules upstream health checks.
func (m *GenerationModule) Start(context.Context) error {
	return m.Health.Start(m.infra.Pools, upstreamHealthInterval)
}

func (m *GenerationModule) Shutdown(context.Context) error { return nil }
