package modules

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/production"
	"halcyon.studio/cinema/internal/repository"
)

func init() {
	_ = logger.Init("error", "json")
}

func memoryConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{GeneralPoolSize: 4, GenerationPoolSize: 2},
		RateLimit: config.RateLimitConfig{
			Store: "memory",
			Rules: map[string]config.RateLimitRule{"produce": {Max: 2, Window: time.Minute}},
		},
		Security: config.SecurityConfig{
			SessionSecret: "0123456789abcdef0123456789abcdef",
			TokenIssuer:   "halcyon-test",
			TokenTTL:      time.Hour,
			CSRFEnabled:   true,
			CSRFTokenTTL:  time.Hour,
		},
		Storage:    config.StorageConfig{Bucket: "productions", BucketCache: "memory"},
		Credits:    config.CreditsConfig{StartingBalance: 50, ImageCost: 3},
		Production: config.ProductionConfig{DefaultProfile: "cinematic-standard"},
	}
}

func TestModules_WireWithoutBackends(t *testing.T) {
	cfg := memoryConfig()
	infra, err := NewInfrastructure(context.Background(), cfg)
	require.NoError(t, err)
	defer infra.Close()

	assert.Nil(t, infra.DB)
	assert.Nil(t, infra.Bus)
	require.NotNil(t, infra.Limiter)
	require.NotNil(t, infra.Notifier)

	creditsMod := NewCreditsModule(infra)
	gen := NewGenerationModule(infra, creditsMod.Billing)
	prod, err := NewProductionModule(infra, gen, creditsMod.Billing)
	require.NoError(t, err)
	assert.IsType(t, &repository.MemoryRunStore{}, prod.Runs)

	mods := []Module{creditsMod, gen, prod}
	workers := river.NewWorkers()
	for _, m := range mods {
		m.RegisterWorkers(workers)
	}
	require.NoError(t, infra.InitRiver(workers, nil))
	assert.Nil(t, infra.RiverClient)

	csrf, err := NewCSRF(cfg)
	require.NoError(t, err)
	deps := NewServerDeps(infra, csrf, mods)

	assert.NotNil(t, deps.Produce)
	assert.NotNil(t, deps.Runs)
	assert.NotNil(t, deps.Media)
	assert.NotNil(t, deps.Credits)
	assert.NotNil(t, deps.Catalog)
	assert.NotNil(t, deps.Health)
	assert.NotNil(t, deps.CSRF)
	assert.Nil(t, deps.DB)
	assert.Equal(t, int64(3), gen.Adapters.Pricing.ImageCost)

	for _, m := range mods {
		if s, ok := m.(Starter); ok {
			require.NoError(t, s.Start(context.Background()), m.Name())
		}
		assert.NoError(t, m.Shutdown(context.Background()))
	}
}

func TestInfrastructure_RedisStoreRequiresRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.RateLimit.Store = "redis"

	infra, err := NewInfrastructure(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, infra)
}

func TestCatalog_DefaultProfile(t *testing.T) {
	c, err := Catalog(config.ProductionConfig{DefaultProfile: "social-short"})
	require.NoError(t, err)
	assert.Equal(t, "social-short", c.SelectBestProfile("", "", "", "", "").ID)

	_, err = Catalog(config.ProductionConfig{DefaultProfile: "missing"})
	assert.ErrorIs(t, err, production.ErrUnknownProfile)

	c, err = Catalog(config.ProductionConfig{})
	require.NoError(t, err)
	assert.Equal(t, "cinematic-standard", c.SelectBestProfile("", "", "", "", "").ID)
}

func TestNewCSRF_Disabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.Security.CSRFEnabled = false
	csrf, err := NewCSRF(cfg)
	require.NoError(t, err)
	assert.Nil(t, csrf)
}

func TestPricing_FallsBackToDefaults(t *testing.T) {
	p := Pricing(config.CreditsConfig{VideoClipCost: 12})
	assert.Equal(t, int64(12), p.VideoClipCost)
	assert.Equal(t, int64(2), p.ImageCost)
	assert.Equal(t, int64(500), p.VoiceoverCharsPerCredit)
}
