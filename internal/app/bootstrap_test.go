package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func memoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			AllowedOrigins:  []string{"https://studio.example.com"},
			ValidateOpenAPI: true,
		},
		Worker: config.WorkerConfig{GeneralPoolSize: 8, GenerationPoolSize: 2},
		RateLimit: config.RateLimitConfig{
			Store:         "memory",
			SweepInterval: time.Minute,
		},
		Security: config.SecurityConfig{
			SessionSecret: "0123456789abcdef0123456789abcdef",
			TokenIssuer:   "halcyon-test",
			TokenTTL:      time.Hour,
			CSRFEnabled:   true,
			CSRFTokenTTL:  time.Hour,
		},
		Storage:    config.StorageConfig{Bucket: "productions", BucketCache: "memory"},
		Credits:    config.CreditsConfig{StartingBalance: 50},
		Production: config.ProductionConfig{RunRetention: time.Hour, RunTimeout: time.Minute},
	}
}

func TestBootstrap_DatabaseUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database = config.DatabaseConfig{
		Enabled:  true,
		Host:     "localhost",
		Port:     65432, // Non-existent port
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app, err := Bootstrap(ctx, cfg)
	require.Error(t, err, "Bootstrap should fail without database")
	assert.Nil(t, app, "Application should be nil on bootstrap failure")
}

func TestBootstrap_InMemory(t *testing.T) {
	app, err := Bootstrap(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer app.Shutdown()

	assert.Nil(t, app.DB)
	require.NotNil(t, app.Router)
	require.NotNil(t, app.Pools)
	assert.Len(t, app.Modules, 3)

	require.NoError(t, app.Start(context.Background()))

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	// Shutdown on empty application should not panic.
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}
