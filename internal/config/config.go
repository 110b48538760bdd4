// Package config provides configuration management for the HALCYON
// production service.
//
// Configuration is loaded from:
// 1. .env file in the working directory (optional, local development)
// 2. config.yaml file (optional)
// 3. Environment variables (DATABASE_URL, SERVER_PORT, RATELIMIT_STORE, ...)
// 4. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
	River      RiverConfig      `mapstructure:"river"`
	Security   SecurityConfig   `mapstructure:"security"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Credits    CreditsConfig    `mapstructure:"credits"`
	Production ProductionConfig `mapstructure:"production"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	ValidateOpenAPI  bool          `mapstructure:"validate_openapi"`

	// UnsafeAllowAllOrigins honours "*" in allowed_origins. Credentials
	// are then disabled.
	UnsafeAllowAllOrigins bool `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. The pool is
// shared by the credit ledger, production runs, audit log and River.
type DatabaseConfig struct {
	// Enabled=false runs the service on in-memory stores only.
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// RedisConfig enables the shared rate-limit and bucket caches.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig enables the credit reconciliation bus and progress events.
// An empty URL disables NATS.
type NATSConfig struct {
	URL        string `mapstructure:"url"`
	QueueGroup string `mapstructure:"queue_group"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console or auto
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains session and CSRF settings.
type SecurityConfig struct {
	SessionSecret string        `mapstructure:"session_secret"`
	TokenIssuer   string        `mapstructure:"token_issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	CSRFEnabled   bool          `mapstructure:"csrf_enabled"`
	CSRFTokenTTL  time.Duration `mapstructure:"csrf_token_ttl"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize    int `mapstructure:"general_pool_size"`
	GenerationPoolSize int `mapstructure:"generation_pool_size"`
}

// RateLimitRule is a fixed window: at most Max hits per Window.
type RateLimitRule struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig selects the limiter store and per-feature rules.
type RateLimitConfig struct {
	Store         string                   `mapstructure:"store"` // memory or redis
	SweepInterval time.Duration            `mapstructure:"sweep_interval"`
	Rules         map[string]RateLimitRule `mapstructure:"rules"`
}

// OpenAIConfig configures the image and speech endpoints.
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	ImageModel string `mapstructure:"image_model"`
	TTSModel   string `mapstructure:"tts_model"`
}

// ReplicateConfig configures the prediction-based music and video models.
type ReplicateConfig struct {
	APIToken     string `mapstructure:"api_token"`
	BaseURL      string `mapstructure:"base_url"`
	MusicVersion string `mapstructure:"music_version"`
	VideoVersion string `mapstructure:"video_version"`
}

// ProvidersConfig contains generation provider settings.
type ProvidersConfig struct {
	OpenAI       OpenAIConfig    `mapstructure:"openai"`
	Replicate    ReplicateConfig `mapstructure:"replicate"`
	SyncTimeout  time.Duration   `mapstructure:"sync_timeout"`
	PollInterval time.Duration   `mapstructure:"poll_interval"`
	PollTimeout  time.Duration   `mapstructure:"poll_timeout"`
	MaxRetries   int             `mapstructure:"max_retries"`
}

// StorageConfig configures durable asset persistence.
type StorageConfig struct {
	URL         string        `mapstructure:"url"`
	ServiceKey  string        `mapstructure:"service_key"`
	Bucket      string        `mapstructure:"bucket"`
	BucketCache string        `mapstructure:"bucket_cache"` // memory or redis
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CreditsConfig holds the per-call credit prices.
type CreditsConfig struct {
	ImageCost               int64         `mapstructure:"image_cost"`
	VideoClipCost           int64         `mapstructure:"video_clip_cost"`
	MusicClipCost           int64         `mapstructure:"music_clip_cost"`
	VoiceoverCharsPerCredit int64         `mapstructure:"voiceover_chars_per_credit"`
	VoiceoverMinCost        int64         `mapstructure:"voiceover_min_cost"`
	StartingBalance         int64         `mapstructure:"starting_balance"`
	ReconcileInterval       time.Duration `mapstructure:"reconcile_interval"`
}

// ProductionConfig contains episode production settings.
type ProductionConfig struct {
	DefaultProfile string        `mapstructure:"default_profile"`
	RunRetention   time.Duration `mapstructure:"run_retention"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from .env, file and environment variables.
// Env names have no prefix: database.max_conns → DATABASE_MAX_CONNS.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/halcyon")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if len(c.Security.SessionSecret) < 32 {
		return fmt.Errorf("security.session_secret must be at least 32 characters")
	}
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("ratelimit.store=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("ratelimit.store must be memory or redis, got %q", c.RateLimit.Store)
	}
	switch c.Storage.BucketCache {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("storage.bucket_cache=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("storage.bucket_cache must be memory or redis, got %q", c.Storage.BucketCache)
	}
	for name, rule := range c.RateLimit.Rules {
		if rule.Max <= 0 || rule.Window <= 0 {
			return fmt.Errorf("ratelimit.rules.%s: max and window must be positive", name)
		}
	}
	if c.Credits.ImageCost <= 0 || c.Credits.VideoClipCost <= 0 || c.Credits.MusicClipCost <= 0 {
		return fmt.Errorf("credits: per-call costs must be positive")
	}
	if c.Credits.VoiceoverCharsPerCredit <= 0 {
		return fmt.Errorf("credits.voiceover_chars_per_credit must be positive")
	}
	if c.Providers.PollInterval <= 0 || c.Providers.PollTimeout < c.Providers.PollInterval {
		return fmt.Errorf("providers: poll_timeout must be at least poll_interval")
	}
	return nil
}

// Rule returns the named rate-limit rule, or fallback when unset.
func (c RateLimitConfig) Rule(name string, fallback RateLimitRule) RateLimitRule {
	if r, ok := c.Rules[name]; ok && r.Max > 0 && r.Window > 0 {
		return r
	}
	return fallback
}

func (c *Config) ensureSecrets() error {
	if c.Security.SessionSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate session secret: %w", err)
		}
		c.Security.SessionSecret = secret
		logBootstrapWarn(
			"auto-generated session_secret; set SECURITY_SESSION_SECRET so issued tokens survive restarts",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	// Production runs synchronously inside the request and SSE streams stay open.
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.validate_openapi", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "halcyon")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "halcyon")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 30)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Redis / NATS
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.queue_group", "halcyon-credits")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 4)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.token_issuer", "halcyon-studio")
	v.SetDefault("security.token_ttl", "24h")
	v.SetDefault("security.csrf_enabled", true)
	v.SetDefault("security.csrf_token_ttl", "12h")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.generation_pool_size", 8)

	// Rate limits
	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.sweep_interval", "60s")
	v.SetDefault("ratelimit.rules.ip.max", 120)
	v.SetDefault("ratelimit.rules.ip.window", "1m")
	v.SetDefault("ratelimit.rules.produce.max", 1)
	v.SetDefault("ratelimit.rules.produce.window", "5m")
	v.SetDefault("ratelimit.rules.image.max", 10)
	v.SetDefault("ratelimit.rules.image.window", "1m")
	v.SetDefault("ratelimit.rules.music.max", 5)
	v.SetDefault("ratelimit.rules.music.window", "1m")
	v.SetDefault("ratelimit.rules.voiceover.max", 10)
	v.SetDefault("ratelimit.rules.voiceover.window", "1m")
	v.SetDefault("ratelimit.rules.prediction.max", 30)
	v.SetDefault("ratelimit.rules.prediction.window", "1m")

	// Providers
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.image_model", "dall-e-3")
	v.SetDefault("providers.openai.tts_model", "tts-1")
	v.SetDefault("providers.replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("providers.replicate.music_version", "meta/musicgen")
	v.SetDefault("providers.replicate.video_version", "minimax/video-01")
	v.SetDefault("providers.sync_timeout", "30s")
	v.SetDefault("providers.poll_interval", "2s")
	v.SetDefault("providers.poll_timeout", "90s")
	v.SetDefault("providers.max_retries", 2)

	// Storage
	v.SetDefault("storage.bucket", "productions")
	v.SetDefault("storage.bucket_cache", "memory")
	v.SetDefault("storage.timeout", "30s")

	// Credits
	v.SetDefault("credits.image_cost", 2)
	v.SetDefault("credits.video_clip_cost", 10)
	v.SetDefault("credits.music_clip_cost", 5)
	v.SetDefault("credits.voiceover_chars_per_credit", 500)
	v.SetDefault("credits.voiceover_min_cost", 1)
	v.SetDefault("credits.starting_balance", 50)
	v.SetDefault("credits.reconcile_interval", "30s")

	// Production
	v.SetDefault("production.default_profile", "cinematic-standard")
	v.SetDefault("production.run_retention", "720h")
	v.SetDefault("production.run_timeout", "15m")
}
