package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.RateLimit.Store != "memory" {
		t.Errorf("RateLimit.Store = %q, want memory", cfg.RateLimit.Store)
	}
	produce := cfg.RateLimit.Rule("produce", RateLimitRule{})
	if produce.Max != 1 || produce.Window != 5*time.Minute {
		t.Errorf("produce rule = %+v, want 1 per 5m", produce)
	}
	if cfg.Providers.PollInterval != 2*time.Second || cfg.Providers.PollTimeout != 90*time.Second {
		t.Errorf("poll = %v/%v, want 2s/90s", cfg.Providers.PollInterval, cfg.Providers.PollTimeout)
	}
	if cfg.Credits.VideoClipCost != 10 {
		t.Errorf("Credits.VideoClipCost = %d, want 10", cfg.Credits.VideoClipCost)
	}
	if len(cfg.Security.SessionSecret) != 64 {
		t.Errorf("auto-generated session secret length = %d, want 64", len(cfg.Security.SessionSecret))
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RATELIMIT_RULES_PRODUCE_MAX", "3")
	t.Setenv("CREDITS_IMAGE_COST", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if got := cfg.RateLimit.Rule("produce", RateLimitRule{}).Max; got != 3 {
		t.Errorf("produce max = %d, want 3", got)
	}
	if cfg.Credits.ImageCost != 4 {
		t.Errorf("Credits.ImageCost = %d, want 4", cfg.Credits.ImageCost)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "server:\n  port: 7070\nstorage:\n  bucket: episodes\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Storage.Bucket != "episodes" {
		t.Errorf("file values not applied: port=%d bucket=%q", cfg.Server.Port, cfg.Storage.Bucket)
	}
}

func validConfig() *Config {
	return &Config{
		Security:  SecurityConfig{SessionSecret: "0123456789abcdef0123456789abcdef"},
		RateLimit: RateLimitConfig{Store: "memory"},
		Storage:   StorageConfig{BucketCache: "memory"},
		Credits:   CreditsConfig{ImageCost: 1, VideoClipCost: 1, MusicClipCost: 1, VoiceoverCharsPerCredit: 100},
		Providers: ProvidersConfig{PollInterval: time.Second, PollTimeout: time.Minute},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"short secret", func(c *Config) { c.Security.SessionSecret = "short" }, true},
		{"redis store without addr", func(c *Config) { c.RateLimit.Store = "redis" }, true},
		{"redis store with addr", func(c *Config) { c.RateLimit.Store = "redis"; c.Redis.Addr = "localhost:6379" }, false},
		{"unknown store", func(c *Config) { c.RateLimit.Store = "etcd" }, true},
		{"unknown bucket cache", func(c *Config) { c.Storage.BucketCache = "disk" }, true},
		{"zero image cost", func(c *Config) { c.Credits.ImageCost = 0 }, true},
		{"bad rule", func(c *Config) {
			c.RateLimit.Rules = map[string]RateLimitRule{"image": {Max: 0, Window: time.Minute}}
		}, true},
		{"poll timeout below interval", func(c *Config) { c.Providers.PollTimeout = time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureSecrets_PreservesProvidedValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{Security: SecurityConfig{SessionSecret: "abcdefghijklmnopqrstuvwxyzABCDEF123456"}}
	if err := cfg.ensureSecrets(); err != nil {
		t.Fatalf("ensureSecrets() error = %v", err)
	}
	if cfg.Security.SessionSecret != "abcdefghijklmnopqrstuvwxyzABCDEF123456" {
		t.Fatal("provided session secret must not be replaced")
	}
}

func TestDatabaseDSN(t *testing.T) {
	t.Parallel()

	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "halcyon"}
	if got, want := c.DSN(), "postgres://u:p@db:5432/halcyon?sslmode=disable"; got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
	c.URL = "postgres://override"
	if c.DSN() != "postgres://override" {
		t.Errorf("DSN() should prefer URL")
	}
}
