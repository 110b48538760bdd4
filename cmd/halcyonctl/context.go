package main

import (
	"context"
	"fmt"
	"sync"

	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/infrastructure"
	"halcyon.studio/cinema/internal/pkg/logger"
)

type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error
}

// newCommandContext uses cfg when given instead of loading one.
func newCommandContext(cfg *config.Config) *commandContext {
	c := &commandContext{config: cfg}
	if cfg != nil {
		c.configOnce.Do(func() {})
	}
	return c
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if err := logger.Init("warn", cfg.Log.Format); err != nil {
			c.configErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withDatabase opens the shared pool for one command.
func (c *commandContext) withDatabase(ctx context.Context, fn func(*infrastructure.DatabaseClients) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	return fn(db)
}
