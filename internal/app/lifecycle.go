package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/app/modules"
	"halcyon.studio/cinema/internal/pkg/logger"
)

// Start launches River and the background loops of every module.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	}

	for _, mod := range a.Modules {
		starter, ok := mod.(modules.Starter)
		if !ok {
			continue
		}
		if err := starter.Start(ctx); err != nil {
			return fmt.Errorf("start module %s: %w", mod.Name(), err)
		}
	}

	if a.infra != nil && a.infra.Limiter != nil && a.Pools != nil {
		if err := a.infra.Limiter.StartSweeper(a.Pools, a.Config.RateLimit.SweepInterval); err != nil {
			return fmt.Errorf("start rate-limit sweeper: %w", err)
		}
	}
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(shutdownCtx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	if a.infra != nil {
		a.infra.Close()
		return
	}
	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
