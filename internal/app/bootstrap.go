// Package app is the composition root. Bootstrap only orchestrates: each
// module builds its own slice of the dependency graph.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"halcyon.studio/cinema/internal/api/handlers"
	"halcyon.studio/cinema/internal/app/modules"
	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/infrastructure"
	"halcyon.studio/cinema/internal/jobs"
	"halcyon.studio/cinema/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module

	infra *modules.Infrastructure
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	creditsModule := modules.NewCreditsModule(infra)
	generationModule := modules.NewGenerationModule(infra, creditsModule.Billing)
	productionModule, err := modules.NewProductionModule(infra, generationModule, creditsModule.Billing)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init production module: %w", err)
	}
	allModules := []modules.Module{creditsModule, generationModule, productionModule}

	workers := river.NewWorkers()
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
	}
	if err := infra.InitRiver(workers, jobs.Periodic()); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	csrf, err := modules.NewCSRF(cfg)
	if err != nil {
		infra.Close()
		return nil, err
	}
	server := handlers.NewServer(modules.NewServerDeps(infra, csrf, allModules))

	return &Application{
		Config: cfg,
		Router: newRouter(cfg, server, routerDeps{
			JWT:     modules.JWTConfig(cfg),
			CSRF:    csrf,
			Limiter: infra.Limiter,
		}),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
		infra:   infra,
	}, nil
}
