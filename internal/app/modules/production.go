package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/api/handlers"
	"halcyon.studio/cinema/internal/config"
	"halcyon.studio/cinema/internal/jobs"
	"halcyon.studio/cinema/internal/messaging"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/production"
	"halcyon.studio/cinema/internal/repository"
	"halcyon.studio/cinema/internal/usecase"
)

const runCleanupInterval = time.Hour

// ProductionModule owns the mixer, production runs and their workers.
type ProductionModule struct {
	infra    *Infrastructure
	Mixer    *production.Mixer
	Runs     repository.RunStore
	Registry *production.Registry
	Executor *usecase.RunExecutor
	produce  *usecase.ProduceEpisodeUseCase
	queries  *usecase.ProductionRuns
	cleanup  *jobs.ProductionRunCleanupWorker
}

func NewProductionModule(infra *Infrastructure, gen *GenerationModule, billing *usecase.Billing) (*ProductionModule, error) {
	cfg := infra.Config

	catalog, err := Catalog(cfg.Production)
	if err != nil {
		return nil, err
	}
	mixer := production.NewMixer(
		gen.Adapters.Video,
		gen.Adapters.Music,
		gen.Adapters.Voiceover,
		gen.Storage,
		production.WithCatalog(catalog),
	)

	var runs repository.RunStore = repository.NewMemoryRunStore()
	if infra.Pool != nil {
		runs = repository.NewPostgresRunStore(infra.Pool)
	}
	registry := production.NewRegistry()

	executor := usecase.NewRunExecutor(mixer, billing, runs, registry, infra.Pools).
		WithNotifier(infra.Notifier).
		WithEvents(infra.Events).
		WithAuditLogger(infra.AuditLogger).
		WithRunTimeout(cfg.Production.RunTimeout)
	if infra.Bus != nil {
		executor.WithForwarder(messaging.NewProgressForwarder(infra.Bus, infra.Pools))
	}

	rule := cfg.RateLimit.Rule("produce", config.RateLimitRule{Max: 1, Window: 5 * time.Minute})
	produce := usecase.NewProduceEpisodeUseCase(mixer, billing, infra.Limiter,
		usecase.RateRule{Max: rule.Max, Window: rule.Window}, gen.Adapters.Pricing).
		WithEvents(infra.Events).
		WithAuditLogger(infra.AuditLogger).
		WithRunTimeout(cfg.Production.RunTimeout)

	return &ProductionModule{
		infra:    infra,
		Mixer:    mixer,
		Runs:     runs,
		Registry: registry,
		Executor: executor,
		produce:  produce,
		queries:  usecase.NewProductionRuns(runs, registry),
		cleanup:  jobs.NewProductionRunCleanupWorker(runs, cfg.Production.RunRetention),
	}, nil
}

// Catalog loads the built-in profile catalog with the configured default.
func Catalog(cfg config.ProductionConfig) (*production.Catalog, error) {
	catalog := production.DefaultCatalog()
	if cfg.DefaultProfile == "" {
		return catalog, nil
	}
	c, err := catalog.WithDefault(cfg.DefaultProfile)
	if err != nil {
		return nil, fmt.Errorf("production.default_profile: %w", err)
	}
	return c, nil
}

func (m *ProductionModule) Name() string { return "production" }

func (m *ProductionModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewProduceEpisodeWorker(m.Executor))
	river.AddWorker(workers, m.cleanup)
	if m.infra.Pool != nil {
		river.AddWorker(workers, jobs.NewNotificationCleanupWorker(m.infra.Pool, 0))
	}
}

// ContributeServerDeps picks the launcher: River when the database is
// available, the generation pool otherwise.
func (m *ProductionModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	var launcher usecase.RunLauncher
	if pg, ok := m.Runs.(*repository.PostgresRunStore); ok && m.infra.RiverClient != nil {
		launcher = usecase.NewRiverLauncher(m.infra.Pool, m.infra.RiverClient, pg)
	} else {
		launcher = usecase.NewPoolLauncher(m.Runs, m.Executor, m.infra.Pools)
	}
	m.produce.WithLauncher(launcher)

	deps.Produce = m.produce
	deps.Runs = m.queries
	deps.Catalog = m.Mixer.Catalog()
}

// Start schedules run retention on the pools when River is not running
// the periodic cleanup job.
func (m *ProductionModule) Start(context.Context) error {
	if m.infra.RiverClient != nil {
		return nil
	}
	return m.infra.Pools.Every("production-run-cleanup", runCleanupInterval, func(ctx context.Context) {
		if _, err := m.cleanup.Cleanup(ctx); err != nil {
			logger.Warn("production run cleanup failed", zap.Error(err))
		}
	})
}

func (m *ProductionModule) Shutdown(context.Context) error { return nil }
