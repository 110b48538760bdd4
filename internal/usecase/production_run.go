package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/governance/audit"
	"halcyon.studio/cinema/internal/jobs"
	"halcyon.studio/cinema/internal/notification"
	apperrors "halcyon.studio/cinema/internal/pkg/errors"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/pkg/worker"
	"halcyon.studio/cinema/internal/production"
	"halcyon.studio/cinema/internal/repository"
)

// ProgressForwarder relays a run's progress to another transport.
type ProgressForwarder interface {
	Forward(runID string, b *production.Broker) error
}

// RunExecutor executes a queued production run: it streams progress to
// the run store and live subscribers, bills the user and stores the
// result. It is called by the River worker or the in-process launcher.
type RunExecutor struct {
	mixer      *production.Mixer
	billing    *Billing
	runs       repository.RunStore
	registry   *production.Registry
	pools      *worker.Pools
	forwarder  ProgressForwarder
	notifier   *notification.Triggers
	events     *domain.EventDispatcher
	audit      *audit.Logger
	runTimeout time.Duration
}

func NewRunExecutor(mixer *production.Mixer, billing *Billing, runs repository.RunStore, registry *production.Registry, pools *worker.Pools) *RunExecutor {
	return &RunExecutor{
		mixer:      mixer,
		billing:    billing,
		runs:       runs,
		registry:   registry,
		pools:      pools,
		runTimeout: DefaultRunTimeout,
	}
}

func (e *RunExecutor) WithForwarder(f ProgressForwarder) *RunExecutor {
	e.forwarder = f
	return e
}

func (e *RunExecutor) WithNotifier(t *notification.Triggers) *RunExecutor {
	e.notifier = t
	return e
}

func (e *RunExecutor) WithEvents(d *domain.EventDispatcher) *RunExecutor {
	e.events = d
	return e
}

func (e *RunExecutor) WithAuditLogger(al *audit.Logger) *RunExecutor {
	e.audit = al
	return e
}

func (e *RunExecutor) WithRunTimeout(d time.Duration) *RunExecutor {
	if d > 0 {
		e.runTimeout = d
	}
	return e
}

// Execute runs the production for runID. A finished run is left alone,
// so redelivery is harmless.
func (e *RunExecutor) Execute(ctx context.Context, runID string) error {
	run, err := e.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("load production run %s: %w", runID, err)
	}
	if run.Status == domain.RunComplete || run.Status == domain.RunFailed {
		logger.Info("production run already finished", zap.String("run_id", runID))
		return nil
	}

	broker := e.registry.Open(runID)
	defer e.registry.Close(runID)
	e.persistProgress(runID, broker)
	if e.forwarder != nil {
		if err := e.forwarder.Forward(runID, broker); err != nil {
			logger.Warn("progress forwarding unavailable", zap.String("run_id", runID), zap.Error(err))
		}
	}

	log := logger.With(zap.String("run_id", runID), zap.String("user_id", run.UserID))
	log.Info("production run started")

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	result := e.mixer.Produce(runCtx, run.Request, broker)
	cancel()

	var charged int64
	charge, err := e.billing.Settle(ctx, run.UserID, result.CreditsUsed, productionReason(run.Request), runID)
	switch {
	case err != nil:
		// The balance was spent elsewhere while the run executed.
		log.Warn("production run could not be billed", zap.Error(err))
		result.Success = false
		result.Error = "insufficient credits"
	case !charge.Pending:
		charged = result.CreditsUsed
	}

	if err := e.runs.Finish(ctx, runID, result, charged, charge.Pending); err != nil {
		return fmt.Errorf("store production result %s: %w", runID, err)
	}
	recordProduction(ctx, e.events, e.audit, runID, run.Request, result)
	if e.notifier != nil {
		e.notifier.OnProductionFinished(ctx, run.UserID, runID, result)
	}
	log.Info("production run finished",
		zap.Bool("success", result.Success),
		zap.Int64("credits_charged", charged),
		zap.Bool("credits_pending", charge.Pending),
	)
	return nil
}

// persistProgress mirrors broker events into the run store on the
// general pool until the broker closes.
func (e *RunExecutor) persistProgress(runID string, broker *production.Broker) {
	events, cancel := broker.Subscribe()
	err := e.pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		defer cancel()
		for p := range events {
			if err := e.runs.UpdateProgress(ctx, runID, domain.RunRunning, p); err != nil {
				logger.Warn("production progress not persisted", zap.String("run_id", runID), zap.Error(err))
			}
		}
	})
	if err != nil {
		cancel()
		logger.Warn("production progress persistence unavailable", zap.String("run_id", runID), zap.Error(err))
	}
}

// --- Launchers ---

// RiverLauncher writes the run row and its River job in one transaction.
type RiverLauncher struct {
	pool        *pgxpool.Pool
	riverClient *river.Client[pgx.Tx]
	runs        *repository.PostgresRunStore
}

func NewRiverLauncher(pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx], runs *repository.PostgresRunStore) *RiverLauncher {
	return &RiverLauncher{pool: pool, riverClient: riverClient, runs: runs}
}

// Launch atomically inserts the production run and its produce_episode job.
func (l *RiverLauncher) Launch(ctx context.Context, run *domain.ProductionRun) error {
	if l.pool == nil || l.riverClient == nil || l.runs == nil {
		return fmt.Errorf("river launcher is not initialized")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin production launch tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.runs.CreateTx(ctx, tx, run); err != nil {
		return err
	}
	if _, err := l.riverClient.InsertTx(ctx, tx, jobs.ProduceEpisodeArgs{RunID: run.ID}, nil); err != nil {
		return fmt.Errorf("enqueue produce_episode for run %s: %w", run.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit production launch tx: %w", err)
	}
	return nil
}

// PoolLauncher runs productions on the generation worker pool. Used when
// no database is configured; runs live in the given store.
type PoolLauncher struct {
	runs     repository.RunStore
	executor *RunExecutor
	pools    *worker.Pools
}

func NewPoolLauncher(runs repository.RunStore, executor *RunExecutor, pools *worker.Pools) *PoolLauncher {
	return &PoolLauncher{runs: runs, executor: executor, pools: pools}
}

func (l *PoolLauncher) Launch(ctx context.Context, run *domain.ProductionRun) error {
	if err := l.runs.Create(ctx, run); err != nil {
		return err
	}
	err := l.pools.SubmitDetached(worker.PoolGeneration, func(ctx context.Context) {
		if err := l.executor.Execute(ctx, run.ID); err != nil {
			logger.Error("production run failed to execute", zap.String("run_id", run.ID), zap.Error(err))
		}
	})
	if err != nil {
		failed := domain.ProductionResult{
			Error:    "production capacity exhausted",
			Progress: domain.Progress{Stage: domain.StageFailed, Progress: 0},
		}
		_ = l.runs.Finish(ctx, run.ID, failed, 0, false)
		return fmt.Errorf("submit production run %s: %w", run.ID, err)
	}
	return nil
}

var (
	_ RunLauncher = (*RiverLauncher)(nil)
	_ RunLauncher = (*PoolLauncher)(nil)
)

// --- Queries ---

// ProductionRuns answers status and progress queries for async runs.
type ProductionRuns struct {
	runs     repository.RunStore
	registry *production.Registry
}

func NewProductionRuns(runs repository.RunStore, registry *production.Registry) *ProductionRuns {
	return &ProductionRuns{runs: runs, registry: registry}
}

// Get returns the run if userID owns it. Other users see not found.
func (q *ProductionRuns) Get(ctx context.Context, userID, runID string) (*domain.ProductionRun, error) {
	run, err := q.runs.Get(ctx, runID)
	if errors.Is(err, repository.ErrRunNotFound) || (err == nil && run.UserID != userID) {
		return nil, apperrors.NotFound(apperrors.CodeProductionNotFound, "production not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "production lookup failed", http.StatusInternalServerError)
	}
	return run, nil
}

// Watch subscribes to a run executing in this process. ok is false when
// the run is not live here; callers then poll Get.
func (q *ProductionRuns) Watch(ctx context.Context, userID, runID string) (events <-chan domain.Progress, cancel func(), ok bool, err error) {
	if _, err := q.Get(ctx, userID, runID); err != nil {
		return nil, nil, false, err
	}
	b, live := q.registry.Get(runID)
	if !live {
		return nil, nil, false, nil
	}
	events, cancel = b.Subscribe()
	return events, cancel, true, nil
}
