package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// DefaultRunRetention keeps finished production runs for 30 days.
const DefaultRunRetention = 30 * 24 * time.Hour

// ProductionRunCleanupArgs is a periodic maintenance job that removes
// finished production runs past retention.
type ProductionRunCleanupArgs struct{}

// Kind returns the job kind identifier for production run cleanup.
func (ProductionRunCleanupArgs) Kind() string { return "production_run_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued per hour.
func (ProductionRunCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// FinishedRunDeleter is satisfied by repository.RunStore.
type FinishedRunDeleter interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProductionRunCleanupWorker deletes complete and failed runs older than
// the retention.
type ProductionRunCleanupWorker struct {
	river.WorkerDefaults[ProductionRunCleanupArgs]
	runs      FinishedRunDeleter
	retention time.Duration
	now       func() time.Time
}

// NewProductionRunCleanupWorker creates a cleanup worker. Non-positive
// retention falls back to the 30-day default.
func NewProductionRunCleanupWorker(runs FinishedRunDeleter, retention time.Duration) *ProductionRunCleanupWorker {
	if retention <= 0 {
		retention = DefaultRunRetention
	}
	return &ProductionRunCleanupWorker{runs: runs, retention: retention, now: time.Now}
}

// Work removes expired runs.
func (w *ProductionRunCleanupWorker) Work(ctx context.Context, _ *river.Job[ProductionRunCleanupArgs]) error {
	if w == nil || w.runs == nil {
		return fmt.Errorf("production run cleanup worker is not initialized")
	}
	_, err := w.Cleanup(ctx)
	return err
}

// Cleanup runs one retention pass. It is also scheduled on the worker
// pool when River is not in use.
func (w *ProductionRunCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().UTC().Add(-w.retention)
	deleted, err := w.runs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished production runs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	logger.Info("production run cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return deleted, nil
}
