package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/repository"
)

// ProduceEpisodeArgs carries only the run ID; the request is stored on
// the production_runs row.
type ProduceEpisodeArgs struct {
	RunID string `json:"run_id"`
}

// Kind returns the job kind identifier for episode production.
func (ProduceEpisodeArgs) Kind() string { return "produce_episode" }

// InsertOpts runs each production at most once. Provider calls are paid
// for, so a crashed run is not repeated automatically.
func (ProduceEpisodeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// RunExecutor executes one stored production run.
type RunExecutor interface {
	Execute(ctx context.Context, runID string) error
}

// ProduceEpisodeWorker executes queued productions.
type ProduceEpisodeWorker struct {
	river.WorkerDefaults[ProduceEpisodeArgs]
	executor RunExecutor
}

func NewProduceEpisodeWorker(executor RunExecutor) *ProduceEpisodeWorker {
	return &ProduceEpisodeWorker{executor: executor}
}

// Work runs the production. A run row that no longer exists cancels the
// job instead of retrying it.
func (w *ProduceEpisodeWorker) Work(ctx context.Context, job *river.Job[ProduceEpisodeArgs]) error {
	if w == nil || w.executor == nil {
		return fmt.Errorf("produce episode worker is not initialized")
	}
	runID := job.Args.RunID
	if err := w.executor.Execute(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			logger.Warn("production run vanished before execution", zap.String("run_id", runID))
			return river.JobCancel(err)
		}
		return err
	}
	return nil
}
