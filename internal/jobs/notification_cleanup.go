package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// DefaultNotificationRetention keeps inbox notifications for 90 days.
const DefaultNotificationRetention = 90 * 24 * time.Hour

const sqlDeleteExpiredNotifications = `DELETE FROM notifications WHERE created_at < $1`

// NotificationCleanupArgs is the daily job that prunes the production
// and credit notifications inbox.
type NotificationCleanupArgs struct{}

// Kind returns the job kind identifier for notification cleanup.
func (NotificationCleanupArgs) Kind() string { return "notification_cleanup" }

// InsertOpts keeps at most one cleanup job per day.
func (NotificationCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NotificationCleanupWorker deletes notifications past retention.
type NotificationCleanupWorker struct {
	river.WorkerDefaults[NotificationCleanupArgs]
	db        Execer
	retention time.Duration
	now       func() time.Time
}

// NewNotificationCleanupWorker creates a cleanup worker. Non-positive
// retention falls back to DefaultNotificationRetention.
func NewNotificationCleanupWorker(db Execer, retention time.Duration) *NotificationCleanupWorker {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &NotificationCleanupWorker{db: db, retention: retention, now: time.Now}
}

// Work runs one retention pass.
func (w *NotificationCleanupWorker) Work(ctx context.Context, _ *river.Job[NotificationCleanupArgs]) error {
	if w == nil || w.db == nil {
		return fmt.Errorf("notification cleanup worker is not initialized")
	}
	_, err := w.Cleanup(ctx)
	return err
}

// Cleanup deletes notifications created before now minus retention and
// returns how many rows went.
func (w *NotificationCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().UTC().Add(-w.retention)
	tag, err := w.db.Exec(ctx, sqlDeleteExpiredNotifications, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	logger.Info("notification cleanup completed",
		zap.Int64("deleted_rows", tag.RowsAffected()),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	return tag.RowsAffected(), nil
}
