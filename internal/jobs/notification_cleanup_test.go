package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/riverqueue/river"
)

// recordingExecer captures the statement and answers with a fixed tag.
type recordingExecer struct {
	sql  string
	args []any
	tag  string
	err  error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag(r.tag), nil
}

func fixedNow() time.Time { return time.Date(2026, 5, 20, 8, 30, 0, 0, time.UTC) }

func TestNotificationCleanupArgs(t *testing.T) {
	t.Parallel()

	if got := (NotificationCleanupArgs{}).Kind(); got != "notification_cleanup" {
		t.Fatalf("Kind() = %q", got)
	}
	opts := (NotificationCleanupArgs{}).InsertOpts()
	if opts.MaxAttempts != 1 || opts.UniqueOpts.ByPeriod != 24*time.Hour {
		t.Fatalf("InsertOpts() = %+v, want one attempt unique per day", opts)
	}
}

func TestNotificationCleanupWorkerCleanup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retention  time.Duration
		wantCutoff time.Time
	}{
		{"explicit retention", 7 * 24 * time.Hour, fixedNow().Add(-7 * 24 * time.Hour)},
		{"default retention", 0, fixedNow().Add(-DefaultNotificationRetention)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &recordingExecer{tag: "DELETE 12"}
			w := NewNotificationCleanupWorker(db, tc.retention)
			w.now = fixedNow

			n, err := w.Cleanup(context.Background())
			if err != nil {
				t.Fatalf("Cleanup() error = %v", err)
			}
			if n != 12 {
				t.Fatalf("deleted = %d, want 12", n)
			}
			if !strings.HasPrefix(db.sql, "DELETE FROM notifications") || !strings.Contains(db.sql, "created_at < $1") {
				t.Fatalf("sql = %q", db.sql)
			}
			if len(db.args) != 1 {
				t.Fatalf("args = %v, want only the cutoff", db.args)
			}
			if got, ok := db.args[0].(time.Time); !ok || !got.Equal(tc.wantCutoff) {
				t.Fatalf("cutoff = %v, want %s", db.args[0], tc.wantCutoff)
			}
		})
	}
}

func TestNotificationCleanupWorkerWork(t *testing.T) {
	t.Parallel()

	t.Run("runs a pass", func(t *testing.T) {
		db := &recordingExecer{tag: "DELETE 0"}
		if err := NewNotificationCleanupWorker(db, time.Hour).Work(context.Background(), &river.Job[NotificationCleanupArgs]{}); err != nil {
			t.Fatalf("Work() error = %v", err)
		}
		if db.sql == "" {
			t.Fatal("Work() did not touch the database")
		}
	})

	t.Run("database errors propagate", func(t *testing.T) {
		boom := errors.New("relation notifications does not exist")
		w := NewNotificationCleanupWorker(&recordingExecer{err: boom}, time.Hour)
		w.now = fixedNow
		err := w.Work(context.Background(), nil)
		if !errors.Is(err, boom) {
			t.Fatalf("Work() error = %v, want %v", err, boom)
		}
		if !strings.Contains(err.Error(), "2026-05-20T07:30:00Z") {
			t.Fatalf("Work() error = %q, want the cutoff in it", err)
		}
	})

	t.Run("without a database", func(t *testing.T) {
		var nilWorker *NotificationCleanupWorker
		for _, w := range []*NotificationCleanupWorker{nilWorker, NewNotificationCleanupWorker(nil, time.Hour)} {
			if err := w.Work(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "not initialized") {
				t.Fatalf("Work() error = %v, want not initialized", err)
			}
		}
	})
}
