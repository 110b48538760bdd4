package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"halcyon.studio/cinema/internal/domain"
)

// ErrRunNotFound is returned for unknown production run IDs.
var ErrRunNotFound = errors.New("production run not found")

// RunStore persists asynchronous production runs.
type RunStore interface {
	Create(ctx context.Context, run *domain.ProductionRun) error
	Get(ctx context.Context, id string) (*domain.ProductionRun, error)
	// UpdateProgress only touches runs that have not finished.
	UpdateProgress(ctx context.Context, id string, status domain.RunStatus, p domain.Progress) error
	// Finish stores the result; the status follows result.Success.
	Finish(ctx context.Context, id string, result domain.ProductionResult, charged int64, creditsPending bool) error
	// DeleteFinishedBefore removes complete and failed runs last updated before cutoff.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func finishedStatus(result domain.ProductionResult) domain.RunStatus {
	if result.Success {
		return domain.RunComplete
	}
	return domain.RunFailed
}

// --- PostgreSQL ---

// PostgresRunStore keeps runs in production_runs.
type PostgresRunStore struct {
	db DB
}

func NewPostgresRunStore(db DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const sqlInsertRun = `
INSERT INTO production_runs (id, user_id, project_id, status, progress, request, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

func (s *PostgresRunStore) Create(ctx context.Context, run *domain.ProductionRun) error {
	return insertRun(ctx, s.db, run)
}

// CreateTx inserts the run inside the caller's transaction, so it can
// commit together with the job that will execute it.
func (s *PostgresRunStore) CreateTx(ctx context.Context, tx pgx.Tx, run *domain.ProductionRun) error {
	return insertRun(ctx, tx, run)
}

func insertRun(ctx context.Context, db execer, run *domain.ProductionRun) error {
	progress, err := json.Marshal(run.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	request, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.UpdatedAt = run.CreatedAt
	if _, err := db.Exec(ctx, sqlInsertRun, run.ID, run.UserID, run.ProjectID, string(run.Status), progress, request, run.CreatedAt); err != nil {
		return fmt.Errorf("insert production run: %w", err)
	}
	return nil
}

const sqlGetRun = `
SELECT id::text, user_id, project_id, status, progress, request, result,
       credits_charged, credits_pending, error, created_at, updated_at
  FROM production_runs
 WHERE id = $1`

func (s *PostgresRunStore) Get(ctx context.Context, id string) (*domain.ProductionRun, error) {
	var (
		run                       domain.ProductionRun
		status                    string
		progress, request, result []byte
	)
	err := s.db.QueryRow(ctx, sqlGetRun, id).Scan(
		&run.ID, &run.UserID, &run.ProjectID, &status, &progress, &request, &result,
		&run.CreditsCharged, &run.CreditsPending, &run.Error, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get production run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal(progress, &run.Progress); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	if err := json.Unmarshal(request, &run.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	run.Request.UserID = run.UserID
	if len(result) > 0 {
		run.Result = &domain.ProductionResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &run, nil
}

const sqlUpdateRunProgress = `
UPDATE production_runs
   SET status = $2, progress = $3, updated_at = now()
 WHERE id = $1 AND status IN ('queued', 'running')`

func (s *PostgresRunStore) UpdateProgress(ctx context.Context, id string, status domain.RunStatus, p domain.Progress) error {
	progress, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if _, err := s.db.Exec(ctx, sqlUpdateRunProgress, id, string(status), progress); err != nil {
		return fmt.Errorf("update production run progress: %w", err)
	}
	return nil
}

const sqlFinishRun = `
UPDATE production_runs
   SET status = $2, progress = $3, result = $4, credits_charged = $5,
       credits_pending = $6, error = $7, updated_at = now()
 WHERE id = $1`

func (s *PostgresRunStore) Finish(ctx context.Context, id string, result domain.ProductionResult, charged int64, creditsPending bool) error {
	progress, err := json.Marshal(result.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tag, err := s.db.Exec(ctx, sqlFinishRun, id, string(finishedStatus(result)), progress, encoded, charged, creditsPending, result.Error)
	if err != nil {
		return fmt.Errorf("finish production run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

const sqlDeleteFinishedRuns = `
DELETE FROM production_runs
 WHERE status IN ('complete', 'failed') AND updated_at < $1`

func (s *PostgresRunStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, sqlDeleteFinishedRuns, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished production runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Memory ---

// MemoryRunStore keeps runs in process memory when no database is configured.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.ProductionRun
	now  func() time.Time
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*domain.ProductionRun), now: time.Now}
}

func (s *MemoryRunStore) Create(_ context.Context, run *domain.ProductionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("production run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	run.UpdatedAt = run.CreatedAt
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemoryRunStore) Get(_ context.Context, id string) (*domain.ProductionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	if run.Result != nil {
		res := *run.Result
		cp.Result = &res
	}
	return &cp, nil
}

func (s *MemoryRunStore) UpdateProgress(_ context.Context, id string, status domain.RunStatus, p domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if run.Status != domain.RunQueued && run.Status != domain.RunRunning {
		return nil
	}
	run.Status, run.Progress, run.UpdatedAt = status, p, s.now().UTC()
	return nil
}

func (s *MemoryRunStore) Finish(_ context.Context, id string, result domain.ProductionResult, charged int64, creditsPending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	res := result
	run.Status = finishedStatus(result)
	run.Progress = result.Progress
	run.Result = &res
	run.CreditsCharged = charged
	run.CreditsPending = creditsPending
	run.Error = result.Error
	run.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryRunStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, run := range s.runs {
		if (run.Status == domain.RunComplete || run.Status == domain.RunFailed) && run.UpdatedAt.Before(cutoff) {
			delete(s.runs, id)
			deleted++
		}
	}
	return deleted, nil
}

var (
	_ RunStore = (*PostgresRunStore)(nil)
	_ RunStore = (*MemoryRunStore)(nil)
)
