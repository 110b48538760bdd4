package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/testutil"
)

func migratedPool(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()
	pool := testutil.OpenPGXPool(t, prefix)
	require.NoError(t, MigratePool(context.Background(), pool, "up"))
	return pool
}

func TestPostgresLedger_Deduct(t *testing.T) {
	ctx := context.Background()
	ledger := NewPostgresLedger(migratedPool(t, "ledger_deduct"))

	before, err := ledger.EnsureAccount(ctx, "u1", 50)
	require.NoError(t, err)
	require.Equal(t, int64(50), before)

	after, err := ledger.Deduct(ctx, credits.DeductRequest{UserID: "u1", Amount: 12, Reason: "video", ReferenceID: "gen-1"})
	require.NoError(t, err)
	assert.Equal(t, before-12, after)

	txs, err := ledger.Transactions(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(12), txs[0].Amount)
	assert.Equal(t, domain.TxGeneration, txs[0].Type)
	assert.Equal(t, domain.TxBonus, txs[1].Type)

	t.Run("insufficient leaves balance unchanged", func(t *testing.T) {
		_, err := ledger.Deduct(ctx, credits.DeductRequest{UserID: "u1", Amount: 1000, Reason: "video"})
		require.True(t, credits.IsCode(err, credits.CodeInsufficientCredits), err)
		bal, err := ledger.Balance(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, after, bal)
	})

	t.Run("duplicate reference is rejected", func(t *testing.T) {
		_, err := ledger.Deduct(ctx, credits.DeductRequest{UserID: "u1", Amount: 12, Reason: "video", ReferenceID: "gen-1"})
		require.True(t, credits.IsCode(err, credits.CodeDuplicate), err)
		bal, _ := ledger.Balance(ctx, "u1")
		assert.Equal(t, after, bal)
	})

	t.Run("unknown account is insufficient", func(t *testing.T) {
		_, err := ledger.Deduct(ctx, credits.DeductRequest{UserID: "ghost", Amount: 1, Reason: "x"})
		require.True(t, credits.IsCode(err, credits.CodeInsufficientCredits), err)
	})

	t.Run("ensure account is idempotent", func(t *testing.T) {
		bal, err := ledger.EnsureAccount(ctx, "u1", 50)
		require.NoError(t, err)
		assert.Equal(t, after, bal)
	})
}

func TestPostgresLedger_ConcurrentDeductsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	ledger := NewPostgresLedger(migratedPool(t, "ledger_concurrent"))
	_, err := ledger.EnsureAccount(ctx, "u1", 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Deduct(ctx, credits.DeductRequest{UserID: "u1", Amount: 1, Reason: "image"}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	bal, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestPostgresLedger_Add(t *testing.T) {
	ctx := context.Background()
	ledger := NewPostgresLedger(migratedPool(t, "ledger_add"))

	bal, err := ledger.Add(ctx, credits.AddRequest{UserID: "u2", Amount: 25, Reason: "promo", ReferenceID: "promo-1", Type: domain.TxBonus})
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)

	_, err = ledger.Add(ctx, credits.AddRequest{UserID: "u2", Amount: 25, Reason: "promo", ReferenceID: "promo-1", Type: domain.TxBonus})
	assert.True(t, credits.IsCode(err, credits.CodeDuplicate))

	// Same reference, other direction is a separate entry.
	bal, err = ledger.Add(ctx, credits.AddRequest{UserID: "u2", Amount: 5, Reason: "refund", ReferenceID: "promo-1", Type: domain.TxRefund})
	require.NoError(t, err)
	assert.Equal(t, int64(30), bal)

	_, err = ledger.Balance(ctx, "nobody")
	assert.True(t, credits.IsCode(err, credits.CodeAccountNotFound))
}

func TestPostgresLedger_UnavailableDatabase(t *testing.T) {
	pool := migratedPool(t, "ledger_closed")
	ledger := NewPostgresLedger(pool)
	pool.Close()

	_, err := ledger.Deduct(context.Background(), credits.DeductRequest{UserID: "u1", Amount: 1, Reason: "x"})
	assert.True(t, credits.IsCode(err, credits.CodeDBUnavailable), err)
}

func runStores(t *testing.T) map[string]RunStore {
	stores := map[string]RunStore{"memory": NewMemoryRunStore()}
	if testutil.DSN() != "" {
		stores["postgres"] = NewPostgresRunStore(migratedPool(t, "runs"))
	}
	return stores
}

func TestRunStores(t *testing.T) {
	for name, store := range runStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := &domain.ProductionRun{
				ID:        uuid.NewString(),
				UserID:    "u1",
				ProjectID: "p1",
				Status:    domain.RunQueued,
				Request:   domain.ProductionRequest{ProjectID: "p1", Prompt: "storm", UserID: "u1"},
			}
			require.NoError(t, store.Create(ctx, run))

			got, err := store.Get(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.RunQueued, got.Status)
			assert.Equal(t, "storm", got.Request.Prompt)
			assert.Equal(t, "u1", got.Request.UserID)
			assert.Nil(t, got.Result)

			p := domain.Progress{Stage: domain.StageGeneratingVideo, Progress: 30}
			require.NoError(t, store.UpdateProgress(ctx, run.ID, domain.RunRunning, p))
			got, _ = store.Get(ctx, run.ID)
			assert.Equal(t, domain.RunRunning, got.Status)
			assert.Equal(t, 30, got.Progress.Progress)

			result := domain.ProductionResult{
				Success:     true,
				VideoURL:    "https://cdn.test/v.mp4",
				CreditsUsed: 10,
				Progress:    domain.Progress{Stage: domain.StageComplete, Progress: 100},
			}
			require.NoError(t, store.Finish(ctx, run.ID, result, 10, false))
			got, _ = store.Get(ctx, run.ID)
			assert.Equal(t, domain.RunComplete, got.Status)
			require.NotNil(t, got.Result)
			assert.Equal(t, "https://cdn.test/v.mp4", got.Result.VideoURL)
			assert.Equal(t, int64(10), got.CreditsCharged)

			// Finished runs ignore late progress.
			require.NoError(t, store.UpdateProgress(ctx, run.ID, domain.RunRunning, p))
			got, _ = store.Get(ctx, run.ID)
			assert.Equal(t, domain.RunComplete, got.Status)

			n, err := store.DeleteFinishedBefore(ctx, time.Now().Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			_, err = store.Get(ctx, run.ID)
			assert.ErrorIs(t, err, ErrRunNotFound)

			assert.ErrorIs(t, store.Finish(ctx, uuid.NewString(), result, 0, false), ErrRunNotFound)
		})
	}
}
