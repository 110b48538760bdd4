package credits

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/domain"
)

func seeded(t *testing.T, balance int64) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	_, err := l.EnsureAccount(context.Background(), "u1", balance)
	require.NoError(t, err)
	return l
}

func TestMemoryLedger_DeductSuccess(t *testing.T) {
	l := seeded(t, 100)
	ctx := context.Background()

	before, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	remaining, err := l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 30, Reason: "video", ReferenceID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, before-30, remaining)

	txs, err := l.Transactions(ctx, "u1", 0)
	require.NoError(t, err)
	var generation []domain.CreditTransaction
	for _, tx := range txs {
		if tx.Type == domain.TxGeneration {
			generation = append(generation, tx)
		}
	}
	require.Len(t, generation, 1)
	assert.Equal(t, int64(30), generation[0].Amount)
	assert.Equal(t, "run-1", generation[0].ReferenceID)
}

func TestMemoryLedger_InsufficientLeavesBalance(t *testing.T) {
	l := seeded(t, 10)
	ctx := context.Background()

	_, err := l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 11, Reason: "video"})
	require.Error(t, err)
	var ce *CreditError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CodeInsufficientCredits, ce.Code)
	require.NotNil(t, ce.Remaining)
	assert.Equal(t, int64(10), *ce.Remaining)

	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
	txs, _ := l.Transactions(ctx, "u1", 0)
	assert.Len(t, txs, 1, "only the welcome bonus")
}

func TestMemoryLedger_UnknownAccountIsInsufficient(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Deduct(context.Background(), DeductRequest{UserID: "ghost", Amount: 1})
	assert.True(t, IsCode(err, CodeInsufficientCredits))

	_, err = l.Balance(context.Background(), "ghost")
	assert.True(t, IsCode(err, CodeAccountNotFound))
}

func TestMemoryLedger_DuplicateReference(t *testing.T) {
	l := seeded(t, 100)
	ctx := context.Background()

	_, err := l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 5, ReferenceID: "run-9"})
	require.NoError(t, err)
	_, err = l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 5, ReferenceID: "run-9"})
	assert.True(t, IsCode(err, CodeDuplicate))

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(95), bal)

	// A refund may reuse the reference of the deduction it reverses.
	bal, err = l.Add(ctx, AddRequest{UserID: "u1", Amount: 5, ReferenceID: "run-9", Type: domain.TxRefund})
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)
}

func TestMemoryLedger_InvalidAmount(t *testing.T) {
	l := seeded(t, 10)
	_, err := l.Deduct(context.Background(), DeductRequest{UserID: "u1", Amount: 0})
	assert.True(t, IsCode(err, CodeInvalidAmount))
	_, err = l.Add(context.Background(), AddRequest{UserID: "u1", Amount: -3, Type: domain.TxBonus})
	assert.True(t, IsCode(err, CodeInvalidAmount))
}

func TestMemoryLedger_DeductType(t *testing.T) {
	l := seeded(t, 20)
	ctx := context.Background()

	_, err := l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 4, ReferenceID: "img-1", Type: domain.TxGeneration})
	require.NoError(t, err)

	_, err = l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 4, ReferenceID: "img-2", Type: domain.TxBonus})
	assert.True(t, IsCode(err, CodeInvalidAmount))
	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(16), bal)

	txs, err := l.Transactions(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxGeneration, txs[0].Type)
	assert.Equal(t, "img-1", txs[0].ReferenceID)
}

func TestMemoryLedger_ConcurrentDeductNeverNegative(t *testing.T) {
	l := seeded(t, 50)
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 7}); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int32(7), ok.Load())
	assert.Equal(t, int64(1), bal)
}

func TestMemoryLedger_EnsureAccountIdempotent(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	bal, err := l.EnsureAccount(ctx, "u2", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)
	bal, err = l.EnsureAccount(ctx, "u2", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)

	txs, _ := l.Transactions(ctx, "u2", 10)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxBonus, txs[0].Type)
}

func TestMemoryLedger_TransactionsNewestFirst(t *testing.T) {
	l := seeded(t, 100)
	ctx := context.Background()
	for _, ref := range []string{"a", "b", "c"} {
		_, err := l.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 1, ReferenceID: ref})
		require.NoError(t, err)
	}
	txs, err := l.Transactions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "c", txs[0].ReferenceID)
	assert.Equal(t, "b", txs[1].ReferenceID)
}

func TestCreditError(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := Unavailable(inner)
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "DB_UNAVAILABLE")
	assert.Equal(t, Code(""), CodeOf(inner))
}
