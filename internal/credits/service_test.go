package credits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/domain"
)

// flakyLedger fails deductions with DB_UNAVAILABLE while down is set.
type flakyLedger struct {
	*MemoryLedger
	mu   sync.Mutex
	down bool
}

func (f *flakyLedger) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *flakyLedger) Deduct(ctx context.Context, req DeductRequest) (int64, error) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return 0, Unavailable(errors.New("connection refused"))
	}
	return f.MemoryLedger.Deduct(ctx, req)
}

type capturePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestService_BalanceOpensAccount(t *testing.T) {
	svc := NewService(NewMemoryLedger(), nil, 40)
	bal, err := svc.Balance(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)
}

func TestService_DeductEmitsEvent(t *testing.T) {
	events := domain.NewEventDispatcher()
	var seen []domain.EventType
	events.Register(func(_ context.Context, e *domain.DomainEvent) error {
		seen = append(seen, e.EventType)
		return nil
	}, domain.EventCreditsDeducted)

	svc := NewService(NewMemoryLedger(), events, 20)
	ctx := context.Background()
	_, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)

	remaining, err := svc.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 5, Reason: "image"})
	require.NoError(t, err)
	assert.Equal(t, int64(15), remaining)
	assert.Equal(t, []domain.EventType{domain.EventCreditsDeducted}, seen)

	_, err = svc.Deduct(ctx, DeductRequest{UserID: "u1", Amount: 0})
	assert.True(t, IsCode(err, CodeInvalidAmount))
}

func TestService_Grant(t *testing.T) {
	svc := NewService(NewMemoryLedger(), nil, 0)
	ctx := context.Background()

	bal, err := svc.Grant(ctx, "admin", AddRequest{UserID: "u1", Amount: 30, Type: domain.TxBonus, Reason: "launch promo"})
	require.NoError(t, err)
	assert.Equal(t, int64(30), bal)

	_, err = svc.Grant(ctx, "admin", AddRequest{UserID: "u1", Amount: 30, Type: domain.TxGeneration})
	assert.True(t, IsCode(err, CodeInvalidAmount))

	txs, err := svc.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestReconciler_LocalQueueRetriesUntilLedgerRecovers(t *testing.T) {
	ledger := &flakyLedger{MemoryLedger: NewMemoryLedger()}
	svc := NewService(ledger, nil, 0)
	ctx := context.Background()
	_, err := svc.Grant(ctx, "admin", AddRequest{UserID: "u1", Amount: 50, Type: domain.TxBonus})
	require.NoError(t, err)

	r := NewReconciler(svc, nil)
	ledger.setDown(true)
	r.Defer(ctx, Deferred{UserID: "u1", Amount: 12, Reason: "episode", ReferenceID: "run-1"})
	require.Equal(t, 1, r.Pending())

	r.RetryPending(ctx)
	assert.Equal(t, 1, r.Pending(), "still down")

	ledger.setDown(false)
	r.RetryPending(ctx)
	assert.Equal(t, 0, r.Pending())
	bal, _ := ledger.Balance(ctx, "u1")
	assert.Equal(t, int64(38), bal)

	// Replays of the same reference are absorbed.
	require.NoError(t, r.Apply(ctx, Deferred{UserID: "u1", Amount: 12, ReferenceID: "run-1"}))
	bal, _ = ledger.Balance(ctx, "u1")
	assert.Equal(t, int64(38), bal)
}

func TestReconciler_WritesOffInsufficient(t *testing.T) {
	svc := NewService(NewMemoryLedger(), nil, 3)
	ctx := context.Background()
	_, _ = svc.Balance(ctx, "u1")

	r := NewReconciler(svc, nil)
	require.NoError(t, r.Apply(ctx, Deferred{UserID: "u1", Amount: 10, ReferenceID: "run-2"}))
	bal, _ := svc.Balance(ctx, "u1")
	assert.Equal(t, int64(3), bal)
}

func TestReconciler_AbandonsAfterMaxAttempts(t *testing.T) {
	ledger := &flakyLedger{MemoryLedger: NewMemoryLedger(), down: true}
	r := NewReconciler(NewService(ledger, nil, 0), nil)
	r.maxAttempts = 2
	ctx := context.Background()

	r.Enqueue(Deferred{UserID: "u1", Amount: 1, ReferenceID: "x"})
	r.RetryPending(ctx)
	assert.Equal(t, 1, r.Pending())
	r.RetryPending(ctx)
	assert.Equal(t, 0, r.Pending())
}

func TestReconciler_PublishesWhenBusConfigured(t *testing.T) {
	pub := &capturePublisher{}
	r := NewReconciler(NewService(NewMemoryLedger(), nil, 0), pub)

	r.Defer(context.Background(), Deferred{UserID: "u1", Amount: 4, ReferenceID: "run-3"})
	require.Len(t, pub.subjects, 1)
	assert.Equal(t, SubjectDeferred, pub.subjects[0])
	assert.Contains(t, string(pub.payloads[0]), `"reference_id":"run-3"`)
	assert.Equal(t, 0, r.Pending())

	pub.err = errors.New("nats: connection closed")
	r.Defer(context.Background(), Deferred{UserID: "u1", Amount: 4, ReferenceID: "run-4"})
	assert.Equal(t, 1, r.Pending())
}
