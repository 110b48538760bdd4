package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/worker"
	"halcyon.studio/cinema/internal/production"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{subject, data})
	return nil
}

func (f *fakePublisher) snapshot() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.msgs...)
}

func TestEventHandler(t *testing.T) {
	pub := &fakePublisher{}
	d := domain.NewEventDispatcher()
	d.Register(EventHandler(pub), domain.EventCreditsGranted)

	d.Emit(context.Background(), domain.EventCreditsGranted, "user", "u1", "admin", domain.CreditsPayload{Amount: 5, Type: domain.TxBonus})

	msgs := pub.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "halcyon.events.CREDITS_GRANTED", msgs[0].subject)
	var ev domain.DomainEvent
	require.NoError(t, json.Unmarshal(msgs[0].data, &ev))
	assert.Equal(t, "u1", ev.AggregateID)
}

func TestProgressForwarder(t *testing.T) {
	pools, err := worker.NewPools(context.Background(), worker.DefaultPoolConfig())
	require.NoError(t, err)
	defer pools.Shutdown()

	pub := &fakePublisher{}
	b := production.NewBroker()
	require.NoError(t, NewProgressForwarder(pub, pools).Forward("run-1", b))

	b.Publish(domain.Progress{Stage: domain.StageInitializing, Progress: 0})
	b.Publish(domain.Progress{Stage: domain.StageComplete, Progress: 100})
	b.Close()

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	msgs := pub.snapshot()
	assert.Equal(t, "production.progress.run-1", msgs[1].subject)
	var ev ProgressEvent
	require.NoError(t, json.Unmarshal(msgs[1].data, &ev))
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, domain.StageComplete, ev.Stage)
	assert.Equal(t, 100, ev.Progress.Progress)
}

func TestReconcileHandler_Handle(t *testing.T) {
	ledger := credits.NewMemoryLedger()
	svc := credits.NewService(ledger, nil, 10)
	_, err := svc.Balance(context.Background(), "u1")
	require.NoError(t, err)
	rec := credits.NewReconciler(svc, nil)
	h := NewReconcileHandler(rec, nil, "")

	data, _ := json.Marshal(credits.Deferred{UserID: "u1", Amount: 4, Reason: "video", ReferenceID: "run-1"})
	h.handle(context.Background(), data)
	h.handle(context.Background(), data)
	h.handle(context.Background(), []byte("{not json"))

	bal, err := svc.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), bal)
	assert.Equal(t, 0, rec.Pending())
}
