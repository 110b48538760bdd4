package credits

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/pkg/worker"
)

// SubjectDeferred is the message subject for owed deductions.
const SubjectDeferred = "credits.deferred"

// DefaultMaxAttempts bounds local retries of one deferred deduction.
const DefaultMaxAttempts = 20

// Deferred is a deduction owed for output already delivered.
type Deferred struct {
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Reason      string    `json:"reason"`
	ReferenceID string    `json:"reference_id"`
	Attempts    int       `json:"attempts"`
	DeferredAt  time.Time `json:"deferred_at"`
}

// Publisher sends a message on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Reconciler collects deductions that failed with DB_UNAVAILABLE after
// generation and applies them once the ledger is reachable. Until then
// the user holds output that was not billed.
type Reconciler struct {
	svc         *Service
	pub         Publisher
	maxAttempts int

	mu    sync.Mutex
	queue []Deferred
}

// NewReconciler creates a Reconciler. With a nil Publisher, deferred
// deductions stay in the local queue.
func NewReconciler(svc *Service, pub Publisher) *Reconciler {
	return &Reconciler{svc: svc, pub: pub, maxAttempts: DefaultMaxAttempts}
}

// Defer records an owed deduction.
func (r *Reconciler) Defer(ctx context.Context, d Deferred) {
	if d.DeferredAt.IsZero() {
		d.DeferredAt = time.Now().UTC()
	}
	logger.Error("credit reconciliation gap: output delivered without deduction",
		zap.String("user_id", d.UserID),
		zap.Int64("amount", d.Amount),
		zap.String("reference_id", d.ReferenceID),
	)
	r.svc.EmitDeferred(ctx, d)

	if r.pub != nil {
		data, err := json.Marshal(d)
		if err == nil {
			if err = r.pub.Publish(SubjectDeferred, data); err == nil {
				return
			}
		}
		logger.Warn("deferred deduction publish failed, queueing locally",
			zap.String("reference_id", d.ReferenceID),
			zap.Error(err),
		)
	}
	r.Enqueue(d)
}

// Enqueue adds d to the local retry queue.
func (r *Reconciler) Enqueue(d Deferred) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, d)
}

// Apply tries to record d. It returns an error only when a retry may
// succeed; insufficient balance writes the amount off.
func (r *Reconciler) Apply(ctx context.Context, d Deferred) error {
	_, err := r.svc.Deduct(ctx, DeductRequest{
		UserID:      d.UserID,
		Amount:      d.Amount,
		Reason:      d.Reason,
		ReferenceID: d.ReferenceID,
	})
	switch CodeOf(err) {
	case "":
		if err != nil {
			return err
		}
		logger.Info("deferred deduction reconciled",
			zap.String("user_id", d.UserID),
			zap.String("reference_id", d.ReferenceID),
			zap.Int("attempts", d.Attempts+1),
		)
		return nil
	case CodeDuplicate:
		return nil
	case CodeInsufficientCredits, CodeInvalidAmount:
		logger.Error("deferred deduction written off",
			zap.String("user_id", d.UserID),
			zap.Int64("amount", d.Amount),
			zap.String("reference_id", d.ReferenceID),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}

// RetryPending applies every queued deduction once, keeping the ones
// that still fail until they exhaust their attempts.
func (r *Reconciler) RetryPending(ctx context.Context) {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	var keep []Deferred
	for _, d := range batch {
		if err := r.Apply(ctx, d); err != nil {
			d.Attempts++
			if d.Attempts >= r.maxAttempts {
				logger.Error("deferred deduction abandoned",
					zap.String("user_id", d.UserID),
					zap.Int64("amount", d.Amount),
					zap.String("reference_id", d.ReferenceID),
					zap.Error(err),
				)
				continue
			}
			keep = append(keep, d)
		}
	}
	if len(keep) > 0 {
		r.mu.Lock()
		r.queue = append(keep, r.queue...)
		r.mu.Unlock()
	}
}

// Pending returns the number of locally queued deductions.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Start retries the local queue every interval until the pools shut down.
func (r *Reconciler) Start(pools *worker.Pools, interval time.Duration) error {
	return pools.Every("credit-reconcile", interval, r.RetryPending)
}
