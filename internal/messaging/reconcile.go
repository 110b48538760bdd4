package messaging

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/pkg/logger"
)

// DefaultQueueGroup load-balances deferred deductions across instances.
const DefaultQueueGroup = "halcyon-credits"

// ReconcileHandler consumes credits.deferred and applies each deduction.
// Messages that still fail go to the reconciler's local retry queue.
type ReconcileHandler struct {
	rec   *credits.Reconciler
	nc    *nats.Conn
	group string
	sub   *nats.Subscription
}

func NewReconcileHandler(rec *credits.Reconciler, nc *nats.Conn, group string) *ReconcileHandler {
	if group == "" {
		group = DefaultQueueGroup
	}
	return &ReconcileHandler{rec: rec, nc: nc, group: group}
}

// Start subscribes and blocks until ctx is cancelled, then drains.
func (h *ReconcileHandler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(credits.SubjectDeferred, h.group, func(m *nats.Msg) {
		h.handle(ctx, m.Data)
	})
	if err != nil {
		return err
	}
	h.sub = sub
	logger.Info("credit reconciliation consumer running", zap.String("queue_group", h.group))

	<-ctx.Done()
	logger.Info("credit reconciliation consumer draining")
	_ = sub.Drain()
	return nil
}

func (h *ReconcileHandler) handle(ctx context.Context, data []byte) {
	var d credits.Deferred
	if err := json.Unmarshal(data, &d); err != nil {
		logger.Error("nats: failed to unmarshal deferred deduction", zap.Error(err))
		return
	}
	if err := h.rec.Apply(ctx, d); err != nil {
		logger.Warn("deferred deduction still failing, queued for retry",
			zap.String("reference_id", d.ReferenceID),
			zap.Error(err),
		)
		d.Attempts++
		h.rec.Enqueue(d)
	}
}
