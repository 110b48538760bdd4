package messaging

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/pkg/worker"
	"halcyon.studio/cinema/internal/production"
)

// ProgressSubject is the subject carrying one run's progress events.
func ProgressSubject(runID string) string {
	return "production.progress." + runID
}

// ProgressEvent is the message published per progress update.
type ProgressEvent struct {
	RunID string `json:"runId"`
	domain.Progress
}

// ProgressForwarder relays a run's broker onto the bus.
type ProgressForwarder struct {
	pub   Publisher
	pools *worker.Pools
}

func NewProgressForwarder(pub Publisher, pools *worker.Pools) *ProgressForwarder {
	return &ProgressForwarder{pub: pub, pools: pools}
}

// Forward subscribes to b and publishes until b closes. The relay runs on
// the general worker pool.
func (f *ProgressForwarder) Forward(runID string, b *production.Broker) error {
	events, cancel := b.Subscribe()
	err := f.pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		defer cancel()
		f.relay(ctx, runID, events)
	})
	if err != nil {
		cancel()
	}
	return err
}

func (f *ProgressForwarder) relay(ctx context.Context, runID string, events <-chan domain.Progress) {
	subject := ProgressSubject(runID)
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ProgressEvent{RunID: runID, Progress: p})
			if err != nil {
				continue
			}
			if err := f.pub.Publish(subject, data); err != nil {
				logger.Warn("progress publish failed", zap.String("run_id", runID), zap.Error(err))
			}
		}
	}
}
