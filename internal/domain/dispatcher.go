package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher routes domain events to registered handlers.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register registers a handler for one or more event types.
func (d *EventDispatcher) Register(handler EventHandler, eventTypes ...EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, et := range eventTypes {
		d.handlers[et] = append(d.handlers[et], handler)
	}
}

// Emit builds an event and dispatches it. Handler failures are logged
// and never reach the caller: events describe work that already happened.
func (d *EventDispatcher) Emit(ctx context.Context, eventType EventType, aggregateType, aggregateID, actor string, payload any) {
	if d == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Event payload encode failed", zap.String("event_type", string(eventType)), zap.Error(err))
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	_ = d.Dispatch(ctx, &DomainEvent{
		EventID:       id.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Actor:         actor,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	})
}

// Dispatch calls every handler registered for the event type in order.
// A failing handler does not stop the rest; the first error is returned.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("No handlers registered for event type",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.EventID),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}

	return firstErr
}
