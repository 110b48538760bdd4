// Package messaging carries deferred credit deductions, production
// progress and domain events over NATS.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"halcyon.studio/cinema/internal/domain"
)

// Publisher sends a message on a subject. *Bus implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bus publishes on a NATS connection.
type Bus struct {
	nc *nats.Conn
}

func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

func (b *Bus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// EventSubject is the subject a domain event type is published on.
func EventSubject(t domain.EventType) string {
	return "halcyon.events." + string(t)
}

// EventHandler returns a dispatcher handler that mirrors domain events
// onto the bus.
func EventHandler(pub Publisher) domain.EventHandler {
	return func(_ context.Context, event *domain.DomainEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		return pub.Publish(EventSubject(event.EventType), data)
	}
}
