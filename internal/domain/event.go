package domain

import (
	"encoding/json"
	"time"
)

// EventType defines the type of domain event.
type EventType string

const (
	EventProductionRequested EventType = "PRODUCTION_REQUESTED"
	EventProductionCompleted EventType = "PRODUCTION_COMPLETED"
	EventProductionFailed    EventType = "PRODUCTION_FAILED"

	EventCreditsDeducted EventType = "CREDITS_DEDUCTED"
	// EventCreditsDeferred marks output delivered while the ledger was
	// unreachable; the deduction is owed and handed to reconciliation.
	EventCreditsDeferred EventType = "CREDITS_DEFERRED"
	EventCreditsGranted  EventType = "CREDITS_GRANTED"
)

// DomainEvent is an immutable record of something that happened.
type DomainEvent struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Actor         string          `json:"actor"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ProductionPayload accompanies production lifecycle events.
type ProductionPayload struct {
	RunID       string `json:"run_id,omitempty"`
	ProjectID   string `json:"project_id"`
	Success     bool   `json:"success"`
	CreditsUsed int64  `json:"credits_used"`
	Error       string `json:"error,omitempty"`
}

// CreditsPayload accompanies credit events.
type CreditsPayload struct {
	Amount      int64           `json:"amount"`
	Type        TransactionType `json:"type"`
	Reason      string          `json:"reason"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Remaining   *int64          `json:"remaining,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e *DomainEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
