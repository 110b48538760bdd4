package domain

// OutcomeStatus classifies the result of one generation call.
type OutcomeStatus string

const (
	// OutcomeOK: generated and durably persisted.
	OutcomeOK OutcomeStatus = "ok"
	// OutcomeDegraded: generated, but persistence fell back to a
	// temporary or inline URL.
	OutcomeDegraded OutcomeStatus = "degraded"
	// OutcomePending: a prediction is still running after the poll budget.
	OutcomePending OutcomeStatus = "pending"
	// OutcomeFailed: nothing usable was produced.
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome is the single result shape every generation adapter returns.
// Credits is what the call cost; it is zero unless Usable() is true.
type Outcome[T any] struct {
	Status       OutcomeStatus
	Value        T
	Credits      int64
	PredictionID string
	// Err holds the sanitized cause for Failed outcomes and the
	// persistence error for Degraded ones.
	Err error
}

// Usable reports whether the outcome carries an asset the caller can use.
func (o Outcome[T]) Usable() bool {
	return o.Status == OutcomeOK || o.Status == OutcomeDegraded
}

func Succeeded[T any](v T, credits int64) Outcome[T] {
	return Outcome[T]{Status: OutcomeOK, Value: v, Credits: credits}
}

func Degraded[T any](v T, credits int64, cause error) Outcome[T] {
	return Outcome[T]{Status: OutcomeDegraded, Value: v, Credits: credits, Err: cause}
}

func Pending[T any](predictionID string) Outcome[T] {
	return Outcome[T]{Status: OutcomePending, PredictionID: predictionID}
}

func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Status: OutcomeFailed, Err: err}
}
