package production

import "sync"

// Registry tracks the brokers of runs executing in this process.
type Registry struct {
	mu      sync.RWMutex
	brokers map[string]*Broker
}

func NewRegistry() *Registry {
	return &Registry{brokers: make(map[string]*Broker)}
}

// Open creates and registers a broker for runID.
func (r *Registry) Open(runID string) *Broker {
	b := NewBroker()
	r.mu.Lock()
	r.brokers[runID] = b
	r.mu.Unlock()
	return b
}

// Get returns the live broker for runID, if the run executes here.
func (r *Registry) Get(runID string) (*Broker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.brokers[runID]
	return b, ok
}

// Close closes and forgets the broker for runID.
func (r *Registry) Close(runID string) {
	r.mu.Lock()
	b, ok := r.brokers[runID]
	delete(r.brokers, runID)
	r.mu.Unlock()
	if ok {
		b.Close()
	}
}
