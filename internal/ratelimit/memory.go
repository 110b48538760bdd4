package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in process memory. Counters are not shared
// between instances and are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Hit(_ context.Context, key string, max int, window time.Duration, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return Decision{Allowed: true, Remaining: max - 1, ResetAt: e.resetAt}, nil
	}
	if e.count < max {
		e.count++
		return Decision{Allowed: true, Remaining: max - e.count, ResetAt: e.resetAt}, nil
	}
	return Decision{Allowed: false, Remaining: 0, ResetAt: e.resetAt, RetryAfter: e.resetAt.Sub(now)}, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// count returns the stored count for key, or -1 when absent.
func (s *MemoryStore) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.count
	}
	return -1
}
