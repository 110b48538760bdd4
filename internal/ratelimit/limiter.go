// Package ratelimit implements fixed-window request limiting keyed by an
// identifier such as "ip:<addr>:<endpoint>" or "user:<id>:<feature>".
//
// The first hit for a key opens a window of the configured length. Hits
// inside the window are counted up to the maximum; further hits are denied
// without touching the counter. Once the window has elapsed the next hit
// opens a fresh window.
//
// The limiter never fails a request because of its own storage: store
// errors are logged and the hit is allowed.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/pkg/worker"
)

// DefaultSweepInterval is how often expired windows are purged.
const DefaultSweepInterval = 60 * time.Second

// Clock returns the current time.
type Clock func() time.Time

// Decision is the verdict for one hit.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// RetryAfter is zero when Allowed.
	RetryAfter time.Duration
}

// Store keeps the per-key counters.
type Store interface {
	// Hit records one request against key unless the window is full.
	// A denied hit must not modify stored state.
	Hit(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Decision, error)
	// Sweep deletes windows that ended at or before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Limiter applies fixed-window limits over a Store.
type Limiter struct {
	store Store
	now   Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now, for tests.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.now = c }
}

// New creates a Limiter over store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records a hit for identifier and reports whether it is allowed.
func (l *Limiter) Check(ctx context.Context, identifier string, maxRequests int, window time.Duration) Decision {
	now := l.now()
	if maxRequests <= 0 || window <= 0 {
		return Decision{Allowed: false, ResetAt: now.Add(window), RetryAfter: window}
	}
	d, err := l.store.Hit(ctx, identifier, maxRequests, window, now)
	if err != nil {
		logger.Warn("rate limit store unavailable, allowing request",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return Decision{Allowed: true, Remaining: maxRequests - 1, ResetAt: now.Add(window)}
	}
	return d
}

// CheckRateLimit is the boolean form of Check.
func (l *Limiter) CheckRateLimit(ctx context.Context, identifier string, maxRequests int, window time.Duration) bool {
	return l.Check(ctx, identifier, maxRequests, window).Allowed
}

// Sweep purges expired windows once.
func (l *Limiter) Sweep(ctx context.Context) {
	n, err := l.store.Sweep(ctx, l.now())
	if err != nil {
		logger.Warn("rate limit sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Debug("rate limit sweep", zap.Int("removed", n))
	}
}

// StartSweeper runs Sweep on the general pool every interval until the
// pools shut down.
func (l *Limiter) StartSweeper(pools *worker.Pools, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return pools.Every("ratelimit-sweep", interval, l.Sweep)
}

// Key joins identifier parts with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
