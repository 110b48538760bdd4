package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/pkg/worker"
)

// UpstreamStatus represents the reachability of one generation upstream.
type UpstreamStatus string

const (
	UpstreamUnknown       UpstreamStatus = "UNKNOWN"
	UpstreamHealthy       UpstreamStatus = "HEALTHY"
	UpstreamUnhealthy     UpstreamStatus = "UNHEALTHY"
	UpstreamUnreachable   UpstreamStatus = "UNREACHABLE"
	UpstreamNotConfigured UpstreamStatus = "NOT_CONFIGURED"
)

// UpstreamHealth contains one health check result.
type UpstreamHealth struct {
	Name        string         `json:"name"`
	Status      UpstreamStatus `json:"status"`
	LastChecked time.Time      `json:"last_checked"`
	Error       string         `json:"error,omitempty"`
}

// UpstreamCheck checks one upstream. It returns ErrNotConfigured when there is
// nothing to check.
type UpstreamCheck func(ctx context.Context) error

// HealthChecker periodically checks the generation upstreams.
type HealthChecker struct {
	checks  map[string]UpstreamCheck
	timeout time.Duration
	results map[string]*UpstreamHealth
	mu      sync.RWMutex
}

// NewHealthChecker creates a HealthChecker for the named checks.
func NewHealthChecker(checks map[string]UpstreamCheck, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		checks:  checks,
		timeout: timeout,
		results: make(map[string]*UpstreamHealth),
	}
}

// UpstreamChecks returns the standard checks for the configured adapters.
func (a *Adapters) UpstreamChecks() map[string]UpstreamCheck {
	return map[string]UpstreamCheck{
		"openai":    a.Image.api.ping("models"),
		"replicate": a.Predictions.api.ping("account"),
	}
}

func (c *apiClient) ping(path string) UpstreamCheck {
	return func(ctx context.Context) error {
		if !c.configured() {
			return ErrNotConfigured
		}
		_, _, err := c.once(ctx, http.MethodGet, path, nil)
		return err
	}
}

// Check runs one upstream check.
func (h *HealthChecker) Check(ctx context.Context, name string) *UpstreamHealth {
	health := &UpstreamHealth{Name: name, LastChecked: time.Now()}
	check, ok := h.checks[name]
	if !ok {
		health.Status = UpstreamUnknown
		return health
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := check(ctx)
	var statusErr *httpStatusError
	switch {
	case err == nil:
		health.Status = UpstreamHealthy
	case errors.Is(err, ErrNotConfigured):
		health.Status = UpstreamNotConfigured
	case errors.As(err, &statusErr):
		health.Status = UpstreamUnhealthy
		health.Error = fmt.Sprintf("http %d", statusErr.StatusCode)
	default:
		health.Status = UpstreamUnreachable
		health.Error = SanitizeGenerationError(err.Error())
		logger.Warn("upstream health check failed", zap.String("upstream", name), zap.Error(err))
	}
	return health
}

// Get returns the cached result for name.
func (h *HealthChecker) Get(name string) *UpstreamHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.results[name]; ok {
		return r
	}
	return &UpstreamHealth{Name: name, Status: UpstreamUnknown}
}

// Snapshot returns all cached results ordered by name.
func (h *HealthChecker) Snapshot() []UpstreamHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]UpstreamHealth, 0, len(h.checks))
	for name := range h.checks {
		if r, ok := h.results[name]; ok {
			out = append(out, *r)
		} else {
			out = append(out, UpstreamHealth{Name: name, Status: UpstreamUnknown})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckAll checks every upstream and stores the results.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	for name := range h.checks {
		r := h.Check(ctx, name)
		h.mu.Lock()
		h.results[name] = r
		h.mu.Unlock()
	}
}

// Start schedules periodic checks on the general worker pool.
func (h *HealthChecker) Start(pools *worker.Pools, interval time.Duration) error {
	return pools.Every("upstream-health", interval, func(ctx context.Context) {
		h.CheckAll(ctx)
	})
}
