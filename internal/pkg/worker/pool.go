// Package worker provides goroutine pool management.
//
// Background work never starts a naked goroutine: everything goes through
// a pool with context propagation so shutdown can drain it.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool names accepted by SubmitDetached.
const (
	PoolGeneral    = "general"
	PoolGeneration = "generation"
)

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
//
// General runs short housekeeping work (cache sweeps, reconciliation,
// event fan-out). Generation runs whole production runs, which hold
// provider connections for minutes, so it is kept small.
type Pools struct {
	General    *Pool
	Generation *Pool

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	GeneralPoolSize    int
	GenerationPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize:    50,
		GenerationPoolSize: 8,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	generationAnts, err := ants.NewPool(cfg.GenerationPoolSize,
		ants.WithPanicHandler(panicHandler),
		// A full generation pool means the service is saturated; callers
		// get ants.ErrPoolOverload instead of queueing unbounded work.
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(time.Minute),
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: PoolGeneral},
		Generation:    &Pool{pool: generationAnts, name: PoolGeneration},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task.
// If ctx is already cancelled, returns ctx.Err() without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		// May have been cancelled while queued.
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// SubmitDetached submits a background task bound to the service lifecycle
// context instead of a request context. It survives request cancellation
// but stops on Shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	pool := p.General
	if poolName == PoolGeneration {
		pool = p.Generation
	}
	return pool.Submit(p.serviceCtx, task)
}

// Every runs fn on the general pool every interval until Shutdown.
// The loop occupies one worker for its lifetime.
func (p *Pools) Every(name string, interval time.Duration, fn Task) error {
	if interval <= 0 {
		return errors.New("worker: interval must be positive")
	}
	return p.SubmitDetached(PoolGeneral, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logger.Debug("Periodic task started", zap.String("task", name), zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

// Shutdown cancels the service context, then waits for running tasks (max 30s).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("General pool shutdown timeout", zap.Error(err))
	}
	if err := p.Generation.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Generation pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for the health endpoint.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		PoolGeneral: map[string]int{
			"running": p.General.pool.Running(),
			"free":    p.General.pool.Free(),
			"cap":     p.General.pool.Cap(),
		},
		PoolGeneration: map[string]int{
			"running": p.Generation.pool.Running(),
			"free":    p.Generation.pool.Free(),
			"cap":     p.Generation.pool.Cap(),
		},
	}
}
