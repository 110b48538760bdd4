package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPools(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	if pools.General == nil || pools.Generation == nil {
		t.Fatal("pools must not be nil")
	}
}

func TestPool_Submit(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, PoolConfig{GeneralPoolSize: 10, GenerationPoolSize: 2})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	var executed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	err = pools.General.Submit(ctx, func(ctx context.Context) {
		executed.Store(true)
		wg.Done()
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	wg.Wait()
	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pools.General.Submit(cancelledCtx, func(ctx context.Context) {
		t.Error("Task should not execute with cancelled context")
	})
	if err != context.Canceled {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
}

func TestPools_SubmitDetached(t *testing.T) {
	tests := []struct {
		name     string
		poolName string
	}{
		{"general pool", PoolGeneral},
		{"generation pool", PoolGeneration},
		{"default fallback", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pools, err := NewPools(context.Background(), DefaultPoolConfig())
			if err != nil {
				t.Fatalf("NewPools() error = %v", err)
			}

			var executed atomic.Bool
			var wg sync.WaitGroup
			wg.Add(1)

			err = pools.SubmitDetached(tt.poolName, func(ctx context.Context) {
				executed.Store(true)
				wg.Done()
			})
			if err != nil {
				t.Fatalf("SubmitDetached(%q) error = %v", tt.poolName, err)
			}

			wg.Wait()
			pools.Shutdown()

			if !executed.Load() {
				t.Errorf("SubmitDetached(%q) task was not executed", tt.poolName)
			}
		})
	}
}

func TestPools_Every(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 2, GenerationPoolSize: 1})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}

	var ticks atomic.Int32
	done := make(chan struct{})
	var once sync.Once
	err = pools.Every("test", 5*time.Millisecond, func(ctx context.Context) {
		if ticks.Add(1) >= 3 {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		t.Fatalf("Every() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic task did not run three times")
	}
	pools.Shutdown()

	if err := pools.Every("bad", 0, func(context.Context) {}); err == nil {
		t.Error("Every() with zero interval should fail")
	}
}

func TestPools_Metrics(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 10, GenerationPoolSize: 3})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	metrics := pools.Metrics()
	general, ok := metrics[PoolGeneral].(map[string]int)
	if !ok || general["cap"] != 10 {
		t.Errorf("general metrics = %v, want cap 10", metrics[PoolGeneral])
	}
	generation, ok := metrics[PoolGeneration].(map[string]int)
	if !ok || generation["cap"] != 3 {
		t.Errorf("generation metrics = %v, want cap 3", metrics[PoolGeneration])
	}
}

func TestPool_Submit_AfterShutdown(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	pools.Shutdown()

	err = pools.Generation.Submit(context.Background(), func(context.Context) {})
	if err != ErrPoolClosed {
		t.Errorf("Submit() after shutdown error = %v, want ErrPoolClosed", err)
	}
}
