package ratelimit

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Limiter, *MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	return New(store, WithClock(clock.now)), store, clock
}

func TestLimiter_DeniesAfterMaxWithinWindow(t *testing.T) {
	l, _, _ := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Check(ctx, "user:u1:image", 3, time.Minute)
		require.True(t, d.Allowed, "hit %d should be allowed", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}
	d := l.Check(ctx, "user:u1:image", 3, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
}

func TestLimiter_DeniedHitDoesNotMutate(t *testing.T) {
	l, store, clock := newTestLimiter()
	ctx := context.Background()

	require.True(t, l.CheckRateLimit(ctx, "k", 1, time.Minute))
	clock.advance(10 * time.Second)
	for i := 0; i < 5; i++ {
		assert.False(t, l.CheckRateLimit(ctx, "k", 1, time.Minute))
	}
	assert.Equal(t, 1, store.count("k"))

	// The window is anchored at the first hit, not extended by denials.
	clock.advance(50 * time.Second)
	assert.True(t, l.CheckRateLimit(ctx, "k", 1, time.Minute))
}

func TestLimiter_WindowResets(t *testing.T) {
	l, store, clock := newTestLimiter()
	ctx := context.Background()

	require.True(t, l.CheckRateLimit(ctx, "k", 2, 5*time.Minute))
	require.True(t, l.CheckRateLimit(ctx, "k", 2, 5*time.Minute))
	require.False(t, l.CheckRateLimit(ctx, "k", 2, 5*time.Minute))

	clock.advance(5 * time.Minute)
	d := l.Check(ctx, "k", 2, 5*time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, store.count("k"))
	assert.Equal(t, clock.t.Add(5*time.Minute), d.ResetAt)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _, _ := newTestLimiter()
	ctx := context.Background()

	require.True(t, l.CheckRateLimit(ctx, Key("user", "u1", "produce"), 1, time.Minute))
	assert.False(t, l.CheckRateLimit(ctx, Key("user", "u1", "produce"), 1, time.Minute))
	assert.True(t, l.CheckRateLimit(ctx, Key("user", "u2", "produce"), 1, time.Minute))
}

func TestLimiter_NonPositiveLimitDenies(t *testing.T) {
	l, store, _ := newTestLimiter()
	assert.False(t, l.CheckRateLimit(context.Background(), "k", 0, time.Minute))
	assert.Zero(t, store.Len())
}

func TestLimiter_Sweep(t *testing.T) {
	l, store, clock := newTestLimiter()
	ctx := context.Background()

	l.Check(ctx, "short", 5, time.Second)
	l.Check(ctx, "long", 5, time.Hour)
	require.Equal(t, 2, store.Len())

	clock.advance(2 * time.Second)
	l.Sweep(ctx)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, -1, store.count("short"))
}

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, int, time.Duration, time.Time) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func (brokenStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(brokenStore{})
	assert.True(t, l.CheckRateLimit(context.Background(), "k", 1, time.Minute))
	l.Sweep(context.Background())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ip:10.0.0.1:/api/credits", Key("ip", "10.0.0.1", "/api/credits"))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000000")
	store := NewRedisStore(client, "ratelimit-test:")
	t.Cleanup(func() { client.Del(ctx, "ratelimit-test:"+key) })

	l := New(store)
	require.True(t, l.CheckRateLimit(ctx, key, 2, time.Second))
	require.True(t, l.CheckRateLimit(ctx, key, 2, time.Second))
	d := l.Check(ctx, key, 2, time.Second)
	require.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)

	n, err := client.Get(ctx, "ratelimit-test:"+key).Int()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	time.Sleep(1100 * time.Millisecond)
	assert.True(t, l.CheckRateLimit(ctx, key, 2, time.Second))
}
