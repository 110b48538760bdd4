package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed hit.lua
var hitLuaScript string

var hitScript = redis.NewScript(hitLuaScript)

// RedisStore shares counters between instances. Redis key expiry closes
// windows, so Sweep has nothing to do.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore creates a RedisStore; keys are stored under prefix.
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Decision, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, max, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, errors.New("rate limit script: unexpected reply")
	}
	allowed, count, ttl := res[0] == 1, int(res[1]), time.Duration(res[2])*time.Millisecond
	d := Decision{Allowed: allowed, ResetAt: now.Add(ttl)}
	if allowed {
		d.Remaining = max - count
	} else {
		d.RetryAfter = ttl
	}
	return d, nil
}

func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
