package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/pkg/logger"
)

// BucketCache remembers which buckets are known to exist so uploads skip
// the existence check.
type BucketCache interface {
	Known(ctx context.Context, bucket string) bool
	Remember(ctx context.Context, bucket string)
}

// MemoryBucketCache is a process-local BucketCache.
type MemoryBucketCache struct {
	mu      sync.RWMutex
	buckets map[string]struct{}
}

func NewMemoryBucketCache() *MemoryBucketCache {
	return &MemoryBucketCache{buckets: make(map[string]struct{})}
}

func (c *MemoryBucketCache) Known(_ context.Context, bucket string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.buckets[bucket]
	return ok
}

func (c *MemoryBucketCache) Remember(_ context.Context, bucket string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[bucket] = struct{}{}
}

// RedisBucketCache shares bucket knowledge between instances. Entries
// expire so a bucket deleted out of band is recreated eventually.
type RedisBucketCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisBucketCache(client redis.UniversalClient, ttl time.Duration) *RedisBucketCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisBucketCache{client: client, ttl: ttl}
}

func (c *RedisBucketCache) Known(ctx context.Context, bucket string) bool {
	n, err := c.client.Exists(ctx, bucketKey(bucket)).Result()
	if err != nil {
		logger.Warn("bucket cache lookup failed", zap.String("bucket", bucket), zap.Error(err))
		return false
	}
	return n == 1
}

func (c *RedisBucketCache) Remember(ctx context.Context, bucket string) {
	if err := c.client.Set(ctx, bucketKey(bucket), 1, c.ttl).Err(); err != nil {
		logger.Warn("bucket cache write failed", zap.String("bucket", bucket), zap.Error(err))
	}
}

func bucketKey(bucket string) string {
	return "storage:bucket:" + bucket
}
