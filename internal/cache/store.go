package cache

import (
	"context"
	"time"
)

// Store is a byte-value TTL cache. The risk gate uses it to hold per-follower
// risk-limit snapshots; either the in-process MemoryStore or RedisStore works.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
