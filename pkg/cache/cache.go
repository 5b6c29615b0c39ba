package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// Store is a byte-oriented key/value cache. Values are opaque to the store.
type Store interface {
	// Set stores value under key. A zero expiration keeps it until evicted.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Get returns the value of key or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, keys ...string) error

	// DeleteByPattern removes every key matching a glob pattern (only '*' and '?').
	DeleteByPattern(ctx context.Context, pattern string) error

	// TryLock acquires a short-lived exclusive lock. It reports false when
	// someone else holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	Unlock(ctx context.Context, key string) error

	Close() error
}

var (
	_ Store = (*MemoryCache)(nil)
	_ Store = (*RedisCache)(nil)
	_ Store = (*LayeredCache)(nil)
)
