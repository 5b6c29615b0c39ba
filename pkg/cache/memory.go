package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

func (m memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && !now.Before(m.expireAt)
}

// MemoryCache implements Store on a size-bounded LRU with per-entry expiry.
type MemoryCache struct {
	mu     sync.Mutex
	items  *lru.Cache[string, memoryItem]
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) (*MemoryCache, error) {
	cfg := &MemoryConfig{
		MaxSize: 1000,
		Now:     time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	items, err := lru.New[string, memoryItem](cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &MemoryCache{items: items, maxTTL: cfg.MaxTTL, now: cfg.Now}, nil
}

func (mc *MemoryCache) expiry(expiration time.Duration) time.Time {
	if mc.maxTTL > 0 && (expiration <= 0 || expiration > mc.maxTTL) {
		expiration = mc.maxTTL
	}
	if expiration <= 0 {
		return time.Time{}
	}
	return mc.now().Add(expiration)
}

func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.items.Add(key, memoryItem{value: append([]byte(nil), value...), expireAt: mc.expiry(expiration)})
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if item.expired(mc.now()) {
		mc.items.Remove(key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		mc.items.Remove(key)
	}
	return nil
}

func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range mc.items.Keys() {
		if MatchPattern(pattern, key) {
			mc.items.Remove(key)
		}
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if item, ok := mc.items.Peek(key); ok && !item.expired(mc.now()) {
		return false, nil
	}
	mc.items.Add(key, memoryItem{value: []byte("locked"), expireAt: mc.expiry(ttl)})
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len reports the number of entries, expired ones included.
func (mc *MemoryCache) Len() int {
	return mc.items.Len()
}

func (mc *MemoryCache) Close() error {
	mc.items.Purge()
	return nil
}
