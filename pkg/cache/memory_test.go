package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemory(t *testing.T, clock *fakeClock, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc, err := NewMemoryCache(append([]MemoryOption{WithMemoryClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("new memory cache: %v", err)
	}
	return mc
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := newTestMemory(t, clock)

	if err := mc.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := mc.Get(ctx, "a")
	if err != nil || string(got) != "1" {
		t.Fatalf("expected hit, got %q %v", got, err)
	}

	clock.Advance(time.Minute)
	if _, err := mc.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryCacheMaxTTLCapsZeroExpiration(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := newTestMemory(t, clock, WithMemoryMaxTTL(10*time.Second))

	_ = mc.Set(ctx, "a", []byte("1"), 0)
	clock.Advance(11 * time.Second)
	if _, err := mc.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected capped entry to expire, got %v", err)
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(t, &fakeClock{t: time.Now()})

	buf := []byte("abc")
	_ = mc.Set(ctx, "k", buf, 0)
	buf[0] = 'x'
	got, _ := mc.Get(ctx, "k")
	got[1] = 'y'
	again, _ := mc.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value was mutated: %q", again)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(t, &fakeClock{t: time.Now()}, WithMemoryMaxSize(2))

	_ = mc.Set(ctx, "a", []byte("1"), 0)
	_ = mc.Set(ctx, "b", []byte("2"), 0)
	_, _ = mc.Get(ctx, "a")
	_ = mc.Set(ctx, "c", []byte("3"), 0)

	if _, err := mc.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if _, err := mc.Get(ctx, "a"); err != nil {
		t.Fatalf("expected a kept, got %v", err)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := newTestMemory(t, &fakeClock{t: time.Now()})

	for _, k := range []string{
		"forecast:s1:beverages:cola:aa",
		"forecast:s1:beverages:water:bb",
		"forecast:s1:snacks:chips:cc",
		"forecast:s2:beverages:cola:dd",
	} {
		_ = mc.Set(ctx, k, []byte("x"), 0)
	}

	if err := mc.DeleteByPattern(ctx, "forecast:s1:beverages:*"); err != nil {
		t.Fatal(err)
	}
	if mc.Len() != 2 {
		t.Fatalf("expected 2 keys left, got %d", mc.Len())
	}
	if _, err := mc.Get(ctx, "forecast:s1:snacks:chips:cc"); err != nil {
		t.Fatalf("unrelated key removed: %v", err)
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	mc := newTestMemory(t, clock)

	ok, _ := mc.TryLock(ctx, "lock:x", time.Second)
	if !ok {
		t.Fatal("expected first lock to succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock:x", time.Second); ok {
		t.Fatal("expected second lock to fail")
	}
	clock.Advance(2 * time.Second)
	if ok, _ := mc.TryLock(ctx, "lock:x", time.Second); !ok {
		t.Fatal("expected expired lock to be reacquired")
	}
	_ = mc.Unlock(ctx, "lock:x")
	if ok, _ := mc.TryLock(ctx, "lock:x", time.Second); !ok {
		t.Fatal("expected lock after unlock")
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"a:*", "a:b:c", true},
		{"a:*:c", "a:b:c", true},
		{"a:?:c", "a:b:c", true},
		{"a:?:c", "a:bb:c", false},
		{"a:*", "b:a", false},
		{"*", "", true},
		{"a", "a", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.pattern, tc.key); got != tc.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}
