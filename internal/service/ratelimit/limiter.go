package ratelimit

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. Idle keys are evicted once
// more than maxKeys are tracked.
type Limiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

// New creates a limiter allowing rps requests per second per key with the given burst.
func New(rps float64, burst, maxKeys int) (*Limiter, error) {
	if rps <= 0 || burst < 1 {
		return nil, fmt.Errorf("ratelimit: rps and burst must be positive")
	}
	if maxKeys <= 0 {
		maxKeys = 10_000
	}
	c, err := lru.New[string, *rate.Limiter](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: %w", err)
	}
	return &Limiter{rps: rate.Limit(rps), burst: burst, buckets: c}, nil
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit clock reading.
func (l *Limiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets.Add(key, b)
	}
	l.mu.Unlock()
	return b.AllowN(now, 1)
}
