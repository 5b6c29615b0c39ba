package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/repository"
	"DemandCast/internal/domain/service"
	"DemandCast/pkg/cache"
	"DemandCast/pkg/logger"
	"DemandCast/pkg/metrics"
)

// Cache lookup outcomes reported to metrics.
const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeShared = "shared"
	OutcomeBypass = "bypass"
	OutcomeError  = "error"
)

// ResultCache memoizes forecast results in a byte store. Concurrent callers
// of one fingerprint share a single computation.
type ResultCache struct {
	store   cache.Store
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
	metrics repository.Metrics
	logger  *logger.Logger
}

var _ service.ResultCache = (*ResultCache)(nil)

type Option func(*ResultCache)

func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *ResultCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *ResultCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// envelope is the stored form. ExpiresAt is checked on read so a store with
// a coarser clock never serves an entry past its TTL.
type envelope struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Result    json.RawMessage `json:"result"`
}

// NewResultCache creates a result cache over store. ttl must be positive.
func NewResultCache(store cache.Store, ttl time.Duration, opts ...Option) (*ResultCache, error) {
	if store == nil {
		return nil, errors.New("result cache: nil store")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("result cache: ttl must be positive, got %s", ttl)
	}
	c := &ResultCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics.Nop{},
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetOrCompute returns the unexpired result of fp or runs compute once.
// The computation runs detached from the caller's cancellation so one caller
// leaving does not fail the others waiting on it.
func (c *ResultCache) GetOrCompute(ctx context.Context, fp models.Fingerprint, compute service.ComputeFunc, opts ...service.CallOption) (*models.ForecastResult, error) {
	o := service.ApplyCallOptions(opts...)
	key := fp.Key()

	if o.Bypass {
		c.metrics.RecordCache(OutcomeBypass)
		res, err := compute(ctx)
		if err != nil {
			return nil, &models.CacheComputationError{Key: key, Err: err}
		}
		return res, nil
	}

	if !o.ForceRecompute {
		if data, ok := c.lookup(ctx, key); ok {
			c.metrics.RecordCache(OutcomeHit)
			return decode(data)
		}
	}

	flight := key
	if o.ForceRecompute {
		flight = key + "#force"
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		if !o.ForceRecompute {
			if data, ok := c.lookup(detached, key); ok {
				return data, nil
			}
		}
		res, err := compute(detached)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		c.save(detached, key, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			c.metrics.RecordCache(OutcomeError)
			return nil, &models.CacheComputationError{Key: key, Err: r.Err}
		}
		if r.Shared {
			c.metrics.RecordCache(OutcomeShared)
		} else {
			c.metrics.RecordCache(OutcomeMiss)
		}
		return decode(r.Val.([]byte))
	}
}

// Invalidate drops the entry of fp.
func (c *ResultCache) Invalidate(ctx context.Context, fp models.Fingerprint) error {
	if err := c.store.Delete(ctx, fp.Key()); err != nil {
		return fmt.Errorf("invalidate %s: %w", fp.Key(), err)
	}
	return nil
}

// InvalidateSelector drops every entry of sel. An empty product covers the
// whole category.
func (c *ResultCache) InvalidateSelector(ctx context.Context, sel models.Selector) error {
	pattern := models.SelectorPattern(sel)
	if err := c.store.DeleteByPattern(ctx, pattern); err != nil {
		return fmt.Errorf("invalidate %s: %w", pattern, err)
	}
	return nil
}

// lookup returns the raw result bytes of an unexpired entry. Store errors
// degrade to a miss.
func (c *ResultCache) lookup(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("result cache read failed", logger.String("key", key), logger.Error(err))
		}
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("result cache entry corrupt", logger.String("key", key), logger.Error(err))
		_ = c.store.Delete(ctx, key)
		return nil, false
	}
	if !c.now().Before(env.ExpiresAt) {
		return nil, false
	}
	return env.Result, true
}

func (c *ResultCache) save(ctx context.Context, key string, result []byte) {
	data, err := json.Marshal(envelope{ExpiresAt: c.now().Add(c.ttl).UTC(), Result: result})
	if err == nil {
		err = c.store.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.logger.Warn("result cache write failed", logger.String("key", key), logger.Error(err))
	}
}

// decode gives every caller its own copy of the result.
func decode(data []byte) (*models.ForecastResult, error) {
	var res models.ForecastResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}
