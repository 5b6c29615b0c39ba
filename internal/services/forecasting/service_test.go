package forecasting

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
	rcache "DemandCast/internal/service/cache"
	"DemandCast/pkg/cache"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newCachedService(t *testing.T, m service.Model) (*Service, *testClock) {
	t.Helper()
	clk := &testClock{t: testStart}
	cfg := testConfig(func(c *Config) { c.CacheTTL = 10 * time.Minute })
	p := newTestPipeline(t, cfg, m)
	store, err := cache.NewMemoryCache(cache.WithMemoryClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	rc, err := rcache.NewResultCache(store, cfg.CacheTTL, rcache.WithClock(clk.Now))
	if err != nil {
		t.Fatal(err)
	}
	return NewService(p, rc, nil), clk
}

func flatRequest() models.ForecastRequest {
	return models.ForecastRequest{Series: monthlySeries(repeat(100, 24)...), Horizon: 3}
}

func TestServiceIsIdempotentWithoutRefitting(t *testing.T) {
	spy := &fixedModel{spec: tolerant("spy", 1), value: 100}
	svc, _ := newCachedService(t, spy)
	ctx := context.Background()

	first, err := svc.Forecast(ctx, flatRequest())
	if err != nil {
		t.Fatal(err)
	}
	fits := spy.fits.Load()
	if fits == 0 {
		t.Fatal("expected the first call to fit")
	}

	second, err := svc.Forecast(ctx, flatRequest())
	if err != nil {
		t.Fatal(err)
	}
	if spy.fits.Load() != fits {
		t.Fatalf("second call refit: %d -> %d", fits, spy.fits.Load())
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatal("cached result is not byte-identical")
	}
	if !strings.HasPrefix(first.Fingerprint, "forecast:s1:dairy:milk:") {
		t.Fatalf("unexpected fingerprint %q", first.Fingerprint)
	}
}

func TestServiceRecomputesAfterTTL(t *testing.T) {
	spy := &fixedModel{spec: tolerant("spy", 1), value: 100}
	svc, clk := newCachedService(t, spy)
	ctx := context.Background()

	_, _ = svc.Forecast(ctx, flatRequest())
	fits := spy.fits.Load()

	clk.Advance(9 * time.Minute)
	_, _ = svc.Forecast(ctx, flatRequest())
	if spy.fits.Load() != fits {
		t.Fatal("entry expired early")
	}

	clk.Advance(2 * time.Minute)
	_, _ = svc.Forecast(ctx, flatRequest())
	if spy.fits.Load() != 2*fits {
		t.Fatalf("expected recomputation after ttl, fits=%d", spy.fits.Load())
	}
}

func TestServiceConcurrentRequestsComputeOnce(t *testing.T) {
	spy := &fixedModel{spec: tolerant("spy", 1), value: 100, delay: 20 * time.Millisecond}
	svc, _ := newCachedService(t, spy)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Forecast(context.Background(), flatRequest()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	// One computation backtests once and refits once.
	if got := spy.fits.Load(); got != 2 {
		t.Fatalf("expected a single computation (2 fits), got %d fits", got)
	}
}

func TestServiceFingerprintTracksInputs(t *testing.T) {
	spy := &fixedModel{spec: tolerant("spy", 1), value: 100}
	svc, _ := newCachedService(t, spy)
	ctx := context.Background()

	base := svc.Fingerprint(flatRequest())
	if base != svc.Fingerprint(flatRequest()) {
		t.Fatal("fingerprint is not deterministic")
	}

	changed := flatRequest()
	changed.Series.Observations[23].Quantity = 101
	if svc.Fingerprint(changed).Key() == base.Key() {
		t.Fatal("data change must change the fingerprint")
	}
	longer := flatRequest()
	longer.Horizon = 4
	if svc.Fingerprint(longer).Key() == base.Key() {
		t.Fatal("horizon must change the fingerprint")
	}
	versioned := flatRequest()
	versioned.DataVersion = "snapshot-7"
	if got := svc.Fingerprint(versioned).DataVersion; got != "snapshot-7" {
		t.Fatalf("caller data version ignored, got %q", got)
	}

	_, _ = svc.Forecast(ctx, flatRequest())
	fits := spy.fits.Load()
	_, _ = svc.Forecast(ctx, changed)
	if spy.fits.Load() == fits {
		t.Fatal("changed data must recompute")
	}
}

func TestServiceInvalidateAndForce(t *testing.T) {
	spy := &fixedModel{spec: tolerant("spy", 1), value: 100}
	svc, _ := newCachedService(t, spy)
	ctx := context.Background()

	_, _ = svc.Forecast(ctx, flatRequest())
	fits := spy.fits.Load()

	if _, err := svc.Forecast(ctx, flatRequest(), service.WithForceRecompute()); err != nil {
		t.Fatal(err)
	}
	if spy.fits.Load() != 2*fits {
		t.Fatal("force must recompute")
	}

	if err := svc.Invalidate(ctx, models.Selector{Store: "s1", Category: "dairy"}); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.Forecast(ctx, flatRequest())
	if spy.fits.Load() != 3*fits {
		t.Fatal("invalidated selector must recompute")
	}
}

func TestServiceWithoutCacheMatchesCached(t *testing.T) {
	spy := &fixedModel{spec: tolerant("spy", 1), value: 100}
	plain := NewService(newTestPipeline(t, testConfig(nil), spy), nil, nil)

	a, err := plain.Forecast(context.Background(), flatRequest())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := plain.Forecast(context.Background(), flatRequest())
	if spy.fits.Load() != 4 {
		t.Fatalf("uncached service must compute every call, got %d fits", spy.fits.Load())
	}
	if a.BestModel != b.BestModel || a.Fingerprint != b.Fingerprint || a.ScoreCards[0].Metrics[MetricMAPE] != b.ScoreCards[0].Metrics[MetricMAPE] {
		t.Fatal("results differ without cache")
	}
	if len(plain.Models()) != 1 {
		t.Fatalf("expected one registered model")
	}
}

func TestServiceComputedHookSkipsCacheHits(t *testing.T) {
	spy := &fixedModel{spec: tolerant("spy", 1), value: 100}
	svc, _ := newCachedService(t, spy)
	var seen []string
	svc.OnComputed(func(_ context.Context, r *models.ForecastResult) { seen = append(seen, r.Fingerprint) })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Forecast(ctx, flatRequest()); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 1 || seen[0] == "" {
		t.Fatalf("hook calls = %v, want one with a fingerprint", seen)
	}

	if _, err := svc.Forecast(ctx, flatRequest(), service.WithForceRecompute()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Fatalf("forced recompute should run the hook, calls = %d", len(seen))
	}
}
