package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
	"DemandCast/pkg/cache"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestCache(t *testing.T, clk *clock, ttl time.Duration) *ResultCache {
	t.Helper()
	store, err := cache.NewMemoryCache(cache.WithMemoryClock(clk.Now))
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	rc, err := NewResultCache(store, ttl, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("result cache: %v", err)
	}
	return rc
}

func fingerprint(product string) models.Fingerprint {
	return models.Fingerprint{
		Selector:    models.Selector{Store: "s1", Category: "beverages", Product: product},
		Horizon:     3,
		Granularity: models.Monthly,
		DataVersion: "v1",
	}
}

// counting returns a compute func numbering its results.
func counting(calls *int32) service.ComputeFunc {
	return func(ctx context.Context) (*models.ForecastResult, error) {
		n := atomic.AddInt32(calls, 1)
		return &models.ForecastResult{
			RunID:     fmt.Sprintf("run-%d", n),
			BestModel: "naive_mean",
			ScoreCards: []models.ScoreCard{
				{Model: "naive_mean", Rank: 1, Scored: true, Metrics: map[string]float64{"mape": 12.5}},
			},
		}, nil
	}
}

func TestGetOrComputeMemoizes(t *testing.T) {
	ctx := context.Background()
	rc := newTestCache(t, newClock(), time.Minute)
	var calls int32

	first, err := rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	if err != nil {
		t.Fatal(err)
	}
	second, err := rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	if err != nil {
		t.Fatal(err)
	}

	if calls != 1 {
		t.Fatalf("expected 1 computation, got %d", calls)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("results differ:\n%s\n%s", a, b)
	}
	if first == second {
		t.Fatal("callers must not share one result value")
	}
}

func TestGetOrComputeRecomputesAfterTTL(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	rc := newTestCache(t, clk, time.Minute)
	var calls int32

	_, _ = rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	clk.Advance(59 * time.Second)
	_, _ = rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	if calls != 1 {
		t.Fatalf("expected cached result before expiry, got %d computations", calls)
	}

	clk.Advance(time.Second)
	res, err := rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 || res.RunID != "run-2" {
		t.Fatalf("expected recomputation after ttl, calls=%d run=%s", calls, res.RunID)
	}
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	ctx := context.Background()
	rc := newTestCache(t, newClock(), time.Minute)

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	compute := func(ctx context.Context) (*models.ForecastResult, error) {
		atomic.AddInt32(&calls, 1)
		once.Do(func() { close(started) })
		<-release
		return &models.ForecastResult{RunID: "only", BestModel: "ses"}, nil
	}

	const n = 32
	var wg sync.WaitGroup
	results := make([]*models.ForecastResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = rc.GetOrCompute(ctx, fingerprint("cola"), compute)
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly 1 computation, got %d", calls)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].RunID != "only" {
			t.Fatalf("caller %d got %q", i, results[i].RunID)
		}
	}
}

func TestGetOrComputeForceRecompute(t *testing.T) {
	ctx := context.Background()
	rc := newTestCache(t, newClock(), time.Minute)
	var calls int32

	_, _ = rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	forced, err := rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls), service.WithForceRecompute())
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 || forced.RunID != "run-2" {
		t.Fatalf("expected forced recompute, calls=%d run=%s", calls, forced.RunID)
	}

	// The forced result replaces the entry.
	again, _ := rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	if calls != 2 || again.RunID != "run-2" {
		t.Fatalf("expected refreshed entry, calls=%d run=%s", calls, again.RunID)
	}
}

func TestGetOrComputeBypassSkipsStore(t *testing.T) {
	ctx := context.Background()
	rc := newTestCache(t, newClock(), time.Minute)
	var calls int32

	_, _ = rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls), service.WithBypass())
	_, _ = rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls), service.WithBypass())
	_, _ = rc.GetOrCompute(ctx, fingerprint("cola"), counting(&calls))
	if calls != 3 {
		t.Fatalf("expected bypass to neither read nor write, got %d computations", calls)
	}
}

func TestGetOrComputeWrapsErrorsAndDoesNotCacheThem(t *testing.T) {
	ctx := context.Background()
	rc := newTestCache(t, newClock(), time.Minute)

	var calls int32
	failing := func(ctx context.Context) (*models.ForecastResult, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &models.AllModelsFailedError{Failures: []models.Disqualification{{Model: "ses", Stage: models.StageFit, Reason: "boom"}}}
	}

	_, err := rc.GetOrCompute(ctx, fingerprint("cola"), failing)
	if !errors.Is(err, models.ErrCacheComputation) {
		t.Fatalf("expected cache computation error, got %v", err)
	}
	var failed *models.AllModelsFailedError
	if !errors.As(err, &failed) || len(failed.Failures) != 1 {
		t.Fatalf("expected underlying error preserved, got %v", err)
	}

	_, _ = rc.GetOrCompute(ctx, fingerprint("cola"), failing)
	if calls != 2 {
		t.Fatalf("errors must not be memoized, got %d computations", calls)
	}
}

func TestInvalidateSelector(t *testing.T) {
	ctx := context.Background()
	rc := newTestCache(t, newClock(), time.Minute)
	var calls int32

	other := fingerprint("chips")
	other.Selector.Category = "snacks"
	for _, fp := range []models.Fingerprint{fingerprint("cola"), fingerprint("water"), other} {
		_, _ = rc.GetOrCompute(ctx, fp, counting(&calls))
	}

	if err := rc.InvalidateSelector(ctx, models.Selector{Store: "s1", Category: "beverages"}); err != nil {
		t.Fatal(err)
	}
	for _, fp := range []models.Fingerprint{fingerprint("cola"), fingerprint("water"), other} {
		_, _ = rc.GetOrCompute(ctx, fp, counting(&calls))
	}
	if calls != 5 {
		t.Fatalf("expected 2 recomputations after category invalidation, got %d total", calls)
	}

	if err := rc.Invalidate(ctx, other); err != nil {
		t.Fatal(err)
	}
	_, _ = rc.GetOrCompute(ctx, other, counting(&calls))
	if calls != 6 {
		t.Fatalf("expected recomputation after invalidate, got %d", calls)
	}
}

func TestCallerCancellationDoesNotAbortComputation(t *testing.T) {
	rc := newTestCache(t, newClock(), time.Minute)

	var calls int32
	release := make(chan struct{})
	done := make(chan struct{})
	compute := func(ctx context.Context) (*models.ForecastResult, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		defer close(done)
		return &models.ForecastResult{RunID: "detached"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := rc.GetOrCompute(ctx, fingerprint("cola"), compute)
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
	<-done

	res, err := rc.GetOrCompute(context.Background(), fingerprint("cola"), compute)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 || res.RunID != "detached" {
		t.Fatalf("expected detached result reused, calls=%d run=%s", calls, res.RunID)
	}
}

func TestNewResultCacheRejectsBadInput(t *testing.T) {
	if _, err := NewResultCache(nil, time.Minute); err == nil {
		t.Fatal("expected error for nil store")
	}
	store, _ := cache.NewMemoryCache()
	if _, err := NewResultCache(store, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
