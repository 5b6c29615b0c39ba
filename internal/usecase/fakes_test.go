package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	"DemandCast/internal/domain/service"
	"DemandCast/pkg/queue"
)

var jan2024 = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

// fakeForecaster memoizes by data version and runs hooks on fresh results.
type fakeForecaster struct {
	mu          sync.Mutex
	hooks       []service.ComputedHook
	seen        map[string]*models.ForecastResult
	requests    []models.ForecastRequest
	invalidated []models.Selector
	err         error
	invErr      error
}

func newFakeForecaster() *fakeForecaster {
	return &fakeForecaster{seen: map[string]*models.ForecastResult{}}
}

func (f *fakeForecaster) OnComputed(h service.ComputedHook) { f.hooks = append(f.hooks, h) }

func (f *fakeForecaster) Forecast(ctx context.Context, req models.ForecastRequest, opts ...service.CallOption) (*models.ForecastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	o := service.ApplyCallOptions(opts...)
	key := req.Series.Selector.String() + "|" + req.DataVersion + "|" + req.AsOf.String()
	if r, ok := f.seen[key]; ok && !o.ForceRecompute {
		return r, nil
	}
	r := &models.ForecastResult{
		RunID:       "run-" + key,
		Selector:    req.Series.Selector,
		Granularity: req.Series.Granularity,
		Horizon:     req.Horizon,
		BestModel:   "naive_mean",
		Metadata:    models.ResultMetadata{DataVersion: req.DataVersion, AsOf: req.AsOf},
	}
	f.seen[key] = r
	for _, h := range f.hooks {
		h(ctx, r)
	}
	return r, nil
}

func (f *fakeForecaster) Invalidate(_ context.Context, sel models.Selector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, sel)
	return f.invErr
}

func (f *fakeForecaster) Models() []service.ModelSpec {
	return []service.ModelSpec{{Name: "naive_mean", Complexity: 1}}
}

type fakeStore struct {
	mu       sync.Mutex
	queries  []domrepo.SalesQuery
	profiles int
	version  string
	err      error
}

func (s *fakeStore) record(q domrepo.SalesQuery) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
}

func (s *fakeStore) GetSeries(_ context.Context, q domrepo.SalesQuery) (models.HistoricalSeries, error) {
	s.record(q)
	if s.err != nil {
		return models.HistoricalSeries{}, s.err
	}
	var obs []models.Observation
	for p := q.From; p.Before(q.To); p = q.Granularity.Step(p, 1) {
		obs = append(obs, models.Observation{Period: p, Quantity: 10})
	}
	return models.HistoricalSeries{Observations: obs}, nil
}

func (s *fakeStore) GetInventory(_ context.Context, q domrepo.SalesQuery) ([]models.InventorySnapshot, error) {
	return []models.InventorySnapshot{{Period: q.From, OnHand: 0}}, nil
}

func (s *fakeStore) GetPromotions(context.Context, domrepo.SalesQuery) ([]models.PromoEvent, error) {
	return nil, nil
}

func (s *fakeStore) GetCategoryProfile(_ context.Context, _, category string, g models.Granularity) (*models.CategoryProfile, error) {
	s.mu.Lock()
	s.profiles++
	s.mu.Unlock()
	return &models.CategoryProfile{Category: category, Granularity: g, Indices: []float64{0.9, 1.1}}, nil
}

func (s *fakeStore) DataVersion(context.Context, domrepo.SalesQuery) (string, error) {
	return s.version, nil
}

type fakeHistory struct {
	mu    sync.Mutex
	saved []*models.ForecastResult
	err   error
}

func (h *fakeHistory) Init(context.Context) error { return nil }

func (h *fakeHistory) Save(_ context.Context, r *models.ForecastResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.saved = append(h.saved, r)
	return nil
}

func (h *fakeHistory) Latest(_ context.Context, sel models.Selector, limit int) ([]models.ForecastResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.ForecastResult
	for i := len(h.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if h.saved[i].Selector == sel {
			out = append(out, *h.saved[i])
		}
	}
	return out, nil
}

func (h *fakeHistory) Health(context.Context) error { return nil }
func (h *fakeHistory) Close() error                 { return nil }

type fakeEvents struct {
	published []string
	err       error
}

func (e *fakeEvents) PublishForecast(_ context.Context, r *models.ForecastResult) error {
	if e.err != nil {
		return e.err
	}
	e.published = append(e.published, r.RunID)
	return nil
}

func (e *fakeEvents) Close() error { return nil }

type fakeQueue struct {
	types []string
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, _ interface{}) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.types = append(q.types, msgType)
	return "job-1", nil
}

func (q *fakeQueue) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{Pending: int64(len(q.types))}, nil
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *countingMetrics) RecordRun(string)                  {}
func (m *countingMetrics) RecordFit(string, string, float64) {}
func (m *countingMetrics) RecordCache(string)                {}
func (m *countingMetrics) RecordLatency(string, float64)     {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func (m *countingMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

var errBoom = errors.New("boom")
