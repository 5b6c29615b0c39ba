package forecasting

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
)

var testStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func monthlySeries(values ...float64) models.HistoricalSeries {
	obs := make([]models.Observation, len(values))
	for i, v := range values {
		obs[i] = models.Observation{Period: testStart.AddDate(0, i, 0), Quantity: v}
	}
	return models.HistoricalSeries{
		Selector:     models.Selector{Store: "s1", Category: "dairy", Product: "milk"},
		Granularity:  models.Monthly,
		Observations: obs,
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// growthValues is monthly demand growing 8% per year.
func growthValues(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 * math.Pow(1.08, float64(i)/12)
	}
	return out
}

func testConfig(mut func(*Config)) Config {
	c := DefaultConfig()
	if mut != nil {
		mut(&c)
	}
	if err := c.Normalize(); err != nil {
		panic(err)
	}
	return c
}

// fixedModel predicts a constant and counts fits.
type fixedModel struct {
	spec  service.ModelSpec
	value float64
	delay time.Duration
	err   error
	fits  atomic.Int64
}

func (m *fixedModel) Spec() service.ModelSpec { return m.spec }

func (m *fixedModel) Fit(ctx context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	m.fits.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return constantFit{value: m.value}, nil
}

type constantFit struct{ value float64 }

func (c constantFit) Predict(steps int) ([]float64, error) {
	out := make([]float64, steps)
	for i := range out {
		out[i] = c.value
	}
	return out, nil
}

func (c constantFit) Params() map[string]float64 { return map[string]float64{"value": c.value} }

func (c constantFit) ResidualStdDev() float64 { return 0 }

// panicModel blows up inside Fit.
type panicModel struct{ name string }

func (m panicModel) Spec() service.ModelSpec {
	return service.ModelSpec{Name: m.name, Complexity: 1, MinObservations: 1, ShortSeriesCapable: true, StockoutTolerant: true}
}

func (m panicModel) Fit(context.Context, models.TrainingWindow) (service.FittedModel, error) {
	panic("kaboom")
}

// fitLog records which models were fit, for gating assertions.
type fitLog struct {
	mu    sync.Mutex
	names []string
}

func (l *fitLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *fitLog) has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.names {
		if n == name {
			return true
		}
	}
	return false
}

// spyModel wraps a model and logs its fits.
type spyModel struct {
	service.Model
	log *fitLog
}

func (s spyModel) Fit(ctx context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	s.log.add(s.Spec().Name)
	return s.Model.Fit(ctx, w)
}
