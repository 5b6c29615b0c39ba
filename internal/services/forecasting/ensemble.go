package forecasting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/repository"
	"DemandCast/internal/domain/service"
	"DemandCast/pkg/logger"
	"DemandCast/pkg/metrics"
)

var tracer = otel.Tracer("DemandCast/forecasting")

// Split is the shared train/holdout boundary of a run.
type Split struct {
	TrainEnd int // exclusive grid index
	Holdout  int
}

// Runner fits eligible models concurrently, each under its own deadline.
type Runner struct {
	parallelism int
	fitTimeout  time.Duration
	intervalZ   float64
	metrics     repository.Metrics
	logger      *logger.Logger
}

func NewRunner(cfg Config, m repository.Metrics, l *logger.Logger) *Runner {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Runner{
		parallelism: cfg.Parallelism,
		fitTimeout:  cfg.FitTimeout,
		intervalZ:   cfg.IntervalZ,
		metrics:     m,
		logger:      l,
	}
}

type fitOutcome struct {
	cand models.ForecastCandidate
	err  error
}

// Run returns candidates and fit disqualifications, both in model order.
// A failing model never affects the others. th carries the tier's fit-time
// thresholds.
func (r *Runner) Run(ctx context.Context, ps *models.PreparedSeries, split Split, horizon int, th Thresholds, eligible []service.Model) ([]models.ForecastCandidate, []models.Disqualification) {
	outcomes := make([]fitOutcome, len(eligible))

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, m := range eligible {
		g.Go(func() error {
			outcomes[i] = r.fitOne(ctx, m, ps, split, horizon, th)
			return nil
		})
	}
	_ = g.Wait()

	var cands []models.ForecastCandidate
	var dqs []models.Disqualification
	for i, o := range outcomes {
		name := eligible[i].Spec().Name
		if o.err != nil {
			fe := &models.CandidateFitError{Model: name, Err: o.err}
			r.logger.Warn("candidate disqualified", logger.String("model", name), logger.String("selector", ps.Selector.String()), logger.Error(fe))
			dqs = append(dqs, models.Disqualification{Model: name, Stage: models.StageFit, Reason: o.err.Error()})
			continue
		}
		cands = append(cands, o.cand)
	}
	return cands, dqs
}

func (r *Runner) fitOne(ctx context.Context, m service.Model, ps *models.PreparedSeries, split Split, horizon int, th Thresholds) fitOutcome {
	name := m.Spec().Name
	ctx, span := tracer.Start(ctx, "forecasting.fit")
	span.SetAttributes(attribute.String("model", name), attribute.Int("holdout", split.Holdout))
	defer span.End()

	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, r.fitTimeout)
	defer cancel()

	done := make(chan fitOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fitOutcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		c, err := r.candidate(fctx, m, ps, split, horizon, th)
		done <- fitOutcome{cand: c, err: err}
	}()

	var out fitOutcome
	select {
	case out = <-done:
	case <-fctx.Done():
		if err := ctx.Err(); err != nil {
			out.err = err
		} else {
			out.err = fmt.Errorf("fit exceeded %s: %w", r.fitTimeout, fctx.Err())
		}
	}

	outcome := "ok"
	switch {
	case out.err == nil:
	case ctx.Err() != nil:
		outcome = "canceled"
	case errors.Is(out.err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, outcome)
	}
	r.metrics.RecordFit(name, outcome, time.Since(start).Seconds())
	return out
}

type complexityReporter interface{ Complexity() int }

type seasonalReporter interface{ Seasonal() (bool, bool) }

// candidate backtests on the training window, then refits on everything.
// A structure the backtest fit settled on is pinned for the refit so the
// scored model is the one that forecasts.
func (r *Runner) candidate(ctx context.Context, m service.Model, ps *models.PreparedSeries, split Split, horizon int, th Thresholds) (models.ForecastCandidate, error) {
	spec := m.Spec()
	c := models.ForecastCandidate{Model: spec.Name, Complexity: spec.Complexity}
	floor := th.MinSeasonalAutocorr
	var pinned *bool

	if split.Holdout > 0 {
		w := ps.Window(split.TrainEnd)
		w.Steps = split.Holdout
		w.SeasonalityFloor = &floor
		fm, err := m.Fit(ctx, w)
		if err != nil {
			return c, fmt.Errorf("backtest fit: %w", err)
		}
		if sr, ok := fm.(seasonalReporter); ok {
			if seasonal, known := sr.Seasonal(); known {
				pinned = &seasonal
			}
		}
		preds, err := fm.Predict(split.Holdout)
		if err != nil {
			return c, fmt.Errorf("backtest predict: %w", err)
		}
		c.Backtest = make([]models.ForecastPoint, len(preds))
		for k, v := range preds {
			c.Backtest[k] = models.ForecastPoint{Period: ps.Display[split.TrainEnd+k].Period, Value: clampNonNegative(v)}
		}
	}

	w := ps.Window(ps.GridLen())
	w.Steps = horizon
	w.SeasonalityFloor = &floor
	w.Seasonal = pinned
	fm, err := m.Fit(ctx, w)
	if err != nil {
		return c, fmt.Errorf("fit: %w", err)
	}
	preds, err := fm.Predict(horizon)
	if err != nil {
		return c, fmt.Errorf("predict: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return c, err
	}

	last := ps.Display[ps.GridLen()-1].Period
	sd := fm.ResidualStdDev()
	c.Forecast = make([]models.ForecastPoint, len(preds))
	for k, v := range preds {
		pt := models.ForecastPoint{Period: ps.Granularity.Step(last, k+1), Value: clampNonNegative(v)}
		if r.intervalZ > 0 && sd > 0 && !math.IsNaN(sd) {
			half := r.intervalZ * sd * math.Sqrt(float64(k+1))
			lo, hi := math.Max(0, pt.Value-half), pt.Value+half
			pt.Lower, pt.Upper = &lo, &hi
		}
		c.Forecast[k] = pt
	}
	c.Params = fm.Params()
	if cr, ok := fm.(complexityReporter); ok && cr.Complexity() > 0 {
		c.Complexity = cr.Complexity()
	}
	return c, nil
}
