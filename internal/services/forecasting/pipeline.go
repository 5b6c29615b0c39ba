package forecasting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/repository"
	"DemandCast/internal/domain/service"
	"DemandCast/pkg/logger"
	"DemandCast/pkg/metrics"
)

// Pipeline runs preparation, conformance gating, the ensemble and selection.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	registry *Registry
	preparer *Preparer
	runner   *Runner
	metrics  repository.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

type Option func(*Pipeline)

func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline validates cfg and wires the stages.
func NewPipeline(cfg Config, registry *Registry, opts ...Option) (*Pipeline, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("new pipeline: nil registry")
	}
	p := &Pipeline{
		cfg:      cfg,
		registry: registry,
		preparer: NewPreparer(cfg),
		metrics:  metrics.Nop{},
		logger:   logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.runner = NewRunner(cfg, p.metrics, p.logger)
	return p, nil
}

// Config returns the normalized configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Registry returns the model registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Run produces a complete result or exactly one typed error.
func (p *Pipeline) Run(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error) {
	ctx, span := tracer.Start(ctx, "forecasting.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("selector", req.Series.Selector.String()),
		attribute.String("granularity", string(req.Series.Granularity)),
		attribute.Int("horizon", req.Horizon),
	)

	start := time.Now()
	res, err := p.run(ctx, req)
	p.metrics.RecordLatency("pipeline", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		p.metrics.RecordRun(errorKind(err))
		return nil, err
	}
	p.metrics.RecordRun("ok")
	p.logger.Info("forecast computed",
		logger.String("selector", res.Selector.String()),
		logger.String("best_model", res.BestModel),
		logger.Int("candidates", len(res.Candidates)),
		logger.Int("disqualified", len(res.Disqualified)),
		logger.Duration("elapsed_ms", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error) {
	if req.Horizon < 1 || req.Horizon > p.cfg.MaxHorizon {
		return nil, &models.InvalidSeriesError{Reason: fmt.Sprintf("horizon %d outside [1, %d]", req.Horizon, p.cfg.MaxHorizon)}
	}

	_, prepSpan := tracer.Start(ctx, "forecasting.prepare")
	ps, err := p.preparer.Prepare(req)
	prepSpan.End()
	if err != nil {
		return nil, err
	}

	th := p.cfg.ThresholdsFor(req.Tier)
	split := PlanSplit(p.cfg, ps, req.Horizon)
	var eligible []service.Model
	var reports []models.ConformanceReport
	var dqs []models.Disqualification
	for _, m := range p.registry.Models(p.cfg.Models...) {
		rep := ValidateWindow(ps, split.TrainEnd, m.Spec(), th)
		reports = append(reports, rep)
		if rep.Passed {
			eligible = append(eligible, m)
			continue
		}
		failed := make([]string, len(rep.Violations))
		for i, v := range rep.Violations {
			failed[i] = v.Code
		}
		dqs = append(dqs, models.Disqualification{Model: rep.Model, Stage: models.StageConformance, Reason: strings.Join(failed, ",")})
	}
	if len(eligible) == 0 {
		return nil, &models.NoEligibleModelError{Reports: reports}
	}

	cands, fitDQs := p.runner.Run(ctx, ps, split, req.Horizon, th, eligible)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, &models.AllModelsFailedError{Failures: fitDQs}
	}
	dqs = append(dqs, fitDQs...)

	cards := Score(ps, split, cands, p.cfg.PrimaryMetric, p.cfg.SecondaryMetric)
	best, _ := findCandidate(cands, cards[0].Model)

	return &models.ForecastResult{
		RunID:        uuid.NewString(),
		Selector:     ps.Selector,
		Granularity:  ps.Granularity,
		Horizon:      req.Horizon,
		BestModel:    best.Model,
		Best:         best,
		Candidates:   cands,
		ScoreCards:   cards,
		Conformance:  reports,
		Disqualified: dqs,
		Annotations:  ps.Annotations,
		History:      ps.Display,
		Metadata: models.ResultMetadata{
			SeriesLength:       ps.GridLen(),
			UsableObservations: len(ps.Points),
			ShortSeries:        ps.Short,
			StockoutPolicy:     ps.Policy,
			StockoutPeriods:    ps.Stockouts,
			ImputedPeriods:     ps.ImputedCount,
			ExcludedPeriods:    ps.Excluded,
			OutlierPeriods:     ps.Outliers,
			PromotionalPeriods: ps.Promotional,
			GapPeriods:         ps.Gaps,
			TrainingPeriods:    split.TrainEnd,
			HoldoutPeriods:     split.Holdout,
			PrimaryMetric:      p.cfg.PrimaryMetric,
			Tier:               req.Tier,
			TotalRevenue:       totalRevenue(ps.Display),
			AsOf:               req.AsOf,
			DataVersion:        req.DataVersion,
			GeneratedAt:        p.now().UTC(),
		},
	}, nil
}

func findCandidate(cands []models.ForecastCandidate, name string) (models.ForecastCandidate, bool) {
	for _, c := range cands {
		if c.Model == name {
			return c, true
		}
	}
	return models.ForecastCandidate{}, false
}

func totalRevenue(obs []models.Observation) string {
	total := decimal.Zero
	seen := false
	for _, o := range obs {
		if o.Revenue != nil {
			total = total.Add(*o.Revenue)
			seen = true
		}
	}
	if !seen {
		return ""
	}
	return total.StringFixed(2)
}

// errorKind labels a pipeline error for metrics.
func errorKind(err error) string {
	switch err.(type) {
	case *models.InsufficientDataError:
		return "insufficient_data"
	case *models.InvalidSeriesError:
		return "invalid_series"
	case *models.NoEligibleModelError:
		return "no_eligible_model"
	case *models.AllModelsFailedError:
		return "all_models_failed"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
