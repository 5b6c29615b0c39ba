package forecasting

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
)

func newTestPipeline(t *testing.T, cfg Config, ms ...service.Model) *Pipeline {
	t.Helper()
	var reg *Registry
	var err error
	if len(ms) == 0 {
		reg, err = NewDefaultRegistry(cfg)
	} else {
		reg, err = NewRegistry(ms...)
	}
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	p, err := NewPipeline(cfg, reg, WithClock(func() time.Time { return testStart }))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p
}

func findDQ(res *models.ForecastResult, model string) (models.Disqualification, bool) {
	for _, d := range res.Disqualified {
		if d.Model == model {
			return d, true
		}
	}
	return models.Disqualification{}, false
}

func TestPipelinePicksTrendOnGrowingSeries(t *testing.T) {
	p := newTestPipeline(t, testConfig(nil))
	res, err := p.Run(context.Background(), models.ForecastRequest{Series: monthlySeries(growthValues(24)...), Horizon: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.BestModel != ModelLinearTrend || res.ScoreCards[0].Model != ModelLinearTrend {
		t.Fatalf("expected linear trend to win, got %s (%+v)", res.BestModel, res.ScoreCards)
	}
	if res.Metadata.HoldoutPeriods != 3 || res.Metadata.TrainingPeriods != 21 {
		t.Fatalf("unexpected split in metadata: %+v", res.Metadata)
	}
	if len(res.Best.Forecast) != 3 || len(res.History) != 24 || len(res.Annotations) != 24 {
		t.Fatalf("unexpected result shape")
	}
	if res.Best.Forecast[0].Value <= growthValues(24)[23] {
		t.Fatalf("forecast should keep growing, got %v", res.Best.Forecast[0].Value)
	}

	trend, ok1 := res.ScoreCard(ModelLinearTrend)
	naive, ok2 := res.ScoreCard(ModelNaiveMean)
	if !ok1 || !ok2 || trend.Metrics[MetricMAPE] >= naive.Metrics[MetricMAPE] {
		t.Fatalf("trend should beat the mean: %+v vs %+v", trend, naive)
	}

	if d, ok := findDQ(res, ModelSeasonal); !ok || d.Stage != models.StageConformance {
		t.Fatalf("seasonal model should fail conformance, got %+v", res.Disqualified)
	}
	if d, ok := findDQ(res, ModelCategoryProfile); !ok || d.Reason != CodeCategoryProfile {
		t.Fatalf("category profile model should need a profile, got %+v", res.Disqualified)
	}
	if len(res.Conformance) != 5 {
		t.Fatalf("expected a report per registered model, got %d", len(res.Conformance))
	}
	if !res.Metadata.GeneratedAt.Equal(testStart) || res.RunID == "" {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
}

func TestPipelineScoresSeasonalDecomposition(t *testing.T) {
	p := newTestPipeline(t, testConfig(nil))
	res, err := p.Run(context.Background(), models.ForecastRequest{Series: monthlySeries(seasonalValues(3)...), Horizon: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if d, ok := findDQ(res, ModelSeasonal); ok {
		t.Fatalf("seasonal model should be fit, got %+v", d)
	}
	seasonal, ok := res.ScoreCard(ModelSeasonal)
	if _, hasMAPE := seasonal.Metrics[MetricMAPE]; !ok || !seasonal.Scored || !hasMAPE {
		t.Fatalf("seasonal model should be scored, got %+v", seasonal)
	}
	naive, _ := res.ScoreCard(ModelNaiveMean)
	if seasonal.Rank >= naive.Rank {
		t.Fatalf("seasonal model should rank ahead of the mean: %+v vs %+v", seasonal, naive)
	}
}

func TestPipelineSeasonalGateUsesTrainingWindow(t *testing.T) {
	// 24 periods pass a whole-series cycle count but leave one cycle before the holdout.
	p := newTestPipeline(t, testConfig(nil), NaiveMean{}, SeasonalDecomposition{})
	res, err := p.Run(context.Background(), models.ForecastRequest{Series: monthlySeries(seasonalValues(2)...), Horizon: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	d, ok := findDQ(res, ModelSeasonal)
	if !ok || d.Stage != models.StageConformance || d.Reason != CodeSeasonalCycles {
		t.Fatalf("expected a conformance disqualification, got %+v", res.Disqualified)
	}
}

func TestPipelineReturnsCallerCancellation(t *testing.T) {
	slow := &fixedModel{spec: tolerant("slow", 1), value: 5, delay: 5 * time.Second}
	p := newTestPipeline(t, testConfig(nil), slow)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := p.Run(ctx, models.ForecastRequest{Series: monthlySeries(repeat(5, 24)...), Horizon: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var af *models.AllModelsFailedError
	if errors.As(err, &af) {
		t.Fatalf("cancellation must not look like a model failure: %v", err)
	}
}

func TestPipelineShortSeriesAttemptsOnlyShortCapableModels(t *testing.T) {
	cfg := testConfig(nil)
	log := &fitLog{}
	p := newTestPipeline(t, cfg,
		spyModel{NaiveMean{}, log},
		spyModel{SES{}, log},
		spyModel{LinearTrend{MinSeasonalAutocorr: 0.3}, log},
		spyModel{SeasonalDecomposition{}, log},
	)

	res, err := p.Run(context.Background(), models.ForecastRequest{Series: monthlySeries(10, 14, 12, 13, 11), Horizon: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Metadata.ShortSeries {
		t.Fatalf("expected short tag")
	}
	if !log.has(ModelNaiveMean) {
		t.Fatalf("naive mean should be fit")
	}
	for _, name := range []string{ModelSES, ModelLinearTrend, ModelSeasonal} {
		if log.has(name) {
			t.Fatalf("%s must not be attempted on a short series", name)
		}
	}
	if res.BestModel != ModelNaiveMean {
		t.Fatalf("got %s", res.BestModel)
	}
}

func TestPipelineTieGoesToSimplerModel(t *testing.T) {
	complexModel := &fixedModel{spec: tolerant("complex", 3), value: 110}
	simple := &fixedModel{spec: tolerant("simple", 1), value: 90}
	p := newTestPipeline(t, testConfig(nil), complexModel, simple)

	res, err := p.Run(context.Background(), models.ForecastRequest{Series: monthlySeries(repeat(100, 24)...), Horizon: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, c := range res.ScoreCards {
		if math.Abs(c.Metrics[MetricMAPE]-10) > 1e-9 {
			t.Fatalf("%s: expected 10%% error, got %v", c.Model, c.Metrics[MetricMAPE])
		}
	}
	if res.BestModel != "simple" || res.ScoreCards[1].Model != "complex" {
		t.Fatalf("simpler model must win the tie, got %s", res.BestModel)
	}
}

func TestPipelineErrors(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(nil)

	t.Run("no eligible model", func(t *testing.T) {
		p := newTestPipeline(t, cfg, SES{}, SeasonalDecomposition{})
		_, err := p.Run(ctx, models.ForecastRequest{Series: monthlySeries(1, 2, 3), Horizon: 1})
		var ne *models.NoEligibleModelError
		if !errors.As(err, &ne) || len(ne.Reports) != 2 {
			t.Fatalf("expected NoEligibleModelError with 2 reports, got %v", err)
		}
	})

	t.Run("all models failed", func(t *testing.T) {
		broken := &fixedModel{spec: tolerant("broken", 1), err: errors.New("diverged")}
		p := newTestPipeline(t, cfg, broken)
		_, err := p.Run(ctx, models.ForecastRequest{Series: monthlySeries(repeat(5, 24)...), Horizon: 1})
		var af *models.AllModelsFailedError
		if !errors.As(err, &af) || af.Failures[0].Model != "broken" {
			t.Fatalf("expected AllModelsFailedError, got %v", err)
		}
	})

	t.Run("partial failure is recorded, not raised", func(t *testing.T) {
		broken := &fixedModel{spec: tolerant("broken", 1), err: errors.New("diverged")}
		p := newTestPipeline(t, cfg, broken, NaiveMean{})
		res, err := p.Run(ctx, models.ForecastRequest{Series: monthlySeries(repeat(5, 24)...), Horizon: 1})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if d, ok := findDQ(res, "broken"); !ok || d.Stage != models.StageFit {
			t.Fatalf("expected fit disqualification, got %+v", res.Disqualified)
		}
	})

	t.Run("all stockouts", func(t *testing.T) {
		p := newTestPipeline(t, cfg)
		_, err := p.Run(ctx, models.ForecastRequest{Series: monthlySeries(0, 0, 0), Inventory: allStockedOut(3), Horizon: 1})
		if !errors.Is(err, models.ErrInsufficientData) {
			t.Fatalf("expected insufficient data, got %v", err)
		}
	})

	t.Run("bad horizon", func(t *testing.T) {
		p := newTestPipeline(t, cfg)
		_, err := p.Run(ctx, models.ForecastRequest{Series: monthlySeries(1, 2, 3), Horizon: 0})
		if !errors.Is(err, models.ErrInvalidSeries) {
			t.Fatalf("expected invalid series, got %v", err)
		}
	})
}

func TestPipelineStockoutPolicies(t *testing.T) {
	for _, policy := range []models.StockoutPolicy{models.StockoutImpute, models.StockoutExclude} {
		t.Run(string(policy), func(t *testing.T) {
			cfg := testConfig(func(c *Config) { c.StockoutPolicy = policy })
			p := newTestPipeline(t, cfg)
			res, err := p.Run(context.Background(), stockoutRequest())
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			md := res.Metadata
			if md.StockoutPolicy != policy || md.StockoutPeriods != 1 {
				t.Fatalf("unexpected metadata %+v", md)
			}
			switch policy {
			case models.StockoutImpute:
				if md.ImputedPeriods != 1 || md.ExcludedPeriods != 0 || md.UsableObservations != 24 {
					t.Fatalf("impute metadata %+v", md)
				}
			case models.StockoutExclude:
				if md.ExcludedPeriods != 1 || md.ImputedPeriods != 0 || md.UsableObservations != 23 {
					t.Fatalf("exclude metadata %+v", md)
				}
			}
			if !res.Annotations[14].IsStockout {
				t.Fatalf("stockout annotation missing")
			}
			// Recorded demand of 5 must not drag the flat forecast down.
			if v := res.Best.Forecast[0].Value; math.Abs(v-100) > 1e-6 {
				t.Fatalf("expected forecast of 100, got %v", v)
			}
		})
	}
}
