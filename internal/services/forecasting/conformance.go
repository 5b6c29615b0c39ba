package forecasting

import (
	"fmt"
	"math"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
)

// Violation codes.
const (
	CodeShortSeries          = "short_series"
	CodeMinObservations      = "min_observations"
	CodeSeasonalCycles       = "seasonal_cycles"
	CodeSeasonalityStrength  = "seasonality_strength"
	CodeTrendStability       = "trend_stability"
	CodeStockoutShare        = "stockout_share"
	CodeOutlierShare         = "outlier_share"
	CodeConsecutiveStockouts = "consecutive_stockouts"
	CodeCategoryProfile      = "category_profile"
)

// Validate checks whether series satisfies spec's preconditions under th.
// It is pure: same inputs, same report, and the series is only read.
func Validate(series *models.PreparedSeries, spec service.ModelSpec, th Thresholds) models.ConformanceReport {
	return ValidateWindow(series, series.GridLen(), spec, th)
}

// ValidateWindow is Validate with the seasonal gates evaluated on the grid
// before trainEnd, the window a backtest fit will actually see.
func ValidateWindow(series *models.PreparedSeries, trainEnd int, spec service.ModelSpec, th Thresholds) models.ConformanceReport {
	r := models.ConformanceReport{Model: spec.Name}
	add := func(code string, observed, threshold float64, format string, args ...any) {
		r.Violations = append(r.Violations, models.Violation{
			Code:      code,
			Message:   fmt.Sprintf(format, args...),
			Observed:  observed,
			Threshold: threshold,
		})
	}

	n := len(series.Points)
	season := series.SeasonLength()

	if series.Short && !spec.ShortSeriesCapable {
		add(CodeShortSeries, float64(n), 0, "series is short and %s needs a full history", spec.Name)
	}

	required := spec.MinObservations
	if !spec.ShortSeriesCapable && th.MinObservations > required {
		required = th.MinObservations
	}
	if n < required {
		add(CodeMinObservations, float64(n), float64(required), "%d usable observations, need %d", n, required)
	}

	if spec.RequiresSeasonality {
		cycles := trainEnd / season
		if cycles < th.MinSeasonalCycles {
			add(CodeSeasonalCycles, float64(cycles), float64(th.MinSeasonalCycles), "%d full seasonal cycles before the holdout, need %d", cycles, th.MinSeasonalCycles)
		} else {
			acf, ok := seasonalAutocorr(pointsBefore(series.Points, trainEnd), season)
			if !ok || acf < th.MinSeasonalAutocorr {
				add(CodeSeasonalityStrength, acf, th.MinSeasonalAutocorr, "seasonal autocorrelation %.3f at lag %d below %.3f", acf, season, th.MinSeasonalAutocorr)
			}
		}
	}

	if spec.RequiresStableTrend && n >= 4 {
		if rev, ok := trendReversal(series.Points); ok && rev > th.TrendReversalTolerance {
			add(CodeTrendStability, rev, th.TrendReversalTolerance, "trend reverses between halves (%.4f per period)", rev)
		}
	}

	if !spec.StockoutTolerant {
		total := float64(series.GridLen())
		if share := float64(series.Stockouts) / total; share > th.MaxStockoutShare {
			add(CodeStockoutShare, share, th.MaxStockoutShare, "%.0f%% of periods are stockouts", share*100)
		}
		if share := float64(series.Outliers) / total; share > th.MaxOutlierShare {
			add(CodeOutlierShare, share, th.MaxOutlierShare, "%.0f%% of periods are outliers", share*100)
		}
		if th.MaxConsecutiveStockouts >= 0 {
			flags := make([]bool, len(series.Annotations))
			for i, a := range series.Annotations {
				flags[i] = a.IsStockout
			}
			if run := longestRun(flags); run > th.MaxConsecutiveStockouts {
				add(CodeConsecutiveStockouts, float64(run), float64(th.MaxConsecutiveStockouts), "%d consecutive stockout periods", run)
			}
		}
	}

	if spec.NeedsCategoryProfile {
		p := series.Profile
		switch {
		case p == nil:
			add(CodeCategoryProfile, 0, 1, "no category profile available")
		case p.Granularity != series.Granularity || len(p.Indices) != season:
			add(CodeCategoryProfile, float64(len(p.Indices)), float64(season), "category profile is %s with %d indices", p.Granularity, len(p.Indices))
		}
	}

	r.Passed = len(r.Violations) == 0
	return r
}

// trendReversal compares the level-normalised slopes of both halves. It
// returns the smaller magnitude when they point in opposite directions, and
// 0 otherwise.
func trendReversal(pts []models.DemandPoint) (float64, bool) {
	half := len(pts) / 2
	level := mean(valuesOf(pts))
	if level <= 0 || half < 2 {
		return 0, false
	}
	s1 := pointLine(pts[:half]).Slope / level
	s2 := pointLine(pts[half:]).Slope / level
	if s1*s2 >= 0 {
		return 0, true
	}
	return math.Min(math.Abs(s1), math.Abs(s2)), true
}

func pointsBefore(pts []models.DemandPoint, end int) []models.DemandPoint {
	out := make([]models.DemandPoint, 0, len(pts))
	for _, p := range pts {
		if p.Index < end {
			out = append(out, p)
		}
	}
	return out
}

func valuesOf(pts []models.DemandPoint) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}
