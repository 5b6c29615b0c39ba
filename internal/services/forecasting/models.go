package forecasting

import (
	"context"
	"errors"
	"fmt"
	"math"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
)

// Built-in model names.
const (
	ModelNaiveMean       = "naive_mean"
	ModelSES             = "ses"
	ModelLinearTrend     = "linear_trend"
	ModelSeasonal        = "seasonal_decomposition"
	ModelCategoryProfile = "category_profile"
)

var errNoPoints = errors.New("training window has no points")

// fitted is the shared FittedModel: a per-index predictor plus diagnostics.
type fitted struct {
	end        int
	at         func(idx int) float64
	params     map[string]float64
	residSD    float64
	complexity int
	seasonal   *bool
}

func (f *fitted) Predict(steps int) ([]float64, error) {
	if steps < 0 {
		return nil, fmt.Errorf("negative steps %d", steps)
	}
	out := make([]float64, steps)
	for k := range out {
		v := f.at(f.end + k)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite prediction at step %d", k)
		}
		out[k] = v
	}
	return out, nil
}

func (f *fitted) Params() map[string]float64 {
	out := make(map[string]float64, len(f.params))
	for k, v := range f.params {
		out[k] = v
	}
	return out
}

func (f *fitted) ResidualStdDev() float64 { return f.residSD }

// Complexity overrides the ModelSpec value when fitting added parameters.
func (f *fitted) Complexity() int { return f.complexity }

// Seasonal reports the structure chosen at fit time. ok is false for models
// whose structure does not depend on the window.
func (f *fitted) Seasonal() (seasonal, ok bool) {
	if f.seasonal == nil {
		return false, false
	}
	return *f.seasonal, true
}

func residualSD(pts []models.DemandPoint, at func(int) float64) float64 {
	res := make([]float64, len(pts))
	for i, p := range pts {
		res[i] = p.Value - at(p.Index)
	}
	return stdDev(res)
}

// --- naive mean ---

// NaiveMean forecasts the flat average of the window. It works on any
// non-empty series and is the baseline every other model must beat.
type NaiveMean struct{}

func (NaiveMean) Spec() service.ModelSpec {
	return service.ModelSpec{Name: ModelNaiveMean, Complexity: 1, MinObservations: 1, ShortSeriesCapable: true, StockoutTolerant: true}
}

func (NaiveMean) Fit(_ context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	if len(w.Points) == 0 {
		return nil, errNoPoints
	}
	level := mean(valuesOf(w.Points))
	at := func(int) float64 { return level }
	return &fitted{end: w.End, at: at, params: map[string]float64{"level": level}, residSD: residualSD(w.Points, at), complexity: 1}, nil
}

// --- simple exponential smoothing ---

// SES is simple exponential smoothing with alpha chosen by one-step SSE.
type SES struct{}

func (SES) Spec() service.ModelSpec {
	return service.ModelSpec{Name: ModelSES, Complexity: 2, MinObservations: 3}
}

func (SES) Fit(ctx context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	vals := valuesOf(w.Points)
	if len(vals) < 2 {
		return nil, errNoPoints
	}
	bestAlpha, bestSSE, bestLevel := 0.0, math.Inf(1), 0.0
	var bestRes []float64
	for a := 0.05; a < 0.96; a += 0.05 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		level := vals[0]
		sse := 0.0
		res := make([]float64, 0, len(vals)-1)
		for _, v := range vals[1:] {
			e := v - level
			sse += e * e
			res = append(res, e)
			level += a * e
		}
		if sse < bestSSE {
			bestAlpha, bestSSE, bestLevel, bestRes = a, sse, level, res
		}
	}
	level := bestLevel
	return &fitted{
		end:        w.End,
		at:         func(int) float64 { return level },
		params:     map[string]float64{"alpha": math.Round(bestAlpha*100) / 100, "level": level},
		residSD:    stdDev(bestRes),
		complexity: 2,
	}, nil
}

// --- linear trend ---

// LinearTrend extrapolates an OLS trend. With two full cycles of detectable
// seasonality it fits the trend on deseasonalised demand and reapplies the
// multiplicative indices.
type LinearTrend struct {
	MinSeasonalAutocorr float64
}

func (LinearTrend) Spec() service.ModelSpec {
	return service.ModelSpec{Name: ModelLinearTrend, Complexity: 2, MinObservations: 3, RequiresStableTrend: true}
}

func (m LinearTrend) Fit(ctx context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	if len(w.Points) < 2 {
		return nil, errNoPoints
	}
	line := pointLine(w.Points)
	season := w.SeasonLength
	params := map[string]float64{"intercept": line.Intercept, "slope": line.Slope, "seasonal": 0}
	complexity := 2
	index := func(int) float64 { return 1 }

	seasonal := m.seasonal(w)
	if seasonal {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := seasonalIndices(w.Points, func(i int) float64 { return line.At(float64(i)) }, season)
		adj := make([]models.DemandPoint, len(w.Points))
		for i, p := range w.Points {
			adj[i] = p
			adj[i].Value = p.Value / idx[p.SeasonPosition%season]
		}
		line = pointLine(adj)
		index = func(i int) float64 { return idx[w.SeasonPositionAt(i)%season] }
		params["intercept"], params["slope"], params["seasonal"] = line.Intercept, line.Slope, 1
		complexity += season
	}

	at := func(i int) float64 { return line.At(float64(i)) * index(i) }
	return &fitted{end: w.End, at: at, params: params, residSD: residualSD(w.Points, at), complexity: complexity, seasonal: &seasonal}, nil
}

// seasonal decides whether the window gets multiplicative indices. A pinned
// decision wins over detection so a refit keeps the scored structure.
func (m LinearTrend) seasonal(w models.TrainingWindow) bool {
	season := w.SeasonLength
	if season < 2 {
		return false
	}
	if w.Seasonal != nil {
		return *w.Seasonal
	}
	if w.End < 2*season {
		return false
	}
	floor := m.MinSeasonalAutocorr
	if w.SeasonalityFloor != nil {
		floor = *w.SeasonalityFloor
	}
	acf, ok := seasonalAutocorr(w.Points, season)
	return ok && acf >= floor
}

// --- classical decomposition ---

// SeasonalDecomposition is a classical multiplicative decomposition: centred
// moving-average trend, averaged seasonal ratios, then an OLS trend on the
// deseasonalised series.
type SeasonalDecomposition struct{}

func (SeasonalDecomposition) Spec() service.ModelSpec {
	return service.ModelSpec{Name: ModelSeasonal, Complexity: 2, MinObservations: 4, RequiresSeasonality: true}
}

func (SeasonalDecomposition) Fit(ctx context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	season := w.SeasonLength
	if season < 2 || w.End < 2*season {
		return nil, fmt.Errorf("need %d periods for two seasonal cycles, have %d", 2*season, w.End)
	}
	dense, err := densify(w.Points, w.End)
	if err != nil {
		return nil, err
	}
	cma := centredMA(dense, season)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ratios := make([]models.DemandPoint, 0, len(w.Points))
	for _, p := range w.Points {
		if c := cma[p.Index]; c > 0 {
			ratios = append(ratios, models.DemandPoint{Index: p.Index, SeasonPosition: p.SeasonPosition, Value: p.Value / c})
		}
	}
	if len(ratios) == 0 {
		return nil, errors.New("moving average undefined over the window")
	}
	idx := seasonalIndices(ratios, func(int) float64 { return 1 }, season)

	adj := make([]models.DemandPoint, len(w.Points))
	for i, p := range w.Points {
		adj[i] = p
		adj[i].Value = p.Value / idx[p.SeasonPosition%season]
	}
	line := pointLine(adj)
	at := func(i int) float64 { return line.At(float64(i)) * idx[w.SeasonPositionAt(i)%season] }
	params := map[string]float64{"intercept": line.Intercept, "slope": line.Slope}
	for i, v := range idx {
		params[fmt.Sprintf("s%02d", i)] = v
	}
	return &fitted{end: w.End, at: at, params: params, residSD: residualSD(w.Points, at), complexity: 2 + season}, nil
}

// densify lays points on [0, end) and linearly interpolates holes.
func densify(pts []models.DemandPoint, end int) ([]float64, error) {
	if len(pts) == 0 {
		return nil, errNoPoints
	}
	out := make([]float64, end)
	known := make([]bool, end)
	for _, p := range pts {
		if p.Index >= 0 && p.Index < end {
			out[p.Index] = p.Value
			known[p.Index] = true
		}
	}
	prev := -1
	for i := 0; i < end; i++ {
		if !known[i] {
			continue
		}
		switch {
		case prev == -1:
			for j := 0; j < i; j++ {
				out[j] = out[i]
			}
		case i-prev > 1:
			step := (out[i] - out[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out[j] = out[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	for j := prev + 1; j < end; j++ {
		out[j] = out[prev]
	}
	return out, nil
}

// centredMA returns the centred moving average; undefined edges are 0.
func centredMA(xs []float64, season int) []float64 {
	out := make([]float64, len(xs))
	half := season / 2
	for i := half; i+half < len(xs); i++ {
		if season%2 == 1 {
			out[i] = mean(xs[i-half : i+half+1])
			continue
		}
		// 2xm moving average for even seasons.
		s := xs[i-half]/2 + xs[i+half]/2
		for j := i - half + 1; j < i+half; j++ {
			s += xs[j]
		}
		out[i] = s / float64(season)
	}
	return out
}

// --- category profile fallback ---

// CategoryProfileModel forecasts the product's deseasonalised level shaped by
// the category's seasonal indices. It is the fallback for new or sparse products.
type CategoryProfileModel struct{}

func (CategoryProfileModel) Spec() service.ModelSpec {
	return service.ModelSpec{
		Name:                 ModelCategoryProfile,
		Complexity:           1,
		MinObservations:      1,
		ShortSeriesCapable:   true,
		NeedsCategoryProfile: true,
		StockoutTolerant:     true,
	}
}

func (CategoryProfileModel) Fit(_ context.Context, w models.TrainingWindow) (service.FittedModel, error) {
	if w.Profile == nil {
		return nil, errors.New("category profile missing")
	}
	if len(w.Points) == 0 {
		return nil, errNoPoints
	}
	var sum float64
	for _, p := range w.Points {
		sum += p.Value / w.Profile.Index(p.SeasonPosition)
	}
	level := sum / float64(len(w.Points))
	profile := w.Profile
	at := func(i int) float64 { return level * profile.Index(w.SeasonPositionAt(i)) }
	return &fitted{end: w.End, at: at, params: map[string]float64{"level": level}, residSD: residualSD(w.Points, at), complexity: 1}, nil
}

var (
	_ service.Model = NaiveMean{}
	_ service.Model = SES{}
	_ service.Model = LinearTrend{}
	_ service.Model = SeasonalDecomposition{}
	_ service.Model = CategoryProfileModel{}
)
