package forecasting

import (
	"math"
	"sort"

	"DemandCast/internal/domain/models"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	c := append([]float64(nil), xs...)
	sort.Float64s(c)
	m := len(c) / 2
	if len(c)%2 == 1 {
		return c[m]
	}
	return (c[m-1] + c[m]) / 2
}

// mad is the median absolute deviation around med.
func mad(xs []float64, med float64) float64 {
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	return median(dev)
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		s += (x - m) * (x - m)
	}
	return math.Sqrt(s / float64(len(xs)-1))
}

// linearFit is an ordinary least squares line y = intercept + slope*x.
type linearFit struct {
	Intercept float64
	Slope     float64
}

func (f linearFit) At(x float64) float64 { return f.Intercept + f.Slope*x }

func fitLine(xs, ys []float64) linearFit {
	n := float64(len(xs))
	if len(xs) == 0 {
		return linearFit{}
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx float64
	for i := range xs {
		sxy += (xs[i] - mx) * (ys[i] - my)
		sxx += (xs[i] - mx) * (xs[i] - mx)
	}
	if sxx == 0 || n < 2 {
		return linearFit{Intercept: my}
	}
	slope := sxy / sxx
	return linearFit{Intercept: my - slope*mx, Slope: slope}
}

// pointLine fits a trend over the grid index of the points.
func pointLine(pts []models.DemandPoint) linearFit {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = float64(p.Index)
		ys[i] = p.Value
	}
	return fitLine(xs, ys)
}

// seasonalAutocorr is the autocorrelation at lag of the linearly detrended
// points. Pairs are matched by grid index so excluded periods do not shift
// the lag. ok is false when no pair exists or variance is zero.
func seasonalAutocorr(pts []models.DemandPoint, lag int) (float64, bool) {
	if len(pts) <= lag || lag <= 0 {
		return 0, false
	}
	line := pointLine(pts)
	resid := make(map[int]float64, len(pts))
	var all []float64
	for _, p := range pts {
		r := p.Value - line.At(float64(p.Index))
		resid[p.Index] = r
		all = append(all, r)
	}
	m := mean(all)
	var denom float64
	for _, r := range all {
		denom += (r - m) * (r - m)
	}
	if denom == 0 {
		return 0, false
	}
	var num float64
	pairs := 0
	for _, p := range pts {
		other, ok := resid[p.Index+lag]
		if !ok {
			continue
		}
		num += (resid[p.Index] - m) * (other - m)
		pairs++
	}
	if pairs == 0 {
		return 0, false
	}
	// Rescale for missing pairs so the estimate stays comparable to a full grid.
	full := float64(len(all) - lag)
	if full > 0 && pairs < int(full) {
		num *= full / float64(pairs)
	}
	return num / denom, true
}

// seasonalIndices estimates multiplicative indices per season position as the
// mean ratio of value to trend. Positions without data get 1. Indices are
// normalized to average 1.
func seasonalIndices(pts []models.DemandPoint, trend func(idx int) float64, season int) []float64 {
	sum := make([]float64, season)
	cnt := make([]int, season)
	for _, p := range pts {
		t := trend(p.Index)
		if t <= 0 {
			continue
		}
		pos := p.SeasonPosition % season
		sum[pos] += p.Value / t
		cnt[pos]++
	}
	idx := make([]float64, season)
	var total float64
	for i := range idx {
		if cnt[i] > 0 {
			idx[i] = sum[i] / float64(cnt[i])
		} else {
			idx[i] = 1
		}
		total += idx[i]
	}
	if total <= 0 {
		for i := range idx {
			idx[i] = 1
		}
		return idx
	}
	norm := float64(season) / total
	for i := range idx {
		idx[i] *= norm
		if idx[i] <= 0 {
			idx[i] = 1e-6
		}
	}
	return idx
}

// longestRun counts the longest streak of true values.
func longestRun(flags []bool) int {
	best, cur := 0, 0
	for _, f := range flags {
		if f {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}

func clampNonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
