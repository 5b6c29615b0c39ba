package forecasting

import (
	"math"
	"sort"

	"DemandCast/internal/domain/models"
)

// Metric names.
const (
	MetricMAPE  = "mape"
	MetricWAPE  = "wape"
	MetricSMAPE = "smape"
	MetricMAE   = "mae"
	MetricRMSE  = "rmse"
	MetricBias  = "bias"
)

// PlanSplit picks the held-out window shared by every candidate of a run.
func PlanSplit(cfg Config, ps *models.PreparedSeries, horizon int) Split {
	n := ps.GridLen()
	h := cfg.HoldoutPeriods
	if h <= 0 {
		h = int(math.Ceil(float64(horizon) * cfg.HoldoutHorizonRatio))
	}
	if limit := int(float64(n) * cfg.MaxHoldoutShare); h > limit {
		h = limit
	}
	for h > 0 && !hasPointBefore(ps, n-h) {
		h--
	}
	if h > 0 && len(holdoutActuals(ps, n-h)) == 0 {
		h = 0
	}
	return Split{TrainEnd: n - h, Holdout: h}
}

func hasPointBefore(ps *models.PreparedSeries, end int) bool {
	return len(ps.Points) > 0 && ps.Points[0].Index < end
}

// holdoutActuals are the observed (not imputed, not excluded) points from trainEnd on.
func holdoutActuals(ps *models.PreparedSeries, trainEnd int) []models.DemandPoint {
	var out []models.DemandPoint
	for _, p := range ps.Points {
		if p.Index >= trainEnd && !p.Imputed {
			out = append(out, p)
		}
	}
	return out
}

// Metrics computes accuracy metrics. Undefined metrics are omitted, never NaN.
func Metrics(actual, pred []float64) map[string]float64 {
	out := make(map[string]float64)
	n := len(actual)
	if n == 0 || len(pred) != n {
		return out
	}
	var absErr, sqErr, bias, absAct, apeSum, sapeSum float64
	apeN, sapeN := 0, 0
	for i := range actual {
		a, f := actual[i], pred[i]
		e := math.Abs(a - f)
		absErr += e
		sqErr += e * e
		bias += f - a
		absAct += math.Abs(a)
		if a != 0 {
			apeSum += e / math.Abs(a)
			apeN++
		}
		if d := math.Abs(a) + math.Abs(f); d != 0 {
			sapeSum += 2 * e / d
			sapeN++
		}
	}
	out[MetricMAE] = absErr / float64(n)
	out[MetricRMSE] = math.Sqrt(sqErr / float64(n))
	out[MetricBias] = bias / float64(n)
	if apeN > 0 {
		out[MetricMAPE] = apeSum / float64(apeN) * 100
	}
	if absAct > 0 {
		out[MetricWAPE] = absErr / absAct * 100
	}
	if sapeN > 0 {
		out[MetricSMAPE] = sapeSum / float64(sapeN) * 100
	}
	return out
}

// Score evaluates every candidate on the same held-out actuals and ranks them.
func Score(ps *models.PreparedSeries, split Split, cands []models.ForecastCandidate, primary, secondary string) []models.ScoreCard {
	actuals := holdoutActuals(ps, split.TrainEnd)
	cards := make([]models.ScoreCard, len(cands))
	for i, c := range cands {
		card := models.ScoreCard{Model: c.Model, Complexity: c.Complexity, Holdout: split.Holdout, Metrics: map[string]float64{}}
		if split.Holdout > 0 && len(c.Backtest) == split.Holdout {
			a := make([]float64, len(actuals))
			f := make([]float64, len(actuals))
			for j, p := range actuals {
				a[j] = p.Value
				f[j] = c.Backtest[p.Index-split.TrainEnd].Value
			}
			card.Metrics = Metrics(a, f)
			card.Scored = len(card.Metrics) > 0
		}
		cards[i] = card
	}
	return Rank(cards, primary, secondary)
}

// Rank orders cards by primary metric, secondary metric, complexity, then
// name. Unscored cards and missing metrics sort after any defined value.
func Rank(cards []models.ScoreCard, primary, secondary string) []models.ScoreCard {
	out := append([]models.ScoreCard(nil), cards...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for _, m := range []string{primary, secondary} {
			va, vb := metricValue(a, m), metricValue(b, m)
			if !nearlyEqual(va, vb) {
				return va < vb
			}
		}
		if a.Complexity != b.Complexity {
			return a.Complexity < b.Complexity
		}
		return a.Model < b.Model
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func metricValue(c models.ScoreCard, name string) float64 {
	v, ok := c.Metrics[name]
	if !ok || !c.Scored {
		return math.Inf(1)
	}
	if name == MetricBias {
		return math.Abs(v)
	}
	return v
}

func nearlyEqual(a, b float64) bool {
	if math.IsInf(a, 1) && math.IsInf(b, 1) {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= 1e-9*scale
}
