package forecasting

import (
	"fmt"
	"math"

	"DemandCast/internal/domain/models"
)

// maxGridPeriods bounds gap filling so a bad timestamp cannot allocate forever.
const maxGridPeriods = 20000

// Preparer turns a raw history into an annotated, demand-adjusted series.
type Preparer struct {
	cfg Config
}

func NewPreparer(cfg Config) *Preparer {
	return &Preparer{cfg: cfg}
}

// Prepare never mutates req; every returned slice is freshly allocated.
func (p *Preparer) Prepare(req models.ForecastRequest) (*models.PreparedSeries, error) {
	s := req.Series
	g := s.Granularity
	if !g.Valid() {
		return nil, &models.InvalidSeriesError{Reason: fmt.Sprintf("unknown granularity %q", g)}
	}
	if len(s.Observations) == 0 {
		return nil, &models.InsufficientDataError{Reason: "empty series"}
	}

	display, gaps, err := fillGrid(s)
	if err != nil {
		return nil, err
	}
	n := len(display)

	onHand := inventoryByPeriod(g, req.Inventory)
	ps := &models.PreparedSeries{
		Selector:    s.Selector,
		Granularity: g,
		Policy:      p.cfg.StockoutPolicy,
		Display:     display,
		Annotations: make([]models.DemandAnnotation, n),
		Profile:     req.CategoryProfile,
		Gaps:        gaps,
	}

	for i, o := range display {
		a := models.DemandAnnotation{Period: o.Period, IsGap: o.Missing}
		if v, ok := onHand[o.Period.Unix()]; ok && v <= p.cfg.StockoutThreshold {
			a.IsStockout = true
			ps.Stockouts++
		}
		next := g.Step(o.Period, 1)
		for _, ev := range req.Promotions {
			if ev.Covers(o.Period, next) {
				a.IsPromotionalEvent = true
				ps.Promotional++
				break
			}
		}
		ps.Annotations[i] = a
	}
	if ps.Stockouts == n {
		return nil, &models.InsufficientDataError{Reason: "all periods are stockouts", Observations: n}
	}

	med, scale := p.markOutliers(ps)

	comparable := seasonalComparables(ps)
	level := nonStockoutMean(ps)
	for i, o := range display {
		a := &ps.Annotations[i]
		pos := g.SeasonPosition(o.Period)
		pt := models.DemandPoint{Index: i, Period: o.Period, SeasonPosition: pos, Value: o.Quantity}
		switch {
		case a.IsStockout && ps.Policy == models.StockoutExclude:
			a.Excluded = true
			ps.Excluded++
			continue
		case a.IsStockout:
			if v, ok := comparable[pos]; ok {
				pt.Value = v
			} else {
				pt.Value = level * req.CategoryProfile.Index(pos)
			}
			pt.Imputed = true
			a.Imputed = true
			ps.ImputedCount++
		case a.IsOutlier && p.cfg.OutlierPolicy == "winsorize" && scale > 0:
			limit := p.cfg.OutlierZScore * scale
			pt.Value = math.Max(0, math.Min(o.Quantity, med+limit))
			if o.Quantity < med-limit {
				pt.Value = math.Max(0, med-limit)
			}
		}
		ps.Points = append(ps.Points, pt)
	}

	if len(ps.Points) == 0 {
		return nil, &models.InsufficientDataError{Reason: "no usable periods after stockout exclusion", Observations: n}
	}
	ps.Short = len(ps.Points) < p.cfg.MinLength(g)
	return ps, nil
}

// markOutliers flags regular periods whose robust z-score exceeds the limit.
// Promotional and stockout periods are expected to deviate and are skipped.
func (p *Preparer) markOutliers(ps *models.PreparedSeries) (med, scale float64) {
	var regular []float64
	for i, o := range ps.Display {
		a := ps.Annotations[i]
		if a.IsStockout || a.IsPromotionalEvent {
			continue
		}
		regular = append(regular, o.Quantity)
	}
	if len(regular) < 4 {
		return 0, 0
	}
	med = median(regular)
	scale = 1.4826 * mad(regular, med)
	if scale == 0 {
		return med, 0
	}
	for i, o := range ps.Display {
		a := &ps.Annotations[i]
		if a.IsStockout || a.IsPromotionalEvent {
			continue
		}
		if math.Abs(o.Quantity-med)/scale > p.cfg.OutlierZScore {
			a.IsOutlier = true
			ps.Outliers++
		}
	}
	return med, scale
}

func fillGrid(s models.HistoricalSeries) ([]models.Observation, int, error) {
	g := s.Granularity
	first := g.Truncate(s.Observations[0].Period)
	prev := first.AddDate(-1, 0, 0)
	for i, o := range s.Observations {
		if o.Quantity < 0 || math.IsNaN(o.Quantity) || math.IsInf(o.Quantity, 0) {
			return nil, 0, &models.InvalidSeriesError{Reason: fmt.Sprintf("observation %d has invalid quantity %v", i, o.Quantity)}
		}
		t := g.Truncate(o.Period)
		if !t.After(prev) {
			return nil, 0, &models.InvalidSeriesError{Reason: fmt.Sprintf("observation %d period %s is not after the previous period", i, t.Format("2006-01-02"))}
		}
		prev = t
	}
	n := g.Between(first, prev) + 1
	if n > maxGridPeriods {
		return nil, 0, &models.InvalidSeriesError{Reason: fmt.Sprintf("series spans %d periods, limit is %d", n, maxGridPeriods)}
	}

	out := make([]models.Observation, 0, n)
	gaps := 0
	j := 0
	for i := 0; i < n; i++ {
		period := g.Step(first, i)
		if j < len(s.Observations) && g.Truncate(s.Observations[j].Period).Equal(period) {
			o := s.Observations[j]
			o.Period = period
			if o.Revenue != nil {
				r := *o.Revenue
				o.Revenue = &r
			}
			out = append(out, o)
			j++
			continue
		}
		out = append(out, models.Observation{Period: period, Missing: true})
		gaps++
	}
	return out, gaps, nil
}

func inventoryByPeriod(g models.Granularity, snaps []models.InventorySnapshot) map[int64]float64 {
	sum := make(map[int64]float64, len(snaps))
	cnt := make(map[int64]int, len(snaps))
	for _, s := range snaps {
		k := g.Truncate(s.Period).Unix()
		sum[k] += s.OnHand
		cnt[k]++
	}
	for k := range sum {
		sum[k] /= float64(cnt[k])
	}
	return sum
}

// seasonalComparables averages non-stockout demand per season position.
func seasonalComparables(ps *models.PreparedSeries) map[int]float64 {
	sum := make(map[int]float64)
	cnt := make(map[int]int)
	for i, o := range ps.Display {
		if ps.Annotations[i].IsStockout {
			continue
		}
		pos := ps.Granularity.SeasonPosition(o.Period)
		sum[pos] += o.Quantity
		cnt[pos]++
	}
	for k := range sum {
		sum[k] /= float64(cnt[k])
	}
	return sum
}

func nonStockoutMean(ps *models.PreparedSeries) float64 {
	var vals []float64
	for i, o := range ps.Display {
		if !ps.Annotations[i].IsStockout {
			vals = append(vals, o.Quantity)
		}
	}
	return mean(vals)
}
