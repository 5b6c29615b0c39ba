package forecasting

import (
	"errors"
	"testing"

	"DemandCast/internal/domain/models"
)

func TestPrepareFillsGapsWithoutMutatingInput(t *testing.T) {
	s := monthlySeries(10, 12, 11)
	s.Observations[2].Period = testStart.AddDate(0, 3, 0) // skip April
	before := s.Observations[2].Period

	ps, err := NewPreparer(testConfig(nil)).Prepare(models.ForecastRequest{Series: s, Horizon: 1})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if ps.GridLen() != 4 || ps.Gaps != 1 {
		t.Fatalf("expected 4 periods with 1 gap, got %d/%d", ps.GridLen(), ps.Gaps)
	}
	if !ps.Display[2].Missing || !ps.Annotations[2].IsGap {
		t.Fatalf("gap not explicit: %+v", ps.Display[2])
	}
	if len(s.Observations) != 3 || !s.Observations[2].Period.Equal(before) {
		t.Fatalf("caller series mutated")
	}
}

func TestPrepareRejectsInvalidSeries(t *testing.T) {
	p := NewPreparer(testConfig(nil))

	dup := monthlySeries(1, 2, 3)
	dup.Observations[2].Period = dup.Observations[1].Period.AddDate(0, 0, 5)
	if _, err := p.Prepare(models.ForecastRequest{Series: dup}); !errors.Is(err, models.ErrInvalidSeries) {
		t.Fatalf("expected invalid series for duplicate period, got %v", err)
	}

	neg := monthlySeries(1, -2, 3)
	if _, err := p.Prepare(models.ForecastRequest{Series: neg}); !errors.Is(err, models.ErrInvalidSeries) {
		t.Fatalf("expected invalid series for negative quantity, got %v", err)
	}

	empty := monthlySeries()
	if _, err := p.Prepare(models.ForecastRequest{Series: empty}); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected insufficient data for empty series, got %v", err)
	}
}

func allStockedOut(n int) []models.InventorySnapshot {
	inv := make([]models.InventorySnapshot, n)
	for i := range inv {
		inv[i] = models.InventorySnapshot{Period: testStart.AddDate(0, i, 0), OnHand: 0}
	}
	return inv
}

func TestPrepareAllStockoutsIsInsufficient(t *testing.T) {
	for _, policy := range []models.StockoutPolicy{models.StockoutImpute, models.StockoutExclude} {
		cfg := testConfig(func(c *Config) { c.StockoutPolicy = policy })
		req := models.ForecastRequest{Series: monthlySeries(0, 0, 1, 0), Inventory: allStockedOut(4), Horizon: 1}

		_, err := NewPreparer(cfg).Prepare(req)
		var ide *models.InsufficientDataError
		if !errors.As(err, &ide) {
			t.Fatalf("%s: expected InsufficientDataError, got %v", policy, err)
		}
	}
}

func stockoutRequest() models.ForecastRequest {
	// 24 months of 100 with a stockout in month 14 (recorded demand 5).
	vals := repeat(100, 24)
	vals[14] = 5
	return models.ForecastRequest{
		Series:    monthlySeries(vals...),
		Inventory: []models.InventorySnapshot{{Period: testStart.AddDate(0, 14, 0), OnHand: 0}, {Period: testStart.AddDate(0, 13, 0), OnHand: 40}},
		Horizon:   3,
	}
}

func TestPrepareImputePolicy(t *testing.T) {
	cfg := testConfig(func(c *Config) { c.StockoutPolicy = models.StockoutImpute })
	ps, err := NewPreparer(cfg).Prepare(stockoutRequest())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if ps.Stockouts != 1 || ps.ImputedCount != 1 || ps.Excluded != 0 {
		t.Fatalf("unexpected counts %+v", ps)
	}
	if len(ps.Points) != 24 {
		t.Fatalf("impute keeps every period, got %d", len(ps.Points))
	}
	pt := ps.Points[14]
	if !pt.Imputed || pt.Value != 100 {
		t.Fatalf("expected seasonal comparable 100, got %+v", pt)
	}
	if ps.Display[14].Quantity != 5 {
		t.Fatalf("display series must keep recorded demand")
	}
	if ps.Annotations[13].IsStockout {
		t.Fatalf("positive on-hand is not a stockout")
	}
}

func TestPrepareExcludePolicy(t *testing.T) {
	cfg := testConfig(func(c *Config) { c.StockoutPolicy = models.StockoutExclude })
	ps, err := NewPreparer(cfg).Prepare(stockoutRequest())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if ps.Excluded != 1 || ps.ImputedCount != 0 || len(ps.Points) != 23 {
		t.Fatalf("unexpected counts excluded=%d imputed=%d points=%d", ps.Excluded, ps.ImputedCount, len(ps.Points))
	}
	for _, pt := range ps.Points {
		if pt.Index == 14 {
			t.Fatalf("stockout period must not be a fit point")
		}
	}
	if !ps.Annotations[14].Excluded || ps.GridLen() != 24 {
		t.Fatalf("excluded period must stay in the display series")
	}
}

func TestPrepareFlagsOutliersButNotPromotions(t *testing.T) {
	vals := []float64{100, 102, 98, 101, 99, 400, 100, 103, 97, 350, 100, 101}
	req := models.ForecastRequest{
		Series: monthlySeries(vals...),
		Promotions: []models.PromoEvent{{
			Name:  "summer",
			Start: testStart.AddDate(0, 9, 3),
			End:   testStart.AddDate(0, 9, 10),
		}},
	}
	cfg := testConfig(func(c *Config) { c.OutlierPolicy = "winsorize" })
	ps, err := NewPreparer(cfg).Prepare(req)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !ps.Annotations[5].IsOutlier || ps.Outliers != 1 {
		t.Fatalf("expected month 5 flagged as the only outlier, got %d", ps.Outliers)
	}
	if ps.Annotations[9].IsOutlier || !ps.Annotations[9].IsPromotionalEvent {
		t.Fatalf("promotional spike must not be an outlier")
	}
	if ps.Points[5].Value >= 400 {
		t.Fatalf("winsorize should clip the outlier, got %v", ps.Points[5].Value)
	}
	if ps.Points[9].Value != 350 {
		t.Fatalf("promotional demand is kept as recorded")
	}
}

func TestPrepareTagsShortSeries(t *testing.T) {
	ps, err := NewPreparer(testConfig(nil)).Prepare(models.ForecastRequest{Series: monthlySeries(5, 6, 7), Horizon: 1})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !ps.Short {
		t.Fatalf("3 monthly points are below two seasonal cycles")
	}
	long, _ := NewPreparer(testConfig(nil)).Prepare(models.ForecastRequest{Series: monthlySeries(repeat(5, 24)...), Horizon: 1})
	if long.Short {
		t.Fatalf("24 monthly points are not short")
	}
}
