package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"DemandCast/pkg/util"
)

// Granularity is the period unit of a demand series.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool {
	switch g {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// SeasonLength is the number of periods in one seasonal cycle.
func (g Granularity) SeasonLength() int {
	switch g {
	case Weekly:
		return 52
	case Monthly:
		return 12
	default:
		return 7
	}
}

// Truncate returns the start of the period containing t.
func (g Granularity) Truncate(t time.Time) time.Time {
	return util.TruncatePeriod(t, string(g))
}

// Step moves a period start n periods.
func (g Granularity) Step(t time.Time, n int) time.Time {
	return util.AddPeriods(t, string(g), n)
}

// Between counts periods from a to b.
func (g Granularity) Between(a, b time.Time) int {
	return util.PeriodsBetween(a, b, string(g))
}

// SeasonPosition maps a period start to its slot within the seasonal cycle:
// weekday for daily, ISO week for weekly, month for monthly. Zero-based.
func (g Granularity) SeasonPosition(t time.Time) int {
	switch g {
	case Weekly:
		_, w := t.ISOWeek()
		if w > 52 {
			w = 52
		}
		return w - 1
	case Monthly:
		return int(t.Month()) - 1
	default:
		return (int(t.Weekday()) + 6) % 7
	}
}

// Selector identifies the demand series being forecast.
type Selector struct {
	Store    string `json:"store"`
	Category string `json:"category"`
	Product  string `json:"product,omitempty"`
}

func (s Selector) String() string {
	if s.Product == "" {
		return fmt.Sprintf("%s/%s", s.Store, s.Category)
	}
	return fmt.Sprintf("%s/%s/%s", s.Store, s.Category, s.Product)
}

// Observation is the demand recorded for one period.
type Observation struct {
	Period   time.Time        `json:"period"`
	Quantity float64          `json:"quantity"`
	Revenue  *decimal.Decimal `json:"revenue,omitempty"`
	// Missing marks a period that was absent from the source data.
	Missing bool `json:"missing,omitempty"`
}

// HistoricalSeries is the caller-owned demand history. Observations are ordered
// by period with no duplicates; the forecasting core never mutates them.
type HistoricalSeries struct {
	Selector     Selector      `json:"selector"`
	Granularity  Granularity   `json:"granularity"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations.
func (s HistoricalSeries) Len() int { return len(s.Observations) }

// InventorySnapshot is the on-hand quantity observed for a period.
type InventorySnapshot struct {
	Period time.Time `json:"period"`
	OnHand float64   `json:"on_hand"`
}

// PromoEvent is a promotion active between Start and End inclusive.
type PromoEvent struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Covers reports whether the period [start, next) overlaps the promotion.
func (p PromoEvent) Covers(start, next time.Time) bool {
	return !p.End.Before(start) && p.Start.Before(next)
}

// CategoryProfile holds category-level multiplicative seasonal indices, one per
// season position. Used to forecast products with too little history of their own.
type CategoryProfile struct {
	Category    string      `json:"category"`
	Granularity Granularity `json:"granularity"`
	Indices     []float64   `json:"indices"`
}

// Index returns the seasonal index for a position, or 1 when unknown.
func (p *CategoryProfile) Index(pos int) float64 {
	if p == nil || pos < 0 || pos >= len(p.Indices) || p.Indices[pos] <= 0 {
		return 1
	}
	return p.Indices[pos]
}
