package models

import (
	"time"
)

// StockoutPolicy decides how stockout periods enter model fitting.
type StockoutPolicy string

const (
	// StockoutImpute replaces stockout demand with an estimate.
	StockoutImpute StockoutPolicy = "impute"
	// StockoutExclude removes stockout periods from fitting.
	StockoutExclude StockoutPolicy = "exclude"
)

// DemandAnnotation flags one period of a prepared series.
type DemandAnnotation struct {
	Period             time.Time `json:"period"`
	IsStockout         bool      `json:"is_stockout,omitempty"`
	IsPromotionalEvent bool      `json:"is_promotional_event,omitempty"`
	IsOutlier          bool      `json:"is_outlier,omitempty"`
	IsGap              bool      `json:"is_gap,omitempty"`
	Imputed            bool      `json:"imputed,omitempty"`
	Excluded           bool      `json:"excluded,omitempty"`
}

// DemandPoint is a fit-ready value positioned on the period grid.
type DemandPoint struct {
	Index          int       // position on the gap-filled grid
	Period         time.Time // period start
	SeasonPosition int
	Value          float64
	Imputed        bool
}

// PreparedSeries is the annotated, demand-adjusted derivative of a
// HistoricalSeries. The display series keeps original values; Points carry
// the policy-adjusted values models are fit on.
type PreparedSeries struct {
	Selector    Selector
	Granularity Granularity
	Policy      StockoutPolicy
	Display     []Observation
	Annotations []DemandAnnotation
	Points      []DemandPoint
	Profile     *CategoryProfile
	// Short is set when fewer usable points than the configured minimum remain.
	Short bool

	Stockouts    int
	Outliers     int
	Promotional  int
	Gaps         int
	ImputedCount int
	Excluded     int
}

// GridLen is the number of periods in the gap-filled series.
func (p *PreparedSeries) GridLen() int { return len(p.Display) }

// SeasonLength is the season length of the series granularity.
func (p *PreparedSeries) SeasonLength() int { return p.Granularity.SeasonLength() }

// Values returns the fit values in order.
func (p *PreparedSeries) Values() []float64 {
	out := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		out[i] = pt.Value
	}
	return out
}

// Window returns the training window ending (exclusive) at grid index end.
func (p *PreparedSeries) Window(end int) TrainingWindow {
	pts := make([]DemandPoint, 0, len(p.Points))
	for _, pt := range p.Points {
		if pt.Index < end {
			pts = append(pts, pt)
		}
	}
	start := p.Display[0].Period
	return TrainingWindow{
		Points:       pts,
		End:          end,
		Start:        start,
		Granularity:  p.Granularity,
		SeasonLength: p.Granularity.SeasonLength(),
		Profile:      p.Profile,
	}
}

// TrainingWindow is what a model is fit on. Predictions start at grid index End.
type TrainingWindow struct {
	Points       []DemandPoint
	End          int
	Steps        int // periods the caller will ask for after End
	Start        time.Time
	Granularity  Granularity
	SeasonLength int
	Profile      *CategoryProfile

	// SeasonalityFloor is the tier's minimum seasonal autocorrelation; nil keeps the model default.
	SeasonalityFloor *float64
	// Seasonal pins a structure decided on an earlier window of the same candidate; nil lets the model decide.
	Seasonal *bool
}

// SeasonPositionAt returns the season position of an arbitrary grid index.
func (w TrainingWindow) SeasonPositionAt(index int) int {
	return w.Granularity.SeasonPosition(w.Granularity.Step(w.Start, index))
}

// Violation is one failed conformance precondition.
type Violation struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
}

// ConformanceReport is the outcome of checking a series against a model's preconditions.
type ConformanceReport struct {
	Model      string      `json:"model"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// ForecastPoint is one forecast period with an optional interval.
type ForecastPoint struct {
	Period time.Time `json:"period"`
	Value  float64   `json:"value"`
	Lower  *float64  `json:"lower,omitempty"`
	Upper  *float64  `json:"upper,omitempty"`
}

// ForecastCandidate is one model's output for a run.
type ForecastCandidate struct {
	Model      string             `json:"model"`
	Params     map[string]float64 `json:"params"`
	Complexity int                `json:"complexity"`
	// Backtest holds predictions for the held-out window, fit on training data only.
	Backtest []ForecastPoint `json:"backtest,omitempty"`
	Forecast []ForecastPoint `json:"forecast"`
}

// ScoreCard holds a candidate's accuracy on the shared held-out window.
type ScoreCard struct {
	Model      string             `json:"model"`
	Rank       int                `json:"rank"`
	Scored     bool               `json:"scored"`
	Holdout    int                `json:"holdout"`
	Complexity int                `json:"complexity"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Disqualification records why a model did not produce a candidate.
type Disqualification struct {
	Model  string `json:"model"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

const (
	StageConformance = "conformance"
	StageFit         = "fit"
)

// ResultMetadata describes the data and settings behind a result.
type ResultMetadata struct {
	SeriesLength       int            `json:"series_length"`
	UsableObservations int            `json:"usable_observations"`
	ShortSeries        bool           `json:"short_series"`
	StockoutPolicy     StockoutPolicy `json:"stockout_policy"`
	StockoutPeriods    int            `json:"stockout_periods"`
	ImputedPeriods     int            `json:"imputed_periods"`
	ExcludedPeriods    int            `json:"excluded_periods"`
	OutlierPeriods     int            `json:"outlier_periods"`
	PromotionalPeriods int            `json:"promotional_periods"`
	GapPeriods         int            `json:"gap_periods"`
	TrainingPeriods    int            `json:"training_periods"`
	HoldoutPeriods     int            `json:"holdout_periods"`
	PrimaryMetric      string         `json:"primary_metric"`
	Tier               string         `json:"tier,omitempty"`
	TotalRevenue       string         `json:"total_revenue,omitempty"`
	AsOf               time.Time      `json:"as_of"`
	DataVersion        string         `json:"data_version"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// ForecastResult is the full outcome of one pipeline run.
type ForecastResult struct {
	RunID        string              `json:"run_id"`
	Fingerprint  string              `json:"fingerprint"`
	Selector     Selector            `json:"selector"`
	Granularity  Granularity         `json:"granularity"`
	Horizon      int                 `json:"horizon"`
	BestModel    string              `json:"best_model"`
	Best         ForecastCandidate   `json:"best"`
	Candidates   []ForecastCandidate `json:"candidates"`
	ScoreCards   []ScoreCard         `json:"score_cards"`
	Conformance  []ConformanceReport `json:"conformance"`
	Disqualified []Disqualification  `json:"disqualified,omitempty"`
	Annotations  []DemandAnnotation  `json:"annotations"`
	History      []Observation       `json:"history"`
	Metadata     ResultMetadata      `json:"metadata"`
}

// Candidate returns the candidate produced by the named model.
func (r *ForecastResult) Candidate(model string) (ForecastCandidate, bool) {
	for _, c := range r.Candidates {
		if c.Model == model {
			return c, true
		}
	}
	return ForecastCandidate{}, false
}

// ScoreCard returns the scorecard of the named model.
func (r *ForecastResult) ScoreCard(model string) (ScoreCard, bool) {
	for _, s := range r.ScoreCards {
		if s.Model == model {
			return s, true
		}
	}
	return ScoreCard{}, false
}

// ForecastRequest is the plain input of the forecasting core.
type ForecastRequest struct {
	Series          HistoricalSeries    `json:"series"`
	Inventory       []InventorySnapshot `json:"inventory,omitempty"`
	Promotions      []PromoEvent        `json:"promotions,omitempty"`
	CategoryProfile *CategoryProfile    `json:"category_profile,omitempty"`
	Horizon         int                 `json:"horizon"`
	Tier            string              `json:"tier,omitempty"`
	AsOf            time.Time           `json:"as_of,omitempty"`
	// DataVersion identifies the source snapshot; derived from content when empty.
	DataVersion string `json:"data_version,omitempty"`
}
