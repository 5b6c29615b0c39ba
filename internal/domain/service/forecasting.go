package service

import (
	"context"

	"DemandCast/internal/domain/models"
)

// ModelSpec declares what a model needs from a series.
type ModelSpec struct {
	Name string
	// Complexity is the number of fitted parameters; lower wins ties.
	Complexity           int
	MinObservations      int
	RequiresSeasonality  bool
	RequiresStableTrend  bool
	ShortSeriesCapable   bool
	NeedsCategoryProfile bool
	// StockoutTolerant models skip the stockout and outlier share checks.
	StockoutTolerant bool
}

// Model is a forecasting variant. Implementations must be safe for concurrent Fit calls.
type Model interface {
	Spec() ModelSpec
	Fit(ctx context.Context, w models.TrainingWindow) (FittedModel, error)
}

// FittedModel predicts the periods following the training window.
type FittedModel interface {
	Predict(steps int) ([]float64, error)
	Params() map[string]float64
	// ResidualStdDev is the in-sample residual spread used for intervals.
	ResidualStdDev() float64
}

// ComputeFunc produces a fresh result on cache miss.
type ComputeFunc func(ctx context.Context) (*models.ForecastResult, error)

// ResultCache memoizes forecast results by fingerprint.
type ResultCache interface {
	GetOrCompute(ctx context.Context, fp models.Fingerprint, compute ComputeFunc, opts ...CallOption) (*models.ForecastResult, error)
	Invalidate(ctx context.Context, fp models.Fingerprint) error
	InvalidateSelector(ctx context.Context, sel models.Selector) error
}

// CallOptions tune a single GetOrCompute call.
type CallOptions struct {
	// ForceRecompute skips the read and refreshes the stored entry.
	ForceRecompute bool
	// Bypass skips both read and write.
	Bypass bool
}

type CallOption func(*CallOptions)

func WithForceRecompute() CallOption { return func(o *CallOptions) { o.ForceRecompute = true } }

func WithBypass() CallOption { return func(o *CallOptions) { o.Bypass = true } }

// ApplyCallOptions folds opts into a CallOptions value.
func ApplyCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// Forecaster is the forecasting entry point as seen by use cases.
type Forecaster interface {
	Forecast(ctx context.Context, req models.ForecastRequest, opts ...CallOption) (*models.ForecastResult, error)
	Invalidate(ctx context.Context, sel models.Selector) error
	Models() []ModelSpec
}

// ComputedHook observes results right after a fresh computation. Cache hits
// do not trigger it.
type ComputedHook func(ctx context.Context, r *models.ForecastResult)
