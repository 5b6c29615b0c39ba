package forecasting

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"DemandCast/internal/domain/models"
)

// Thresholds are the conformance limits a series must meet per model.
type Thresholds struct {
	MinObservations        int     `yaml:"min_observations" json:"min_observations" default:"3" validate:"gte=1"`
	MinSeasonalCycles      int     `yaml:"min_seasonal_cycles" json:"min_seasonal_cycles" default:"2" validate:"gte=1"`
	MinSeasonalAutocorr    float64 `yaml:"min_seasonal_autocorr" json:"min_seasonal_autocorr" default:"0.3" validate:"gte=-1,lte=1"`
	TrendReversalTolerance float64 `yaml:"trend_reversal_tolerance" json:"trend_reversal_tolerance" default:"0.01" validate:"gte=0"`
	MaxStockoutShare       float64 `yaml:"max_stockout_share" json:"max_stockout_share" default:"0.5" validate:"gte=0,lte=1"`
	MaxOutlierShare        float64 `yaml:"max_outlier_share" json:"max_outlier_share" default:"0.2" validate:"gte=0,lte=1"`
	// MaxConsecutiveStockouts of -1 disables the check.
	MaxConsecutiveStockouts int `yaml:"max_consecutive_stockouts" json:"max_consecutive_stockouts" default:"6" validate:"gte=-1"`
}

// Config enumerates every pipeline option. Zero fields take the tag defaults.
type Config struct {
	// MinSeriesLength below which a series is tagged short. 0 derives it from
	// MinSeasonalCycles times the season length.
	MinSeriesLength   int `yaml:"min_series_length" json:"min_series_length" validate:"gte=0"`
	MinSeasonalCycles int `yaml:"min_seasonal_cycles" json:"min_seasonal_cycles" default:"2" validate:"gte=1"`

	HoldoutPeriods      int     `yaml:"holdout_periods" json:"holdout_periods" validate:"gte=0"`
	HoldoutHorizonRatio float64 `yaml:"holdout_horizon_ratio" json:"holdout_horizon_ratio" default:"1" validate:"gt=0,lte=4"`
	MaxHoldoutShare     float64 `yaml:"max_holdout_share" json:"max_holdout_share" default:"0.34" validate:"gt=0,lt=1"`

	StockoutPolicy    models.StockoutPolicy `yaml:"stockout_policy" json:"stockout_policy" default:"impute" validate:"oneof=impute exclude"`
	StockoutThreshold float64               `yaml:"stockout_threshold" json:"stockout_threshold" validate:"gte=0"`
	OutlierZScore     float64               `yaml:"outlier_zscore" json:"outlier_zscore" default:"3.5" validate:"gt=0"`
	OutlierPolicy     string                `yaml:"outlier_policy" json:"outlier_policy" default:"keep" validate:"oneof=keep winsorize"`

	Conformance Thresholds            `yaml:"conformance" json:"conformance"`
	Tiers       map[string]Thresholds `yaml:"tiers" json:"tiers" validate:"omitempty,dive"`

	PrimaryMetric   string `yaml:"primary_metric" json:"primary_metric" default:"mape" validate:"oneof=mape wape smape mae rmse"`
	SecondaryMetric string `yaml:"secondary_metric" json:"secondary_metric" default:"wape" validate:"oneof=mape wape smape mae rmse"`

	CacheTTL    time.Duration `yaml:"cache_ttl" json:"-" default:"15m"`
	FitTimeout  time.Duration `yaml:"fit_timeout" json:"-" default:"5s" validate:"gt=0"`
	Parallelism int           `yaml:"parallelism" json:"-" default:"4" validate:"gte=1,lte=64"`
	IntervalZ   float64       `yaml:"interval_z" json:"interval_z" default:"1.96" validate:"gte=0"`
	MaxHorizon  int           `yaml:"max_horizon" json:"max_horizon" default:"366" validate:"gte=1"`
	// Models is an allow-list of registered model names; empty enables all.
	Models []string `yaml:"models" json:"models"`

	Remote []RemoteModelConfig `yaml:"remote_models" json:"remote_models" validate:"omitempty,dive"`
}

// RemoteModelConfig registers an external forecasting service as a model.
type RemoteModelConfig struct {
	Name               string        `yaml:"name" json:"name" validate:"required"`
	URL                string        `yaml:"url" json:"url" validate:"required,url"`
	Path               string        `yaml:"path" json:"path" default:"/forecast"`
	Timeout            time.Duration `yaml:"timeout" json:"-" default:"3s"`
	Retries            int           `yaml:"retries" json:"-" default:"3" validate:"gte=0,lte=10"`
	Complexity         int           `yaml:"complexity" json:"complexity" default:"5" validate:"gte=1"`
	MinObservations    int           `yaml:"min_observations" json:"min_observations" default:"12" validate:"gte=1"`
	ShortSeriesCapable bool          `yaml:"short_series_capable" json:"short_series_capable"`
}

var validate = validator.New()

// Normalize applies defaults and validates. Call once at construction.
func (c *Config) Normalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("forecasting config defaults: %w", err)
	}
	for name, th := range c.Tiers {
		if err := defaults.Set(&th); err != nil {
			return fmt.Errorf("forecasting tier %s defaults: %w", name, err)
		}
		c.Tiers[name] = th
	}
	for i := range c.Remote {
		if err := defaults.Set(&c.Remote[i]); err != nil {
			return fmt.Errorf("forecasting remote model %d defaults: %w", i, err)
		}
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("forecasting config: %w", err)
	}
	return nil
}

// DefaultConfig returns a normalized config with every default applied.
func DefaultConfig() Config {
	var c Config
	_ = c.Normalize()
	return c
}

// ThresholdsFor returns the tier thresholds, falling back to the global ones.
func (c *Config) ThresholdsFor(tier string) Thresholds {
	if th, ok := c.Tiers[tier]; ok && tier != "" {
		return th
	}
	return c.Conformance
}

// MinLength is the usable point count below which a series is short.
func (c *Config) MinLength(g models.Granularity) int {
	if c.MinSeriesLength > 0 {
		return c.MinSeriesLength
	}
	return c.MinSeasonalCycles * g.SeasonLength()
}

// Digest hashes every option that changes results, so cached entries do not
// survive a config change. Operational knobs (TTL, timeouts) are excluded.
func (c *Config) Digest(tier string) string {
	names := append([]string(nil), c.Models...)
	sort.Strings(names)
	view := struct {
		Config
		Models     []string   `json:"models"`
		Thresholds Thresholds `json:"thresholds"`
	}{Config: *c, Models: names, Thresholds: c.ThresholdsFor(tier)}
	view.Config.Tiers = nil
	view.Config.Conformance = Thresholds{}
	b, _ := json.Marshal(view)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
