package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal   *prometheus.CounterVec
	fitsTotal   *prometheus.CounterVec
	fitDuration *prometheus.HistogramVec
	cacheTotal  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// Option configures the recorder.
type Option func(*options)

type options struct {
	reg prometheus.Registerer
}

// WithRegisterer registers the collectors somewhere other than the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// New creates a new Prometheus metrics recorder.
func New(opts ...Option) *Recorder {
	o := options{reg: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	f := promauto.With(o.reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demandcast_forecast_runs_total",
				Help: "Total number of forecast pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		fitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demandcast_model_fits_total",
				Help: "Total number of candidate fits by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		fitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "demandcast_model_fit_duration_seconds",
				Help:    "Duration of candidate fits in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"model"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demandcast_result_cache_requests_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demandcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "demandcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRun records a finished pipeline run.
func (r *Recorder) RecordRun(outcome string) {
	r.runsTotal.WithLabelValues(outcome).Inc()
}

// RecordFit records one candidate fit.
func (r *Recorder) RecordFit(model, outcome string, seconds float64) {
	r.fitsTotal.WithLabelValues(model, outcome).Inc()
	r.fitDuration.WithLabelValues(model).Observe(seconds)
}

// RecordCache records a result cache lookup (hit, miss, shared, bypass).
func (r *Recorder) RecordCache(outcome string) {
	r.cacheTotal.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordRun(string) {}
func (Nop) RecordFit(string, string, float64) {}
func (Nop) RecordCache(string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
