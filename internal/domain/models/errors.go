package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is; the typed errors below match them.
var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrInvalidSeries        = errors.New("invalid series")
	ErrNoEligibleModel      = errors.New("no eligible model")
	ErrAllModelsFailed      = errors.New("all models failed")
	ErrCandidateFit         = errors.New("candidate fit failed")
	ErrCacheComputation     = errors.New("cache computation failed")
	ErrStoreNotConfigured   = errors.New("sales store not configured")
	ErrHistoryNotConfigured = errors.New("forecast history not configured")
)

// InsufficientDataError means no usable demand remains to fit anything.
type InsufficientDataError struct {
	Reason       string
	Observations int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s (observations=%d)", e.Reason, e.Observations)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// InvalidSeriesError means the caller broke an input invariant.
type InvalidSeriesError struct {
	Reason string
}

func (e *InvalidSeriesError) Error() string { return "invalid series: " + e.Reason }

func (e *InvalidSeriesError) Is(target error) bool { return target == ErrInvalidSeries }

// NoEligibleModelError carries the reports of every rejected model.
type NoEligibleModelError struct {
	Reports []ConformanceReport
}

func (e *NoEligibleModelError) Error() string {
	names := make([]string, 0, len(e.Reports))
	for _, r := range e.Reports {
		codes := make([]string, 0, len(r.Violations))
		for _, v := range r.Violations {
			codes = append(codes, v.Code)
		}
		names = append(names, r.Model+"["+strings.Join(codes, ",")+"]")
	}
	return "no eligible model: " + strings.Join(names, " ")
}

func (e *NoEligibleModelError) Is(target error) bool { return target == ErrNoEligibleModel }

// AllModelsFailedError means every eligible model failed to fit.
type AllModelsFailedError struct {
	Failures []Disqualification
}

func (e *AllModelsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Model+": "+f.Reason)
	}
	return "all models failed: " + strings.Join(parts, "; ")
}

func (e *AllModelsFailedError) Is(target error) bool { return target == ErrAllModelsFailed }

// CandidateFitError is a single model failure. It is recorded, not returned.
type CandidateFitError struct {
	Model string
	Err   error
}

func (e *CandidateFitError) Error() string {
	return fmt.Sprintf("fit %s: %v", e.Model, e.Err)
}

func (e *CandidateFitError) Unwrap() error { return e.Err }

func (e *CandidateFitError) Is(target error) bool { return target == ErrCandidateFit }

// CacheComputationError wraps a failed computation observed through the result cache.
type CacheComputationError struct {
	Key string
	Err error
}

func (e *CacheComputationError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Key, e.Err)
}

func (e *CacheComputationError) Unwrap() error { return e.Err }

func (e *CacheComputationError) Is(target error) bool { return target == ErrCacheComputation }

// IsClientError reports whether err is caused by the request data rather than
// the system. These map to 422 on the API and are never retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrInvalidSeries) ||
		errors.Is(err, ErrNoEligibleModel)
}
