package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCacheComputationErrorUnwrapsCause(t *testing.T) {
	cause := &InsufficientDataError{Reason: "all periods are stockouts", Observations: 6}
	err := fmt.Errorf("forecast: %w", &CacheComputationError{Key: "k", Err: cause})

	if !errors.Is(err, ErrCacheComputation) {
		t.Fatalf("expected cache computation sentinel")
	}
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data sentinel through unwrap")
	}
	var ide *InsufficientDataError
	if !errors.As(err, &ide) || ide.Observations != 6 {
		t.Fatalf("expected typed payload, got %#v", ide)
	}
}

func TestCandidateFitErrorWrapsDeadline(t *testing.T) {
	err := &CandidateFitError{Model: "ses", Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrCandidateFit) {
		t.Fatalf("unexpected chain for %v", err)
	}
}

func TestNoEligibleModelErrorMessage(t *testing.T) {
	err := &NoEligibleModelError{Reports: []ConformanceReport{
		{Model: "ses", Violations: []Violation{{Code: "min_observations"}}},
		{Model: "linear_trend", Violations: []Violation{{Code: "min_observations"}, {Code: "trend_stability"}}},
	}}
	want := "no eligible model: ses[min_observations] linear_trend[min_observations,trend_stability]"
	if err.Error() != want {
		t.Fatalf("got %q", err.Error())
	}
}

func TestIsClientError(t *testing.T) {
	client := []error{
		&InsufficientDataError{Reason: "all stockout"},
		fmt.Errorf("wrapped: %w", &InvalidSeriesError{Reason: "duplicate period"}),
		&NoEligibleModelError{},
	}
	for _, err := range client {
		if !IsClientError(err) {
			t.Errorf("%v should be a client error", err)
		}
	}
	for _, err := range []error{&AllModelsFailedError{}, ErrStoreNotConfigured, errors.New("boom")} {
		if IsClientError(err) {
			t.Errorf("%v should not be a client error", err)
		}
	}
}
