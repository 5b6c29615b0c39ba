package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"DemandCast/internal/domain/models"
	"DemandCast/pkg/cache"
)

func newTestJob(t *testing.T) (*PopulateHistoryJob, *fakeForecaster, *fakeHistory, *cache.MemoryCache) {
	t.Helper()
	uc, f, h, _, _ := newTestUsecase(&fakeStore{version: "v1"})
	locks, err := cache.NewMemoryCache()
	if err != nil {
		t.Fatal(err)
	}
	return NewPopulateHistoryJob(uc, locks, time.Minute, nil), f, h, locks
}

var populatePayload = json.RawMessage(`{"store":"s1","category":"dairy","horizon":2}`)

func TestPopulateJobSavesFreshForecast(t *testing.T) {
	job, f, h, _ := newTestJob(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := job.Handle(ctx, populatePayload); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(h.saved) != 2 {
		t.Fatalf("each run recomputes and saves, saved=%d", len(h.saved))
	}
	req := f.requests[0]
	if req.Horizon != 2 || req.Series.Granularity != models.Monthly || req.Series.Len() != 36 {
		t.Fatalf("request = horizon %d granularity %s len %d", req.Horizon, req.Series.Granularity, req.Series.Len())
	}
}

func TestPopulateJobSkipsWhileLocked(t *testing.T) {
	job, _, h, locks := newTestJob(t)
	ctx := context.Background()
	key := "lock:populate:" + models.SelectorPrefix(models.Selector{Store: "s1", Category: "dairy"})
	if ok, _ := locks.TryLock(ctx, key, time.Minute); !ok {
		t.Fatal("could not take lock")
	}

	if err := job.Handle(ctx, populatePayload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.saved) != 0 {
		t.Fatalf("locked selector was populated")
	}

	_ = locks.Unlock(ctx, key)
	if err := job.Handle(ctx, populatePayload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.saved) != 1 {
		t.Fatalf("saved = %d after unlock", len(h.saved))
	}
	// The job releases its own lock.
	if ok, _ := locks.TryLock(ctx, key, time.Minute); !ok {
		t.Fatal("job left the lock behind")
	}
}

func TestPopulateJobErrorHandling(t *testing.T) {
	ctx := context.Background()

	job, f, h, _ := newTestJob(t)
	if err := job.Handle(ctx, json.RawMessage(`{"category":"dairy"}`)); err != nil {
		t.Fatalf("invalid payload should be dropped, got %v", err)
	}
	if err := job.Handle(ctx, nil); err == nil {
		t.Fatal("empty payload should fail")
	}

	f.err = &models.InsufficientDataError{Reason: "all periods are stockouts"}
	if err := job.Handle(ctx, populatePayload); err != nil {
		t.Fatalf("client errors are not retried, got %v", err)
	}

	f.err = errBoom
	if err := job.Handle(ctx, populatePayload); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want retryable failure", err)
	}
	if len(h.saved) != 0 {
		t.Fatalf("saved = %d", len(h.saved))
	}

	job.uc.history = nil
	if err := job.Handle(ctx, populatePayload); !errors.Is(err, models.ErrHistoryNotConfigured) {
		t.Fatalf("err = %v", err)
	}
	if job.Name() == "" || job.Type() != PopulateHistoryJobType {
		t.Fatal("job identity")
	}
}
