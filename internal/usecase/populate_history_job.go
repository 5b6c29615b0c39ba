package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creasty/defaults"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	"DemandCast/pkg/cache"
	xhttp "DemandCast/pkg/http"
	"DemandCast/pkg/logger"
	"DemandCast/pkg/queue"
)

// PopulateHistoryJobType is the queue message type of history population.
const PopulateHistoryJobType = "forecast.populate_history"

// Locker guards a selector against concurrent population runs.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// PopulateHistoryJob recomputes a selector's forecast from the sales store;
// the fresh result reaches forecast history through ForecastUsecase.Record.
type PopulateHistoryJob struct {
	uc      *ForecastUsecase
	locks   Locker
	lockTTL time.Duration
	l       *logger.Logger
}

var _ queue.Job = (*PopulateHistoryJob)(nil)

func NewPopulateHistoryJob(uc *ForecastUsecase, locks Locker, lockTTL time.Duration, l *logger.Logger) *PopulateHistoryJob {
	if l == nil {
		l = logger.Nop()
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &PopulateHistoryJob{uc: uc, locks: locks, lockTTL: lockTTL, l: l}
}

func (j *PopulateHistoryJob) Name() string { return "populate_forecast_history" }

func (j *PopulateHistoryJob) Type() string { return PopulateHistoryJobType }

func (j *PopulateHistoryJob) Handle(ctx context.Context, payload json.RawMessage) error {
	body, err := queue.Decode[models.PopulateJobBody](payload)
	if err != nil {
		return err
	}
	if err := defaults.Set(body); err != nil {
		return fmt.Errorf("populate defaults: %w", err)
	}
	if verrs := xhttp.Validate(body); len(verrs) > 0 {
		// Retrying cannot fix a malformed payload.
		j.l.Error("populate job payload rejected", logger.Any("errors", verrs))
		return nil
	}
	if j.uc.history == nil {
		return models.ErrHistoryNotConfigured
	}

	sel := body.Selector()
	key := cache.GenerateKey("lock:populate", models.SelectorPrefix(sel))
	if j.locks != nil {
		ok, err := j.locks.TryLock(ctx, key, j.lockTTL)
		if err != nil {
			return fmt.Errorf("populate lock: %w", err)
		}
		if !ok {
			j.l.Info("populate already running", logger.String("selector", sel.String()))
			return nil
		}
		defer func() {
			if err := j.locks.Unlock(context.Background(), key); err != nil {
				j.l.Warn("populate unlock failed", logger.String("key", key), logger.Error(err))
			}
		}()
	}

	res, err := j.uc.ForecastSelector(ctx, SelectorRequest{
		Selector:    sel,
		Granularity: domrepo.NormalizeGranularity(body.Granularity),
		Horizon:     body.Horizon,
		Lookback:    body.Lookback,
		Tier:        body.Tier,
		Force:       true,
	})
	if err != nil {
		if models.IsClientError(err) {
			j.l.Warn("populate skipped", logger.String("selector", sel.String()), logger.Error(err))
			return nil
		}
		return err
	}
	j.l.Info("forecast history populated",
		logger.String("selector", sel.String()),
		logger.String("run_id", res.RunID),
		logger.String("best_model", res.BestModel))
	return nil
}
