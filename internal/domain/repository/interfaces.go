package repository

import (
	"context"

	"DemandCast/internal/domain/models"
)

// EventPublisher announces completed forecasts to downstream consumers.
type EventPublisher interface {
	PublishForecast(ctx context.Context, r *models.ForecastResult) error
	Close() error
}

// ForecastHistory persists forecast results for later comparison with actuals.
type ForecastHistory interface {
	Init(ctx context.Context) error // ensure tables
	Save(ctx context.Context, r *models.ForecastResult) error
	Latest(ctx context.Context, sel models.Selector, limit int) ([]models.ForecastResult, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordRun(outcome string)
	RecordFit(model, outcome string, seconds float64)
	RecordCache(outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
