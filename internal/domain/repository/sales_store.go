package repository

import (
	"context"
	"time"

	"DemandCast/internal/domain/models"
)

// SalesQuery bounds a history lookup. To is exclusive.
type SalesQuery struct {
	Selector    models.Selector
	Granularity models.Granularity
	From        time.Time
	To          time.Time
}

// SalesStore provides read-only access to demand history and its auxiliary inputs.
type SalesStore interface {
	GetSeries(ctx context.Context, q SalesQuery) (models.HistoricalSeries, error)
	GetInventory(ctx context.Context, q SalesQuery) ([]models.InventorySnapshot, error)
	GetPromotions(ctx context.Context, q SalesQuery) ([]models.PromoEvent, error)
	GetCategoryProfile(ctx context.Context, store, category string, g models.Granularity) (*models.CategoryProfile, error)
	// DataVersion identifies the current snapshot of the selector's source rows.
	DataVersion(ctx context.Context, q SalesQuery) (string, error)
}

// NormalizeGranularity converts a raw string to a valid granularity (or monthly).
func NormalizeGranularity(s string) models.Granularity {
	g := models.Granularity(s)
	if g.Valid() {
		return g
	}
	return models.Monthly
}
