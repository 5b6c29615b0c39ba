package models

import "time"

// ForecastEvent announces a completed forecast run on the events topic.
type ForecastEvent struct {
	RunID       string          `json:"run_id"`
	Fingerprint string          `json:"fingerprint"`
	Selector    Selector        `json:"selector"`
	Granularity Granularity     `json:"granularity"`
	Horizon     int             `json:"horizon"`
	BestModel   string          `json:"best_model"`
	Forecast    []ForecastPoint `json:"forecast"`
	DataVersion string          `json:"data_version"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// NewForecastEvent summarises a result for downstream consumers.
func NewForecastEvent(r *ForecastResult) ForecastEvent {
	return ForecastEvent{
		RunID:       r.RunID,
		Fingerprint: r.Fingerprint,
		Selector:    r.Selector,
		Granularity: r.Granularity,
		Horizon:     r.Horizon,
		BestModel:   r.BestModel,
		Forecast:    r.Best.Forecast,
		DataVersion: r.Metadata.DataVersion,
		GeneratedAt: r.Metadata.GeneratedAt,
	}
}

// SnapshotEvent is published upstream when a selector's sales rows change.
// An empty Product covers every product of the store/category.
type SnapshotEvent struct {
	Store     string    `json:"store"`
	Category  string    `json:"category"`
	Product   string    `json:"product,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Selector returns the selector the snapshot touched.
func (e SnapshotEvent) Selector() Selector {
	return Selector{Store: e.Store, Category: e.Category, Product: e.Product}
}
