package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"DemandCast/pkg/util"
)

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.

type ForecastQuery struct {
	Store       string `query:"store" json:"store" validate:"required"`
	Category    string `query:"category" json:"category" validate:"required"`
	Product     string `query:"product" json:"product"`
	Granularity string `query:"granularity" json:"granularity" default:"monthly" validate:"oneof=daily weekly monthly"`
	Horizon     int    `query:"horizon" json:"horizon" default:"3" validate:"gte=1,lte=366"`
	Lookback    int    `query:"lookback" json:"lookback" default:"36" validate:"gte=1,lte=3660"`
	Tier        string `query:"tier" json:"tier"`
	AsOf        string `query:"as_of" json:"as_of"`
	Force       bool   `query:"force" json:"force"`
}

type ObservationInput struct {
	Period   string   `json:"period" validate:"required"`
	Quantity float64  `json:"quantity" validate:"gte=0"`
	Revenue  *float64 `json:"revenue,omitempty"`
}

type InventoryInput struct {
	Period string  `json:"period" validate:"required"`
	OnHand float64 `json:"on_hand"`
}

type PromoInput struct {
	Name  string `json:"name"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// ForecastBody is the POST variant: an inline series, or a selector to load from the store.
type ForecastBody struct {
	Store           string             `json:"store" validate:"required"`
	Category        string             `json:"category" validate:"required"`
	Product         string             `json:"product"`
	Granularity     string             `json:"granularity" default:"monthly" validate:"oneof=daily weekly monthly"`
	Horizon         int                `json:"horizon" default:"3" validate:"gte=1,lte=366"`
	Lookback        int                `json:"lookback" default:"36" validate:"gte=1,lte=3660"`
	Tier            string             `json:"tier"`
	AsOf            string             `json:"as_of"`
	Force           bool               `json:"force"`
	Series          []ObservationInput `json:"series" validate:"omitempty,dive"`
	Inventory       []InventoryInput   `json:"inventory" validate:"omitempty,dive"`
	Promotions      []PromoInput       `json:"promotions" validate:"omitempty,dive"`
	CategoryIndices []float64          `json:"category_indices"`
}

type InvalidateQuery struct {
	Store    string `query:"store" json:"store" validate:"required"`
	Category string `query:"category" json:"category" validate:"required"`
	Product  string `query:"product" json:"product"`
}

type HistoryQuery struct {
	Store    string `query:"store" json:"store" validate:"required"`
	Category string `query:"category" json:"category" validate:"required"`
	Product  string `query:"product" json:"product"`
	Limit    int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
}

type PopulateJobBody struct {
	Store       string `json:"store" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Product     string `json:"product"`
	Granularity string `json:"granularity" default:"monthly" validate:"oneof=daily weekly monthly"`
	Horizon     int    `json:"horizon" default:"3" validate:"gte=1,lte=366"`
	Lookback    int    `json:"lookback" default:"36" validate:"gte=1,lte=3660"`
	Tier        string `json:"tier"`
}

// Selector returns the series selector named by the query.
func (q ForecastQuery) Selector() Selector {
	return Selector{Store: q.Store, Category: q.Category, Product: q.Product}
}

func (q InvalidateQuery) Selector() Selector {
	return Selector{Store: q.Store, Category: q.Category, Product: q.Product}
}

func (q HistoryQuery) Selector() Selector {
	return Selector{Store: q.Store, Category: q.Category, Product: q.Product}
}

func (b PopulateJobBody) Selector() Selector {
	return Selector{Store: b.Store, Category: b.Category, Product: b.Product}
}

func (b ForecastBody) Selector() Selector {
	return Selector{Store: b.Store, Category: b.Category, Product: b.Product}
}

// Inline reports whether the body carries its own series.
func (b ForecastBody) Inline() bool { return len(b.Series) > 0 }

// ToRequest converts an inline body into a core request. Periods are
// truncated to the granularity; malformed dates are rejected.
func (b ForecastBody) ToRequest() (ForecastRequest, error) {
	g := Granularity(b.Granularity)
	if !g.Valid() {
		return ForecastRequest{}, fmt.Errorf("granularity %q is not supported", b.Granularity)
	}
	req := ForecastRequest{
		Series:  HistoricalSeries{Selector: b.Selector(), Granularity: g},
		Horizon: b.Horizon,
		Tier:    b.Tier,
	}
	if b.AsOf != "" {
		t, ok := util.ParseTime(b.AsOf)
		if !ok {
			return ForecastRequest{}, fmt.Errorf("as_of %q is not a date", b.AsOf)
		}
		req.AsOf = t.UTC()
	}
	for i, o := range b.Series {
		p, err := parsePeriod(g, o.Period, "series", i)
		if err != nil {
			return ForecastRequest{}, err
		}
		obs := Observation{Period: p, Quantity: o.Quantity}
		if o.Revenue != nil {
			d := decimal.NewFromFloat(*o.Revenue)
			obs.Revenue = &d
		}
		req.Series.Observations = append(req.Series.Observations, obs)
	}
	for i, inv := range b.Inventory {
		p, err := parsePeriod(g, inv.Period, "inventory", i)
		if err != nil {
			return ForecastRequest{}, err
		}
		req.Inventory = append(req.Inventory, InventorySnapshot{Period: p, OnHand: inv.OnHand})
	}
	for i, pr := range b.Promotions {
		start, ok := util.ParseTime(pr.Start)
		if !ok {
			return ForecastRequest{}, fmt.Errorf("promotions[%d].start %q is not a date", i, pr.Start)
		}
		end, ok := util.ParseTime(pr.End)
		if !ok {
			return ForecastRequest{}, fmt.Errorf("promotions[%d].end %q is not a date", i, pr.End)
		}
		req.Promotions = append(req.Promotions, PromoEvent{Name: pr.Name, Start: start.UTC(), End: end.UTC()})
	}
	if len(b.CategoryIndices) > 0 {
		req.CategoryProfile = &CategoryProfile{Category: b.Category, Granularity: g, Indices: b.CategoryIndices}
	}
	return req, nil
}

func parsePeriod(g Granularity, s, field string, i int) (time.Time, error) {
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("%s[%d].period %q is not a date", field, i, s)
	}
	return g.Truncate(t), nil
}

// Responses.

// ForecastResponse is the wire shape of a forecast run. Slices and maps are
// never null so clients can index them unconditionally.
type ForecastResponse struct {
	RunID        string                       `json:"run_id"`
	Fingerprint  string                       `json:"fingerprint"`
	Selector     Selector                     `json:"selector"`
	Granularity  Granularity                  `json:"granularity"`
	Horizon      int                          `json:"horizon"`
	BestModel    string                       `json:"melhor_modelo"`
	Metrics      map[string]float64           `json:"metricas"`
	Models       map[string]ForecastCandidate `json:"modelos"`
	History      []Observation                `json:"historico"`
	Ranking      []ScoreCard                  `json:"ranking"`
	Disqualified []Disqualification           `json:"desqualificados"`
	Metadata     ResponseMetadata             `json:"metadados"`
}

type ResponseMetadata struct {
	ResultMetadata
	Conformance []ConformanceReport `json:"conformance"`
	Annotations []DemandAnnotation  `json:"annotations"`
}

// NewForecastResponse flattens a result for the API. Metrics are the winner's.
func NewForecastResponse(r *ForecastResult) ForecastResponse {
	out := ForecastResponse{
		RunID:        r.RunID,
		Fingerprint:  r.Fingerprint,
		Selector:     r.Selector,
		Granularity:  r.Granularity,
		Horizon:      r.Horizon,
		BestModel:    r.BestModel,
		Metrics:      map[string]float64{},
		Models:       make(map[string]ForecastCandidate, len(r.Candidates)),
		History:      append([]Observation{}, r.History...),
		Ranking:      append([]ScoreCard{}, r.ScoreCards...),
		Disqualified: append([]Disqualification{}, r.Disqualified...),
		Metadata: ResponseMetadata{
			ResultMetadata: r.Metadata,
			Conformance:    append([]ConformanceReport{}, r.Conformance...),
			Annotations:    append([]DemandAnnotation{}, r.Annotations...),
		},
	}
	if card, ok := r.ScoreCard(r.BestModel); ok {
		for k, v := range card.Metrics {
			out.Metrics[k] = v
		}
	}
	for _, c := range r.Candidates {
		out.Models[c.Model] = c
	}
	return out
}
