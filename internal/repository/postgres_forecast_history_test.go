package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"DemandCast/internal/domain/models"
	applogger "DemandCast/pkg/logger"
)

type execCall struct {
	sql  string
	args []any
}

type fakePool struct {
	calls []execCall
	err   error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakePool) Ping(context.Context) error { return f.err }

func TestHistoryInitAndSave(t *testing.T) {
	pool := &fakePool{}
	h := &PGForecastHistory{pool: pool, l: applogger.Nop()}
	ctx := context.Background()

	if err := h.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(pool.calls) != 2 || !strings.Contains(pool.calls[0].sql, "CREATE TABLE") {
		t.Fatalf("schema statements = %d", len(pool.calls))
	}

	r := &models.ForecastResult{RunID: "run-1", Selector: models.Selector{Store: "s1", Category: "toys"}, BestModel: "ses"}
	if err := h.Save(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	last := pool.calls[len(pool.calls)-1]
	if !strings.Contains(last.sql, "ON CONFLICT (run_id) DO NOTHING") || last.args[0] != "run-1" {
		t.Errorf("insert = %q %v", last.sql, last.args)
	}

	pool.err = errors.New("down")
	if err := h.Save(ctx, r); err == nil {
		t.Errorf("expected save error")
	}
	if err := h.Health(ctx); err == nil {
		t.Errorf("expected health error")
	}
}

func TestNewHistoryRow(t *testing.T) {
	gen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := &models.ForecastResult{
		RunID:       "6f1c2b9e-1f0a-4d7e-9a55-0c1d2e3f4a5b",
		Fingerprint: "forecast:s1:toys:_:abc",
		Selector:    models.Selector{Store: "s1", Category: "toys"},
		Granularity: models.Monthly,
		Horizon:     3,
		BestModel:   "linear_trend",
		ScoreCards: []models.ScoreCard{
			{Model: "linear_trend", Rank: 1, Scored: true, Metrics: map[string]float64{"mape": 4.2}},
		},
		Metadata: models.ResultMetadata{GeneratedAt: gen},
	}
	row, err := newHistoryRow(r)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row.Product != "" || row.Store != "s1" || row.Horizon != 3 {
		t.Errorf("row = %+v", row)
	}
	if row.BestMAPE == nil || *row.BestMAPE != 4.2 {
		t.Errorf("best mape = %v", row.BestMAPE)
	}
	if !row.GeneratedAt.Equal(gen) {
		t.Errorf("generated at = %v", row.GeneratedAt)
	}
	var back models.ForecastResult
	if err := json.Unmarshal(row.Result, &back); err != nil || back.RunID != r.RunID {
		t.Errorf("result payload did not round-trip: %v", err)
	}
}

func TestNewHistoryRowRequiresRunID(t *testing.T) {
	if _, err := newHistoryRow(&models.ForecastResult{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := newHistoryRow(nil); err == nil {
		t.Fatalf("expected error for nil result")
	}
}
