package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	applogger "DemandCast/pkg/logger"
)

// pgPool is the part of *pgxpool.Pool the history store uses.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PGForecastHistory stores every computed forecast in Postgres so later
// actuals can be compared with what was predicted.
type PGForecastHistory struct {
	pool  pgPool
	close func()
	l     *applogger.Logger
}

var _ domrepo.ForecastHistory = (*PGForecastHistory)(nil)

func NewPGForecastHistory(pool *pgxpool.Pool, l *applogger.Logger) *PGForecastHistory {
	if l == nil {
		l = applogger.Nop()
	}
	return &PGForecastHistory{pool: pool, close: pool.Close, l: l}
}

var historySchema = []string{`
CREATE TABLE IF NOT EXISTS forecast_history (
    run_id       UUID PRIMARY KEY,
    fingerprint  TEXT        NOT NULL,
    store        TEXT        NOT NULL,
    category     TEXT        NOT NULL,
    product      TEXT        NOT NULL DEFAULT '',
    granularity  TEXT        NOT NULL,
    horizon      INTEGER     NOT NULL,
    best_model   TEXT        NOT NULL,
    best_mape    DOUBLE PRECISION,
    result       JSONB       NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS idx_forecast_history_selector
    ON forecast_history (store, category, product, generated_at DESC)`,
}

func (h *PGForecastHistory) Init(ctx context.Context) error {
	for _, stmt := range historySchema {
		if _, err := h.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init forecast history: %w", err)
		}
	}
	return nil
}

// Save inserts r once; saving the same run twice is a no-op.
func (h *PGForecastHistory) Save(ctx context.Context, r *models.ForecastResult) error {
	row, err := newHistoryRow(r)
	if err != nil {
		return err
	}
	const q = `
        INSERT INTO forecast_history
            (run_id, fingerprint, store, category, product, granularity, horizon, best_model, best_mape, result, generated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (run_id) DO NOTHING
    `
	tag, err := h.pool.Exec(ctx, q,
		row.RunID, row.Fingerprint, row.Store, row.Category, row.Product, row.Granularity,
		row.Horizon, row.BestModel, row.BestMAPE, row.Result, row.GeneratedAt,
	)
	if err != nil {
		h.l.Error("postgres save forecast error",
			applogger.String("run_id", row.RunID),
			applogger.Error(err),
		)
		return fmt.Errorf("save forecast: %w", err)
	}
	h.l.Debug("postgres save forecast ok",
		applogger.String("run_id", row.RunID),
		applogger.Int64("rows", tag.RowsAffected()),
	)
	return nil
}

// Latest returns up to limit stored results of the selector, newest first.
func (h *PGForecastHistory) Latest(ctx context.Context, sel models.Selector, limit int) ([]models.ForecastResult, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
        SELECT result
        FROM forecast_history
        WHERE store = $1 AND category = $2 AND product = $3
        ORDER BY generated_at DESC
        LIMIT $4
    `
	rows, err := h.pool.Query(ctx, q, sel.Store, sel.Category, sel.Product, limit)
	if err != nil {
		return nil, fmt.Errorf("latest forecasts: %w", err)
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan forecasts: %w", err)
	}
	out := make([]models.ForecastResult, 0, len(raws))
	for _, raw := range raws {
		var r models.ForecastResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode forecast: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (h *PGForecastHistory) Health(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func (h *PGForecastHistory) Close() error {
	if h.close != nil {
		h.close()
	}
	return nil
}

type historyRow struct {
	RunID       string
	Fingerprint string
	Store       string
	Category    string
	Product     string
	Granularity string
	Horizon     int
	BestModel   string
	BestMAPE    *float64
	Result      []byte
	GeneratedAt time.Time
}

func newHistoryRow(r *models.ForecastResult) (historyRow, error) {
	if r == nil || r.RunID == "" {
		return historyRow{}, fmt.Errorf("save forecast: missing run id")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return historyRow{}, fmt.Errorf("encode forecast: %w", err)
	}
	row := historyRow{
		RunID:       r.RunID,
		Fingerprint: r.Fingerprint,
		Store:       r.Selector.Store,
		Category:    r.Selector.Category,
		Product:     r.Selector.Product,
		Granularity: string(r.Granularity),
		Horizon:     r.Horizon,
		BestModel:   r.BestModel,
		Result:      raw,
		GeneratedAt: r.Metadata.GeneratedAt,
	}
	if card, ok := r.ScoreCard(r.BestModel); ok {
		if v, ok := card.Metrics["mape"]; ok {
			row.BestMAPE = &v
		}
	}
	if row.GeneratedAt.IsZero() {
		row.GeneratedAt = time.Now().UTC()
	}
	return row, nil
}
