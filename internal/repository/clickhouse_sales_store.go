package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	pkgch "DemandCast/pkg/clickhouse"
	applogger "DemandCast/pkg/logger"
)

// Tables names the ClickHouse tables demand history is read from.
type Tables struct {
	Sales      string
	Inventory  string
	Promotions string
}

// profileCycles is how many seasonal cycles of category history feed a profile.
const profileCycles = 3

// CHSalesStore implements SalesStore backed by ClickHouse.
type CHSalesStore struct {
	db     *sql.DB
	tables Tables
	l      *applogger.Logger
	now    func() time.Time
}

var _ domrepo.SalesStore = (*CHSalesStore)(nil)

func NewCHSalesStore(ch *pkgch.Client, tables Tables, l *applogger.Logger) *CHSalesStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHSalesStore{db: ch.DB(), tables: tables, l: l, now: time.Now}
}

func (s *CHSalesStore) GetSeries(ctx context.Context, q domrepo.SalesQuery) (models.HistoricalSeries, error) {
	start := time.Now()
	period, err := periodExpr(q.Granularity, "sold_at")
	if err != nil {
		return models.HistoricalSeries{}, err
	}
	where, args := selectorFilter(q.Selector)
	args = append(args, q.From, q.To)
	query := fmt.Sprintf(`
        SELECT %s AS period, sum(quantity) AS qty, toString(sum(revenue)) AS rev
        FROM %s
        WHERE %s AND sold_at >= ? AND sold_at < ?
        GROUP BY period
        ORDER BY period ASC
    `, period, s.tables.Sales, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.l.Error("clickhouse get_series query error",
			applogger.String("selector", q.Selector.String()),
			applogger.Error(err),
		)
		return models.HistoricalSeries{}, fmt.Errorf("get series: %w", err)
	}
	defer rows.Close()

	out := models.HistoricalSeries{Selector: q.Selector, Granularity: q.Granularity}
	for rows.Next() {
		var (
			p   time.Time
			qty float64
			rev string
		)
		if err := rows.Scan(&p, &qty, &rev); err != nil {
			return models.HistoricalSeries{}, fmt.Errorf("scan sales row: %w", err)
		}
		o := models.Observation{Period: q.Granularity.Truncate(p), Quantity: qty}
		if d, err := decimal.NewFromString(rev); err == nil {
			o.Revenue = &d
		}
		out.Observations = append(out.Observations, o)
	}
	if err := rows.Err(); err != nil {
		return models.HistoricalSeries{}, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse get_series ok",
		applogger.String("selector", q.Selector.String()),
		applogger.String("granularity", string(q.Granularity)),
		applogger.Int("rows", len(out.Observations)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// GetInventory returns the lowest on-hand quantity seen in each period.
func (s *CHSalesStore) GetInventory(ctx context.Context, q domrepo.SalesQuery) ([]models.InventorySnapshot, error) {
	period, err := periodExpr(q.Granularity, "snapshot_at")
	if err != nil {
		return nil, err
	}
	where, args := selectorFilter(q.Selector)
	args = append(args, q.From, q.To)
	query := fmt.Sprintf(`
        SELECT %s AS period, min(on_hand) AS on_hand
        FROM %s
        WHERE %s AND snapshot_at >= ? AND snapshot_at < ?
        GROUP BY period
        ORDER BY period ASC
    `, period, s.tables.Inventory, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	defer rows.Close()

	var out []models.InventorySnapshot
	for rows.Next() {
		var snap models.InventorySnapshot
		if err := rows.Scan(&snap.Period, &snap.OnHand); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		snap.Period = q.Granularity.Truncate(snap.Period)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// GetPromotions returns promotions of the store and category overlapping the query window.
func (s *CHSalesStore) GetPromotions(ctx context.Context, q domrepo.SalesQuery) ([]models.PromoEvent, error) {
	query := fmt.Sprintf(`
        SELECT name, start_date, end_date
        FROM %s
        WHERE store = ? AND category = ? AND end_date >= ? AND start_date < ?
        ORDER BY start_date ASC
    `, s.tables.Promotions)

	rows, err := s.db.QueryContext(ctx, query, q.Selector.Store, q.Selector.Category, q.From, q.To)
	if err != nil {
		return nil, fmt.Errorf("get promotions: %w", err)
	}
	defer rows.Close()

	var out []models.PromoEvent
	for rows.Next() {
		var p models.PromoEvent
		if err := rows.Scan(&p.Name, &p.Start, &p.End); err != nil {
			return nil, fmt.Errorf("scan promotion row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// GetCategoryProfile derives seasonal indices from the last few cycles of
// category-level demand. Returns nil when less than one cycle is available.
func (s *CHSalesStore) GetCategoryProfile(ctx context.Context, store, category string, g models.Granularity) (*models.CategoryProfile, error) {
	to := g.Truncate(s.now())
	from := g.Step(to, -profileCycles*g.SeasonLength())
	series, err := s.GetSeries(ctx, domrepo.SalesQuery{
		Selector:    models.Selector{Store: store, Category: category},
		Granularity: g,
		From:        from,
		To:          to,
	})
	if err != nil {
		return nil, fmt.Errorf("category profile: %w", err)
	}
	return ProfileFromSeries(category, g, series.Observations), nil
}

// DataVersion fingerprints row count, demand total and the newest row of the window.
func (s *CHSalesStore) DataVersion(ctx context.Context, q domrepo.SalesQuery) (string, error) {
	where, args := selectorFilter(q.Selector)
	args = append(args, q.From, q.To)
	query := fmt.Sprintf(`
        SELECT count() AS n, toString(sum(quantity)) AS qty, toString(max(sold_at)) AS latest
        FROM %s
        WHERE %s AND sold_at >= ? AND sold_at < ?
    `, s.tables.Sales, where)

	var (
		n           uint64
		qty, latest string
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n, &qty, &latest); err != nil {
		return "", fmt.Errorf("data version: %w", err)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s|%s", n, qty, latest, q.From.UTC().Format(time.RFC3339), q.To.UTC().Format(time.RFC3339))))
	return "ch:" + hex.EncodeToString(sum[:12]), nil
}

// ProfileFromSeries turns category demand into multiplicative seasonal
// indices: mean demand at each season position over the overall mean.
func ProfileFromSeries(category string, g models.Granularity, obs []models.Observation) *models.CategoryProfile {
	season := g.SeasonLength()
	if len(obs) < season {
		return nil
	}
	sums := make([]float64, season)
	counts := make([]int, season)
	var total float64
	for _, o := range obs {
		pos := g.SeasonPosition(o.Period)
		sums[pos] += o.Quantity
		counts[pos]++
		total += o.Quantity
	}
	overall := total / float64(len(obs))
	if overall <= 0 {
		return nil
	}
	idx := make([]float64, season)
	for i := range idx {
		if counts[i] == 0 {
			idx[i] = 1
			continue
		}
		idx[i] = sums[i] / float64(counts[i]) / overall
	}
	return &models.CategoryProfile{Category: category, Granularity: g, Indices: idx}
}

func periodExpr(g models.Granularity, col string) (string, error) {
	switch g {
	case models.Daily:
		return fmt.Sprintf("toStartOfDay(%s)", col), nil
	case models.Weekly:
		return fmt.Sprintf("toDateTime(toMonday(%s))", col), nil
	case models.Monthly:
		return fmt.Sprintf("toDateTime(toStartOfMonth(%s))", col), nil
	default:
		return "", fmt.Errorf("unsupported granularity: %s", g)
	}
}

func selectorFilter(sel models.Selector) (string, []interface{}) {
	conds := []string{"store = ?", "category = ?"}
	args := []interface{}{sel.Store, sel.Category}
	if sel.Product != "" {
		conds = append(conds, "product = ?")
		args = append(args, sel.Product)
	}
	return strings.Join(conds, " AND "), args
}
