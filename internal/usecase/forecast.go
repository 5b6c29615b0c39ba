package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	"DemandCast/internal/domain/service"
	"DemandCast/pkg/logger"
	"DemandCast/pkg/queue"
)

// ErrQueueNotConfigured is returned by job operations when no queue is wired.
var ErrQueueNotConfigured = errors.New("job queue not configured")

var tracer = otel.Tracer("demandcast/usecase")

// SelectorRequest asks for a forecast of history loaded from the sales store.
type SelectorRequest struct {
	Selector    models.Selector
	Granularity models.Granularity
	Horizon     int
	// Lookback is the number of complete periods of history to load.
	Lookback int
	Tier     string
	// AsOf defaults to now; only periods that ended before it are loaded.
	AsOf  time.Time
	Force bool
}

// JobQueue is what the use case needs from the background queue.
type JobQueue interface {
	queue.Publisher
	Stats(ctx context.Context) (queue.Stats, error)
}

type hookable interface {
	OnComputed(service.ComputedHook)
}

// ForecastUsecase loads history, runs forecasts and records fresh results.
type ForecastUsecase struct {
	svc     service.Forecaster
	store   domrepo.SalesStore
	events  domrepo.EventPublisher
	history domrepo.ForecastHistory
	jobs    JobQueue
	metrics domrepo.Metrics
	l       *logger.Logger
	now     func() time.Time
}

// NewForecastUsecase wires the use case. store, events and history may be
// nil; the operations needing them then fail with a not-configured error.
func NewForecastUsecase(svc service.Forecaster, store domrepo.SalesStore, events domrepo.EventPublisher, history domrepo.ForecastHistory, m domrepo.Metrics, l *logger.Logger) *ForecastUsecase {
	if l == nil {
		l = logger.Nop()
	}
	u := &ForecastUsecase{svc: svc, store: store, events: events, history: history, metrics: m, l: l, now: time.Now}
	if h, ok := svc.(hookable); ok {
		h.OnComputed(u.Record)
	}
	return u
}

// SetQueue attaches the background job queue.
func (u *ForecastUsecase) SetQueue(q JobQueue) { u.jobs = q }

// SetClock replaces the wall clock used for default as-of dates.
func (u *ForecastUsecase) SetClock(now func() time.Time) { u.now = now }

// Forecast runs an inline request.
func (u *ForecastUsecase) Forecast(ctx context.Context, req models.ForecastRequest, force bool) (*models.ForecastResult, error) {
	if req.AsOf.IsZero() {
		req.AsOf = req.Series.Granularity.Truncate(u.now())
	}
	var opts []service.CallOption
	if force {
		opts = append(opts, service.WithForceRecompute())
	}
	return u.svc.Forecast(ctx, req, opts...)
}

// ForecastSelector loads the selector's history and forecasts it.
func (u *ForecastUsecase) ForecastSelector(ctx context.Context, r SelectorRequest) (*models.ForecastResult, error) {
	req, err := u.LoadRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	return u.Forecast(ctx, req, r.Force)
}

// LoadRequest builds a core request from the sales store. The window ends at
// the start of the as-of period so partial periods never enter a fit.
func (u *ForecastUsecase) LoadRequest(ctx context.Context, r SelectorRequest) (models.ForecastRequest, error) {
	if u.store == nil {
		return models.ForecastRequest{}, models.ErrStoreNotConfigured
	}
	ctx, span := tracer.Start(ctx, "usecase.load_request")
	defer span.End()
	span.SetAttributes(
		attribute.String("selector", r.Selector.String()),
		attribute.Int("lookback", r.Lookback),
	)

	g := r.Granularity
	if !g.Valid() {
		g = models.Monthly
	}
	asOf := r.AsOf
	if asOf.IsZero() {
		asOf = u.now()
	}
	to := g.Truncate(asOf)
	q := domrepo.SalesQuery{
		Selector:    r.Selector,
		Granularity: g,
		From:        g.Step(to, -r.Lookback),
		To:          to,
	}

	var (
		req      = models.ForecastRequest{Horizon: r.Horizon, Tier: r.Tier, AsOf: to}
		start    = time.Now()
		eg, gctx = errgroup.WithContext(ctx)
	)
	eg.Go(func() (err error) {
		req.Series, err = u.store.GetSeries(gctx, q)
		return err
	})
	eg.Go(func() (err error) {
		req.DataVersion, err = u.store.DataVersion(gctx, q)
		return err
	})
	eg.Go(func() (err error) {
		req.Inventory, err = u.store.GetInventory(gctx, q)
		return err
	})
	eg.Go(func() (err error) {
		req.Promotions, err = u.store.GetPromotions(gctx, q)
		return err
	})
	if r.Selector.Product != "" {
		eg.Go(func() (err error) {
			req.CategoryProfile, err = u.store.GetCategoryProfile(gctx, r.Selector.Store, r.Selector.Category, g)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		u.recordError("store_load")
		return models.ForecastRequest{}, fmt.Errorf("load %s: %w", r.Selector, err)
	}
	if u.metrics != nil {
		u.metrics.RecordLatency("store_load", time.Since(start).Seconds())
	}
	req.Series.Selector = r.Selector
	req.Series.Granularity = g
	if req.CategoryProfile != nil {
		req.DataVersion += "+" + profileDigest(req.CategoryProfile)
	}
	u.l.Debug("history loaded",
		logger.String("selector", r.Selector.String()),
		logger.Int("observations", req.Series.Len()),
		logger.String("data_version", req.DataVersion),
		logger.Duration("elapsed_ms", time.Since(start)),
	)
	return req, nil
}

// Record publishes and persists a freshly computed result. Failures are
// logged; the forecast itself already succeeded.
func (u *ForecastUsecase) Record(ctx context.Context, r *models.ForecastResult) {
	if u.events != nil {
		if err := u.events.PublishForecast(ctx, r); err != nil {
			u.recordError("event_publish")
			u.l.Warn("forecast event not published", logger.String("run_id", r.RunID), logger.Error(err))
		}
	}
	if u.history != nil {
		if err := u.history.Save(ctx, r); err != nil {
			u.recordError("history_save")
			u.l.Error("forecast history not saved", logger.String("run_id", r.RunID), logger.Error(err))
		}
	}
}

// Invalidate drops cached results of the selector.
func (u *ForecastUsecase) Invalidate(ctx context.Context, sel models.Selector) error {
	return u.svc.Invalidate(ctx, sel)
}

// Models lists the registered models.
func (u *ForecastUsecase) Models() []service.ModelSpec { return u.svc.Models() }

// History returns the most recent stored results of the selector.
func (u *ForecastUsecase) History(ctx context.Context, sel models.Selector, limit int) ([]models.ForecastResult, error) {
	if u.history == nil {
		return nil, models.ErrHistoryNotConfigured
	}
	return u.history.Latest(ctx, sel, limit)
}

// EnqueuePopulate schedules a history population job and returns its id.
func (u *ForecastUsecase) EnqueuePopulate(ctx context.Context, body models.PopulateJobBody) (string, error) {
	if u.jobs == nil {
		return "", ErrQueueNotConfigured
	}
	id, err := u.jobs.Enqueue(ctx, PopulateHistoryJobType, body)
	if err != nil {
		return "", fmt.Errorf("enqueue populate %s: %w", body.Selector(), err)
	}
	u.l.Info("populate job enqueued", logger.String("id", id), logger.String("selector", body.Selector().String()))
	return id, nil
}

// QueueStats reports the job queue depths.
func (u *ForecastUsecase) QueueStats(ctx context.Context) (queue.Stats, error) {
	if u.jobs == nil {
		return queue.Stats{}, ErrQueueNotConfigured
	}
	return u.jobs.Stats(ctx)
}

func (u *ForecastUsecase) recordError(kind string) {
	if u.metrics != nil {
		u.metrics.RecordError(kind)
	}
}

// profileDigest versions the category profile, which changes independently
// of the selector's own rows.
func profileDigest(p *models.CategoryProfile) string {
	h := sha256.New()
	for _, v := range p.Indices {
		h.Write([]byte(strconv.FormatFloat(v, 'g', -1, 64)))
		h.Write([]byte{','})
	}
	return hex.EncodeToString(h.Sum(nil)[:6])
}
