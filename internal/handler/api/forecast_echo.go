package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	"DemandCast/internal/service/metrics"
	"DemandCast/internal/service/ratelimit"
	"DemandCast/internal/usecase"
	xhttp "DemandCast/pkg/http"
	xlogger "DemandCast/pkg/logger"
	"DemandCast/pkg/util"
)

// HealthCheck pings one backing resource for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ForecastEchoHandler serves the forecast API.
type ForecastEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.ForecastUsecase
	rl     *ratelimit.Limiter
	checks []HealthCheck
}

// NewForecastEchoHandler creates the handler. A nil limiter disables rate limiting.
func NewForecastEchoHandler(logger *xlogger.Logger, uc *usecase.ForecastUsecase, rl *ratelimit.Limiter) *ForecastEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ForecastEchoHandler{logger: logger, uc: uc, rl: rl}
}

// AddHealthCheck registers a check reported by /healthz.
func (h *ForecastEchoHandler) AddHealthCheck(name string, check func(ctx context.Context) error) {
	h.checks = append(h.checks, HealthCheck{Name: name, Check: check})
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.limit)
	g.POST("/forecast", h.Create)
	g.GET("/forecast", h.Get)
	g.DELETE("/forecast/cache", h.Invalidate)
	g.GET("/forecast/history", h.History)
	g.POST("/forecast/jobs", h.EnqueueJob)
	g.GET("/forecast/jobs/stats", h.JobStats)
	g.GET("/models", h.Models)
}

// Create forecasts an inline series, or a stored one when the body has none.
func (h *ForecastEchoHandler) Create(c echo.Context) error {
	defer h.observe("forecast_create", time.Now())
	req := &models.ForecastBody{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	var (
		res *models.ForecastResult
		err error
	)
	if req.Inline() {
		fr, cerr := req.ToRequest()
		if cerr != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(cerr.Error()))
		}
		res, err = h.uc.Forecast(ctx, fr, req.Force)
	} else {
		asOf, ok := parseAsOf(req.AsOf)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("as_of %q is not a date", req.AsOf))
		}
		res, err = h.uc.ForecastSelector(ctx, usecase.SelectorRequest{
			Selector:    req.Selector(),
			Granularity: domrepo.NormalizeGranularity(req.Granularity),
			Horizon:     req.Horizon,
			Lookback:    req.Lookback,
			Tier:        req.Tier,
			AsOf:        asOf,
			Force:       req.Force,
		})
	}
	if err != nil {
		return h.fail(c, "forecast_create", err)
	}
	return xhttp.SuccessResponse(c, models.NewForecastResponse(res))
}

// Get forecasts a stored series named by query parameters.
func (h *ForecastEchoHandler) Get(c echo.Context) error {
	defer h.observe("forecast_get", time.Now())
	req := &models.ForecastQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	asOf, ok := parseAsOf(req.AsOf)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("as_of %q is not a date", req.AsOf))
	}

	res, err := h.uc.ForecastSelector(c.Request().Context(), usecase.SelectorRequest{
		Selector:    req.Selector(),
		Granularity: domrepo.NormalizeGranularity(req.Granularity),
		Horizon:     req.Horizon,
		Lookback:    req.Lookback,
		Tier:        req.Tier,
		AsOf:        asOf,
		Force:       req.Force,
	})
	if err != nil {
		return h.fail(c, "forecast_get", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, models.NewForecastResponse(res))
}

func (h *ForecastEchoHandler) Invalidate(c echo.Context) error {
	defer h.observe("forecast_invalidate", time.Now())
	req := &models.InvalidateQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.uc.Invalidate(c.Request().Context(), req.Selector()); err != nil {
		return h.fail(c, "forecast_invalidate", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *ForecastEchoHandler) History(c echo.Context) error {
	defer h.observe("forecast_history", time.Now())
	req := &models.HistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.uc.History(c.Request().Context(), req.Selector(), req.Limit)
	if err != nil {
		return h.fail(c, "forecast_history", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ForecastEchoHandler) EnqueueJob(c echo.Context) error {
	defer h.observe("forecast_jobs", time.Now())
	req := &models.PopulateJobBody{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, err := h.uc.EnqueuePopulate(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "forecast_jobs", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"job_id": id, "type": usecase.PopulateHistoryJobType})
}

func (h *ForecastEchoHandler) JobStats(c echo.Context) error {
	st, err := h.uc.QueueStats(c.Request().Context())
	if err != nil {
		return h.fail(c, "forecast_job_stats", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *ForecastEchoHandler) Models(c echo.Context) error {
	specs := h.uc.Models()
	return xhttp.ListResponse(c, specs, int64(len(specs)))
}

// Health reports every registered check; any failure turns the status to 503.
func (h *ForecastEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	out := map[string]string{}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			out[hc.Name] = err.Error()
			continue
		}
		out[hc.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, out)
}

func (h *ForecastEchoHandler) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl == nil {
			return next(c)
		}
		if !h.rl.Allow(c.RealIP() + ":" + c.Path()) {
			metrics.RateLimited.WithLabelValues(c.Path()).Inc()
			h.logger.Warn("forecast api rate_limited",
				xlogger.String("remote", c.RealIP()),
				xlogger.String("path", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
		}
		return next(c)
	}
}

func (h *ForecastEchoHandler) observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *ForecastEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.APIErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("forecast usecase error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	} else {
		h.logger.Debug("forecast rejected", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain failures to API errors: data problems are 422,
// missing collaborators 503, everything else 500.
func toAppError(err error) *xhttp.AppError {
	var noEligible *models.NoEligibleModelError
	switch {
	case errors.As(err, &noEligible):
		return xhttp.UnprocessableError("ERR_NO_ELIGIBLE_MODEL", err.Error()).
			WithParam("conformance", noEligible.Reports)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.UnprocessableError("ERR_INSUFFICIENT_DATA", err.Error())
	case errors.Is(err, models.ErrInvalidSeries):
		return xhttp.UnprocessableError("ERR_INVALID_SERIES", err.Error())
	case errors.Is(err, models.ErrStoreNotConfigured),
		errors.Is(err, models.ErrHistoryNotConfigured),
		errors.Is(err, usecase.ErrQueueNotConfigured):
		return xhttp.ServiceUnavailableError(err.Error())
	default:
		return xhttp.InternalError("forecast failed").WithError(err)
	}
}

func parseAsOf(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	t, ok := util.ParseTime(s)
	return t.UTC(), ok
}
