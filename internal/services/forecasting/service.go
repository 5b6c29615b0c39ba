package forecasting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"DemandCast/internal/domain/models"
	"DemandCast/internal/domain/service"
	"DemandCast/pkg/logger"
)

// Service is the entry point: it fingerprints a request and serves it from
// the result cache, computing through the pipeline on a miss.
type Service struct {
	pipeline *Pipeline
	cache    service.ResultCache
	logger   *logger.Logger
	hooks    []service.ComputedHook
}

var _ service.Forecaster = (*Service)(nil)

// NewService wires a pipeline behind a cache. A nil cache computes every call.
func NewService(p *Pipeline, cache service.ResultCache, l *logger.Logger) *Service {
	if l == nil {
		l = logger.Nop()
	}
	return &Service{pipeline: p, cache: cache, logger: l}
}

// OnComputed registers a hook run after every fresh computation. Not safe to
// call once the service is serving.
func (s *Service) OnComputed(h service.ComputedHook) {
	if h != nil {
		s.hooks = append(s.hooks, h)
	}
}

// Fingerprint derives the cache identity of req.
func (s *Service) Fingerprint(req models.ForecastRequest) models.Fingerprint {
	cfg := s.pipeline.Config()
	version := req.DataVersion
	if version == "" {
		version = ContentVersion(req)
	}
	return models.Fingerprint{
		Selector:     req.Series.Selector,
		Horizon:      req.Horizon,
		Granularity:  req.Series.Granularity,
		AsOf:         req.AsOf,
		DataVersion:  version,
		Tier:         req.Tier,
		ConfigDigest: cfg.Digest(req.Tier),
	}
}

// Forecast returns the cached result for req or computes it once.
func (s *Service) Forecast(ctx context.Context, req models.ForecastRequest, opts ...service.CallOption) (*models.ForecastResult, error) {
	fp := s.Fingerprint(req)
	if req.DataVersion == "" {
		req.DataVersion = fp.DataVersion
	}
	compute := func(ctx context.Context) (*models.ForecastResult, error) {
		res, err := s.pipeline.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		res.Fingerprint = fp.Key()
		for _, h := range s.hooks {
			h(ctx, res)
		}
		return res, nil
	}
	if s.cache == nil {
		return compute(ctx)
	}
	res, err := s.cache.GetOrCompute(ctx, fp, compute, opts...)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", fp.Selector, err)
	}
	return res, nil
}

// Invalidate drops every cached result of the selector.
func (s *Service) Invalidate(ctx context.Context, sel models.Selector) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.InvalidateSelector(ctx, sel); err != nil {
		return fmt.Errorf("invalidate %s: %w", sel, err)
	}
	s.logger.Info("forecast cache invalidated", logger.String("selector", sel.String()))
	return nil
}

// Models lists the registered model specs.
func (s *Service) Models() []service.ModelSpec { return s.pipeline.Registry().Specs() }

// ContentVersion hashes the series and auxiliary inputs. Equal content gives
// equal versions regardless of who built the request.
func ContentVersion(req models.ForecastRequest) string {
	view := struct {
		Obs     []models.Observation       `json:"o"`
		Inv     []models.InventorySnapshot `json:"i"`
		Promo   []models.PromoEvent        `json:"p"`
		Profile *models.CategoryProfile    `json:"c"`
	}{req.Series.Observations, req.Inventory, req.Promotions, req.CategoryProfile}
	b, _ := json.Marshal(view)
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:12])
}
