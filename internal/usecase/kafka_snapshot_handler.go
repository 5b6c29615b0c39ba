package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	"DemandCast/internal/domain/service"
	pkgkafka "DemandCast/pkg/kafka"
	"DemandCast/pkg/logger"
)

// SnapshotHandler drops cached forecasts when upstream reports new sales rows
// for a selector.
type SnapshotHandler struct {
	topic   string
	svc     service.Forecaster
	metrics domrepo.Metrics
	l       *logger.Logger
}

var _ pkgkafka.MessageHandler = (*SnapshotHandler)(nil)

func NewSnapshotHandler(topic string, svc service.Forecaster, m domrepo.Metrics, l *logger.Logger) *SnapshotHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &SnapshotHandler{topic: topic, svc: svc, metrics: m, l: l}
}

func (h *SnapshotHandler) Topic() string { return h.topic }

// incoming message schema: {store, category, product?, updated_at}
func (h *SnapshotHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.SnapshotEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.recordError("snapshot_unmarshal")
		return pkgkafka.Skip(fmt.Errorf("decode snapshot event: %w", err))
	}
	if ev.Store == "" || ev.Category == "" {
		h.recordError("snapshot_invalid")
		return pkgkafka.Skip(fmt.Errorf("snapshot event without store or category"))
	}
	if !ev.UpdatedAt.IsZero() && h.metrics != nil {
		h.metrics.RecordLatency("snapshot_lag", time.Since(ev.UpdatedAt).Seconds())
	}
	if err := h.svc.Invalidate(ctx, ev.Selector()); err != nil {
		h.recordError("snapshot_invalidate")
		return err
	}
	h.l.Debug("snapshot applied", logger.String("selector", ev.Selector().String()))
	return nil
}

func (h *SnapshotHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
