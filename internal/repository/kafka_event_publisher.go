package repository

import (
	"context"
	"fmt"

	"DemandCast/internal/domain/models"
	domrepo "DemandCast/internal/domain/repository"
	applogger "DemandCast/pkg/logger"
)

// keyedPublisher is the part of pkg/kafka.Producer the publisher needs.
type keyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher writes forecast events keyed by selector so events of
// one series land on one partition in order.
type KafkaEventPublisher struct {
	producer keyedPublisher
	topic    string
	l        *applogger.Logger
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(p keyedPublisher, topic string, l *applogger.Logger) *KafkaEventPublisher {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaEventPublisher{producer: p, topic: topic, l: l}
}

func (p *KafkaEventPublisher) PublishForecast(ctx context.Context, r *models.ForecastResult) error {
	if r == nil {
		return nil
	}
	ev := models.NewForecastEvent(r)
	if err := p.producer.Publish(ctx, p.topic, []byte(r.Selector.String()), ev); err != nil {
		p.l.Warn("forecast event publish failed",
			applogger.String("run_id", r.RunID),
			applogger.String("topic", p.topic),
			applogger.Error(err),
		)
		return fmt.Errorf("publish forecast event: %w", err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }
