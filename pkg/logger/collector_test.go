package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches []LogBatch
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.(LogBatch))
	return nil
}

func TestCollectorAggregatesDuplicateErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "logs",
		Service:        "demandcast",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("fit failed", String("model", "ses"), Error(errors.New("boom")))
	}
	l.Warn("ignored without IncludeWarn")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(pub.batches))
	}
	b := pub.batches[0]
	if pub.topic != "logs" || b.Service != "demandcast" {
		t.Fatalf("unexpected batch routing %q %q", pub.topic, b.Service)
	}
	if len(b.Entries) != 1 || b.Entries[0].Count != 3 {
		t.Fatalf("expected one entry seen 3 times, got %+v", b.Entries)
	}
}
