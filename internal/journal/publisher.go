package journal

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
)

const publishBatchSize = 100

// Publisher drains the outbox: every interval it reads unpublished
// events and republishes them on the bus. Combined with consumer-side
// dedup this gives at-least-once delivery that survives restarts.
type Publisher struct {
	store    *Store
	bus      bus.Bus
	interval time.Duration
	logger   *zap.Logger
}

// NewPublisher creates an outbox publisher.
func NewPublisher(store *Store, b bus.Bus, interval time.Duration, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:    store,
		bus:      b,
		interval: interval,
		logger:   logger,
	}
}

// Run drains the outbox until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	events, err := p.store.ListUnpublished(ctx, publishBatchSize)
	if err != nil {
		p.logger.Error("failed to list unpublished events", zap.Error(err))
		return
	}

	for _, e := range events {
		var payload json.RawMessage = []byte(e.PayloadJSON)
		if err := p.bus.Publish(ctx, e.Topic, e.Key, payload); err != nil {
			// Leave it unpublished; the next tick retries.
			p.logger.Warn("failed to publish outbox event",
				zap.String("event_id", e.EventID),
				zap.String("topic", e.Topic),
				zap.Error(err),
			)
			return
		}
		if err := p.store.MarkPublished(ctx, e.EventID, time.Now().UnixMilli()); err != nil {
			p.logger.Error("failed to mark event published",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
			return
		}
	}

	if len(events) > 0 {
		p.logger.Debug("outbox drained", zap.Int("count", len(events)))
	}
}
