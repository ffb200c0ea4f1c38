package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const subscriberBuffer = 1024

type delivery struct {
	topic   string
	key     string
	payload []byte
}

type subscriber struct {
	handler Handler
	ch      chan delivery
}

// MemoryBus is the in-process bus. Delivery is at-most-once: messages
// published while no subscriber is registered are dropped, and a full
// subscriber buffer drops the message rather than blocking the
// publisher. Each subscriber receives messages in publish order.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	logger      *zap.Logger
	closed      atomic.Bool
	dropCount   int64
	wg          sync.WaitGroup
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[string][]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers a handler for a topic.
func (b *MemoryBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], &subscriber{
		handler: h,
		ch:      make(chan delivery, subscriberBuffer),
	})
}

// Publish delivers v to every current subscriber of topic.
func (b *MemoryBus) Publish(ctx context.Context, topic, key string, v any) error {
	if b.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- delivery{topic: topic, key: key, payload: data}:
		default:
			// Subscriber is not keeping up; at-most-once allows a drop.
			dropped := atomic.AddInt64(&b.dropCount, 1)
			b.logger.Warn("dropped message for slow subscriber",
				zap.String("topic", topic),
				zap.String("key", key),
				zap.Int64("total_dropped", dropped),
			)
		}
	}
	return nil
}

// Run dispatches messages to handlers until ctx is canceled. One
// goroutine per subscriber preserves per-subscriber ordering.
func (b *MemoryBus) Run(ctx context.Context) error {
	b.mu.RLock()
	for topic, subs := range b.subscribers {
		for _, sub := range subs {
			b.wg.Add(1)
			go b.dispatch(ctx, topic, sub)
		}
	}
	b.mu.RUnlock()

	<-ctx.Done()
	b.wg.Wait()
	return ctx.Err()
}

func (b *MemoryBus) dispatch(ctx context.Context, topic string, sub *subscriber) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-sub.ch:
			b.invoke(ctx, sub.handler, d)
		}
	}
}

// invoke shields the dispatch loop from handler errors and panics.
func (b *MemoryBus) invoke(ctx context.Context, h Handler, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("topic", d.topic),
				zap.Any("panic", r),
			)
		}
	}()

	if err := h(ctx, d.topic, d.key, d.payload); err != nil {
		b.logger.Error("handler failed",
			zap.String("topic", d.topic),
			zap.String("key", d.key),
			zap.Error(err),
		)
	}
}

// Close marks the bus closed for publishing.
func (b *MemoryBus) Close() {
	b.closed.Store(true)
}
