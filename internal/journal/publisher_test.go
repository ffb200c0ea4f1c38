package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

type captureBus struct {
	mu     sync.Mutex
	topics []string
	fail   bool
}

func (c *captureBus) Publish(ctx context.Context, topic, key string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broker unavailable")
	}
	c.topics = append(c.topics, topic)
	return nil
}

func (c *captureBus) Subscribe(topic string, h bus.Handler) {}
func (c *captureBus) Run(ctx context.Context) error         { <-ctx.Done(); return ctx.Err() }
func (c *captureBus) Close()                                {}

func (c *captureBus) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics)
}

func TestPublisher_DrainsOutboxInOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	b := &captureBus{}

	require.NoError(t, store.Enqueue(ctx, "evt-1", event.TopicExecutedOrders, "a", map[string]int{"n": 1}))
	require.NoError(t, store.Enqueue(ctx, "evt-2", event.TopicExecutedOrders, "b", map[string]int{"n": 2}))

	p := NewPublisher(store, b, time.Hour, zap.NewNop())
	p.drain(ctx)

	assert.Equal(t, 2, b.count())

	pending, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "drained events should be marked published")
}

func TestPublisher_RetriesOnBrokerFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	b := &captureBus{fail: true}

	require.NoError(t, store.Enqueue(ctx, "evt-1", event.TopicExecutedOrders, "a", map[string]int{"n": 1}))

	p := NewPublisher(store, b, time.Hour, zap.NewNop())
	p.drain(ctx)

	pending, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "failed publish leaves the event queued")

	// Broker recovers; the next drain delivers it.
	b.mu.Lock()
	b.fail = false
	b.mu.Unlock()
	p.drain(ctx)

	pending, err = store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, b.count())
}
