package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// recordingBus captures publishes for assertions.
type recordingBus struct {
	mu       sync.Mutex
	messages []recorded
}

type recorded struct {
	topic   string
	key     string
	payload []byte
}

func (r *recordingBus) Publish(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.messages = append(r.messages, recorded{topic: topic, key: key, payload: data})
	r.mu.Unlock()
	return nil
}

func (r *recordingBus) Subscribe(topic string, h bus.Handler) {}
func (r *recordingBus) Run(ctx context.Context) error         { <-ctx.Done(); return ctx.Err() }
func (r *recordingBus) Close()                                {}

func (r *recordingBus) byTopic(topic string) []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recorded
	for _, m := range r.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type stubStream struct{}

func (s *stubStream) Name() string { return "stub-stream" }
func (s *stubStream) Stream(ctx context.Context, symbols []string, out chan<- event.Tick) error {
	<-ctx.Done()
	return ctx.Err()
}

type stubPoll struct{}

func (s *stubPoll) Name() string { return "stub-poll" }
func (s *stubPoll) Poll(ctx context.Context, symbols []string) ([]event.Tick, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *recordingBus, cache.Store) {
	t.Helper()
	b := &recordingBus{}
	store := cache.NewMemoryStore(time.Minute)
	svc := NewService(Config{
		Symbols:          []string{"BTCUSDT"},
		FailureThreshold: 3,
		PollInterval:     10 * time.Millisecond,
		PriceTTL:         time.Minute,
		CacheTimeout:     time.Second,
	}, &stubStream{}, &stubPoll{}, b, store, zap.NewNop())
	return svc, b, store
}

func TestCascade_DemotesAtThresholds(t *testing.T) {
	svc, b, _ := newTestService(t)
	ctx := context.Background()

	assert.Equal(t, ModePrimary, svc.Mode())

	svc.recordFailure(ctx)
	svc.recordFailure(ctx)
	assert.Equal(t, ModePrimary, svc.Mode(), "below threshold should stay primary")

	svc.recordFailure(ctx)
	assert.Equal(t, ModeFallback, svc.Mode(), "threshold failures should demote to fallback")

	svc.recordFailure(ctx)
	svc.recordFailure(ctx)
	assert.Equal(t, ModeFallback, svc.Mode())

	svc.recordFailure(ctx)
	assert.Equal(t, ModeDegraded, svc.Mode(), "double threshold should demote to degraded")

	// One health event per transition, not per failure.
	health := b.byTopic(event.TopicSystemHealth)
	require.Len(t, health, 2)
	for _, h := range health {
		var he event.HealthEvent
		require.NoError(t, json.Unmarshal(h.payload, &he))
		assert.Equal(t, event.HealthDegraded, he.Status)
		assert.Equal(t, "marketdata", he.Component)
	}
}

func TestCascade_DegradedIsStickyOnFailure(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		svc.recordFailure(ctx)
	}
	assert.Equal(t, ModeDegraded, svc.Mode())
}

func TestHandleTick_RecoversToPrimary(t *testing.T) {
	svc, b, store := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		svc.recordFailure(ctx)
	}
	require.Equal(t, ModeDegraded, svc.Mode())

	tick := event.Tick{Symbol: "BTCUSDT", Price: 50000, TsUnixMillis: time.Now().UnixMilli()}
	svc.handleTick(ctx, tick, "stub-poll")

	assert.Equal(t, ModePrimary, svc.Mode(), "any good tick reverts selection to primary")
	assert.Zero(t, svc.Failures(), "a good tick resets the failure counter")

	// The tick went out on the bus and into the cache.
	ticks := b.byTopic(event.TopicMarketTicks)
	require.Len(t, ticks, 1)
	assert.Equal(t, "BTCUSDT", ticks[0].key)

	price, ok, err := store.Get(ctx, cache.PriceKey("BTCUSDT"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "50000", price)

	// Recovery publishes a single OK health event.
	var okEvents int
	for _, h := range b.byTopic(event.TopicSystemHealth) {
		var he event.HealthEvent
		require.NoError(t, json.Unmarshal(h.payload, &he))
		if he.Status == event.HealthOK {
			okEvents++
		}
	}
	assert.Equal(t, 1, okEvents)
}

func TestPublishStale_RepublishesWithoutCacheRefresh(t *testing.T) {
	svc, b, store := newTestService(t)
	ctx := context.Background()

	tick := event.Tick{Symbol: "BTCUSDT", Price: 50000, TsUnixMillis: time.Now().UnixMilli()}
	svc.handleTick(ctx, tick, "stub-stream")

	// Simulate the cached price expiring while the feed is down.
	require.NoError(t, store.Delete(ctx, cache.PriceKey("BTCUSDT")))

	svc.publishStale(ctx)

	ticks := b.byTopic(event.TopicMarketTicks)
	require.Len(t, ticks, 2, "stale republish should emit the last good tick again")

	var stale event.Tick
	require.NoError(t, json.Unmarshal(ticks[1].payload, &stale))
	assert.Equal(t, 50000.0, stale.Price)

	_, ok, err := store.Get(ctx, cache.PriceKey("BTCUSDT"))
	require.NoError(t, err)
	assert.False(t, ok, "stale republish must not refresh the cache TTL")
}
