package execution

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

func TestTickMirror_CachesPriceAndTick(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	m := NewTickMirror(store, time.Second, time.Minute, zap.NewNop())
	ctx := context.Background()

	tick := event.Tick{Symbol: "BTCUSDT", Price: 50000.5, TsUnixMillis: time.Now().UnixMilli()}
	payload, err := json.Marshal(tick)
	require.NoError(t, err)

	require.NoError(t, m.handleTick(ctx, event.TopicMarketTicks, "BTCUSDT", payload))

	price, ok, err := store.Get(ctx, cache.PriceKey("BTCUSDT"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "50000.5", price)

	raw, ok, err := store.Get(ctx, cache.TickKey("BTCUSDT"))
	require.NoError(t, err)
	require.True(t, ok)

	var cached event.Tick
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, tick, cached)
}

func TestTickMirror_SkipsInvalid(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	m := NewTickMirror(store, time.Second, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.NoError(t, m.handleTick(ctx, event.TopicMarketTicks, "k", []byte("{bad")))

	zero, err := json.Marshal(event.Tick{Symbol: "BTCUSDT", Price: 0})
	require.NoError(t, err)
	assert.NoError(t, m.handleTick(ctx, event.TopicMarketTicks, "BTCUSDT", zero))

	_, ok, _ := store.Get(ctx, cache.PriceKey("BTCUSDT"))
	assert.False(t, ok, "invalid ticks must not pollute the cache")
}
