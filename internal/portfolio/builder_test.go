package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/execution"
	"github.com/Dev0031/QuantTrader-sub000/internal/journal"
)

type stubBalance struct {
	balance float64
	err     error
}

func (s *stubBalance) Balance(ctx context.Context) (float64, error) {
	return s.balance, s.err
}

type sinkBus struct {
	mu   sync.Mutex
	snap []event.PortfolioSnapshot
}

func (s *sinkBus) Publish(ctx context.Context, topic, key string, v any) error {
	if topic != event.TopicPortfolio {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var snap event.PortfolioSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	s.snap = append(s.snap, snap)
	s.mu.Unlock()
	return nil
}

func (s *sinkBus) Subscribe(topic string, h bus.Handler) {}
func (s *sinkBus) Run(ctx context.Context) error         { <-ctx.Done(); return ctx.Err() }
func (s *sinkBus) Close()                                {}

func newTestBuilder(t *testing.T, balances BalanceSource) (*Builder, *execution.PositionTracker, cache.Store, *sinkBus) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "builder_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := journal.Open(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	cacheStore := cache.NewMemoryStore(time.Minute)
	positions := execution.NewPositionTracker(cacheStore, time.Second, time.Minute, logger)
	b := &sinkBus{}

	builder := NewBuilder(Config{
		Interval:     time.Hour,
		SnapshotTTL:  time.Minute,
		CacheTimeout: time.Second,
	}, positions, balances, cacheStore, store, b, logger)

	return builder, positions, cacheStore, b
}

func TestRebuild_SnapshotMath(t *testing.T) {
	builder, positions, cacheStore, _ := newTestBuilder(t, &stubBalance{balance: 10000})
	ctx := context.Background()

	// Long 1 @ 50000, market now at 50500 -> +500 unrealized.
	positions.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 50000, 0, 0)
	require.NoError(t, cacheStore.Set(ctx, cache.PriceKey("BTCUSDT"), "50500", time.Minute))
	require.NoError(t, cacheStore.Set(ctx, cache.DrawdownKey, strconv.FormatFloat(3.5, 'f', 4, 64), time.Minute))

	snap := builder.Rebuild(ctx)

	assert.Equal(t, 10000.0, snap.AvailableBalance)
	assert.InDelta(t, 500.0, snap.TotalUnrealizedPnl, 1e-9, "marking should pick up the cached price")
	assert.InDelta(t, 10500.0, snap.TotalEquity, 1e-9)
	assert.InDelta(t, 3.5, snap.DrawdownPct, 1e-9)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 50500.0, snap.Positions[0].CurrentPrice)
}

func TestRebuild_WritesCacheAndPublishes(t *testing.T) {
	builder, _, cacheStore, b := newTestBuilder(t, &stubBalance{balance: 10000})
	ctx := context.Background()

	builder.Rebuild(ctx)

	raw, ok, err := cacheStore.Get(ctx, cache.SnapshotKey)
	require.NoError(t, err)
	require.True(t, ok, "snapshot should land in the cache")

	var snap event.PortfolioSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	assert.Equal(t, 10000.0, snap.TotalEquity)

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.snap, 1, "snapshot should also go out on the bus")
}

func TestRebuild_BalanceFailureUsesLastKnown(t *testing.T) {
	balances := &stubBalance{balance: 10000}
	builder, _, _, _ := newTestBuilder(t, balances)
	ctx := context.Background()

	builder.Rebuild(ctx)

	balances.err = errors.New("exchange unreachable")
	snap := builder.Rebuild(ctx)
	assert.Equal(t, 10000.0, snap.AvailableBalance, "a failed balance read should fall back to the last known value")
}

func TestRebuild_MissingDrawdownReadsZero(t *testing.T) {
	builder, _, _, _ := newTestBuilder(t, &stubBalance{balance: 10000})
	snap := builder.Rebuild(context.Background())
	assert.Zero(t, snap.DrawdownPct)
}
