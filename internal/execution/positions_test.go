package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

func newTestPositions(t *testing.T) *PositionTracker {
	t.Helper()
	store := cache.NewMemoryStore(time.Minute)
	return NewPositionTracker(store, time.Second, time.Minute, zap.NewNop())
}

func TestApplyFill_OpensLong(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 0.5, 50000, 49000, 52000)

	pos, ok := tr.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, event.PositionLong, pos.Side)
	assert.Equal(t, 0.5, pos.Quantity)
	assert.Equal(t, 50000.0, pos.EntryPrice)
	assert.Equal(t, 49000.0, pos.StopLoss)
}

func TestApplyFill_OpensShortOnSell(t *testing.T) {
	tr := newTestPositions(t)
	tr.ApplyFill(context.Background(), "ETHUSDT", event.SideSell, 2, 3000, 3100, 2800)

	pos, ok := tr.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, event.PositionShort, pos.Side)
}

func TestApplyFill_IncreaseAveragesEntry(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 50000, 0, 0)
	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 52000, 0, 0)

	pos, ok := tr.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 2.0, pos.Quantity)
	assert.InDelta(t, 51000.0, pos.EntryPrice, 1e-9, "entry should be the weighted average")
}

func TestApplyFill_CloseRealizesPnl(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	// Long 1 @ 50000, closed @ 50100 -> +100 realized.
	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 50000, 0, 0)
	tr.ApplyFill(ctx, "BTCUSDT", event.SideSell, 1, 50100, 0, 0)

	_, ok := tr.Get("BTCUSDT")
	assert.False(t, ok, "fully closed position should be removed")
	assert.InDelta(t, 100.0, tr.TotalRealized(), 1e-9)
}

func TestApplyFill_ShortPnlIsInverted(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	// Short 1 @ 50000, covered @ 49900 -> +100 realized.
	tr.ApplyFill(ctx, "BTCUSDT", event.SideSell, 1, 50000, 0, 0)
	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 49900, 0, 0)
	assert.InDelta(t, 100.0, tr.TotalRealized(), 1e-9)
}

func TestApplyFill_PartialCloseKeepsRemainder(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 2, 50000, 0, 0)
	tr.ApplyFill(ctx, "BTCUSDT", event.SideSell, 0.5, 51000, 0, 0)

	pos, ok := tr.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 1.5, pos.Quantity)
	assert.InDelta(t, 500.0, tr.TotalRealized(), 1e-9)
}

func TestApplyFill_OverfillClampsAndNeverFlips(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 50000, 0, 0)
	// Opposite fill larger than the position closes it, no short opens.
	tr.ApplyFill(ctx, "BTCUSDT", event.SideSell, 3, 51000, 0, 0)

	_, ok := tr.Get("BTCUSDT")
	assert.False(t, ok, "position should close, not flip")
	assert.InDelta(t, 1000.0, tr.TotalRealized(), 1e-9, "only the held quantity realizes PnL")
}

func TestMarkPrice_OnlyMovesUnrealized(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 50000, 0, 0)
	tr.MarkPrice("BTCUSDT", 50500)

	pos, _ := tr.Get("BTCUSDT")
	assert.InDelta(t, 500.0, pos.UnrealizedPnl, 1e-9)
	assert.Equal(t, 1.0, pos.Quantity)
	assert.Zero(t, tr.TotalRealized(), "marking must not realize PnL")
	assert.InDelta(t, 500.0, tr.TotalUnrealized(), 1e-9)

	// Unknown symbols and bad prices are ignored.
	tr.MarkPrice("NOPE", 1)
	tr.MarkPrice("BTCUSDT", 0)
	pos, _ = tr.Get("BTCUSDT")
	assert.Equal(t, 50500.0, pos.CurrentPrice)
}

func TestApplyFill_IgnoresInvalidInput(t *testing.T) {
	tr := newTestPositions(t)
	ctx := context.Background()

	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 0, 50000, 0, 0)
	tr.ApplyFill(ctx, "BTCUSDT", event.SideBuy, 1, 0, 0, 0)
	assert.Empty(t, tr.Open())
}
