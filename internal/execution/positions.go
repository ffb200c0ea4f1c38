package execution

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// PositionTracker maintains at most one open position per symbol and
// the side-aware realized/unrealized PnL arithmetic.
type PositionTracker struct {
	mu            sync.RWMutex
	open          map[string]*event.Position
	totalRealized float64

	cache        cache.Store
	cacheTimeout time.Duration
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker(store cache.Store, cacheTimeout, cacheTTL time.Duration, logger *zap.Logger) *PositionTracker {
	return &PositionTracker{
		open:         make(map[string]*event.Position),
		cache:        store,
		cacheTimeout: cacheTimeout,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// ApplyFill applies a filled order to the position set: it opens or
// increases a position on a same-direction fill, and reduces or closes
// it on an opposite fill, realizing PnL side-aware.
func (t *PositionTracker) ApplyFill(ctx context.Context, symbol string, side event.OrderSide, qty, price, stopLoss, takeProfit float64) {
	if qty <= 0 || price <= 0 {
		return
	}

	t.mu.Lock()
	pos, ok := t.open[symbol]

	switch {
	case !ok:
		posSide := event.PositionLong
		if side == event.SideSell {
			posSide = event.PositionShort
		}
		pos = &event.Position{
			Symbol:           symbol,
			Side:             posSide,
			EntryPrice:       price,
			CurrentPrice:     price,
			Quantity:         qty,
			StopLoss:         stopLoss,
			TakeProfit:       takeProfit,
			OpenedUnixMillis: time.Now().UnixMilli(),
		}
		t.open[symbol] = pos

	case increasesPosition(pos.Side, side):
		newQty := pos.Quantity + qty
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*qty) / newQty
		pos.Quantity = newQty
		pos.CurrentPrice = price
		pos.UnrealizedPnl = unrealized(pos.Side, pos.EntryPrice, price, pos.Quantity)

	default:
		// Opposite-side fill reduces or fully closes; no flipping.
		closeQty := qty
		if closeQty > pos.Quantity {
			closeQty = pos.Quantity
		}

		realized := realizedPnl(pos.Side, pos.EntryPrice, price, closeQty)
		pos.RealizedPnl += realized
		t.totalRealized += realized
		pos.Quantity -= closeQty

		if pos.Quantity <= 0 {
			delete(t.open, symbol)
			t.mu.Unlock()
			t.logger.Info("position closed",
				zap.String("symbol", symbol),
				zap.Float64("realized_pnl", realized),
			)
			t.dropCache(ctx, symbol)
			return
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnl = unrealized(pos.Side, pos.EntryPrice, price, pos.Quantity)
	}

	snapshot := *pos
	t.mu.Unlock()
	t.mirror(ctx, snapshot)
}

// MarkPrice recomputes unrealized PnL against the latest price without
// touching realized PnL or quantity.
func (t *PositionTracker) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos, ok := t.open[symbol]; ok {
		pos.CurrentPrice = price
		pos.UnrealizedPnl = unrealized(pos.Side, pos.EntryPrice, price, pos.Quantity)
	}
}

// Get returns the open position for a symbol.
func (t *PositionTracker) Get(symbol string) (event.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if pos, ok := t.open[symbol]; ok {
		return *pos, true
	}
	return event.Position{}, false
}

// Open returns a copy of all open positions.
func (t *PositionTracker) Open() []event.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]event.Position, 0, len(t.open))
	for _, pos := range t.open {
		out = append(out, *pos)
	}
	return out
}

// TotalUnrealized sums unrealized PnL over open positions.
func (t *PositionTracker) TotalUnrealized() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0.0
	for _, pos := range t.open {
		total += pos.UnrealizedPnl
	}
	return total
}

// TotalRealized returns realized PnL accumulated across all closes.
func (t *PositionTracker) TotalRealized() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalRealized
}

func (t *PositionTracker) mirror(ctx context.Context, pos event.Position) {
	data, err := json.Marshal(pos)
	if err != nil {
		t.logger.Error("failed to marshal position", zap.Error(err))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, t.cacheTimeout)
	defer cancel()
	if err := t.cache.Set(cctx, cache.PositionKey(pos.Symbol), string(data), t.cacheTTL); err != nil {
		t.logger.Warn("failed to mirror position to cache", zap.Error(err))
	}
}

func (t *PositionTracker) dropCache(ctx context.Context, symbol string) {
	cctx, cancel := context.WithTimeout(ctx, t.cacheTimeout)
	defer cancel()
	if err := t.cache.Delete(cctx, cache.PositionKey(symbol)); err != nil {
		t.logger.Warn("failed to drop position cache entry", zap.Error(err))
	}
}

func increasesPosition(posSide event.PositionSide, orderSide event.OrderSide) bool {
	return (posSide == event.PositionLong && orderSide == event.SideBuy) ||
		(posSide == event.PositionShort && orderSide == event.SideSell)
}

// realizedPnl is side-aware: Long profits when exit > entry, Short
// when exit < entry.
func realizedPnl(side event.PositionSide, entry, exit, qty float64) float64 {
	if side == event.PositionLong {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}

func unrealized(side event.PositionSide, entry, current, qty float64) float64 {
	return realizedPnl(side, entry, current, qty)
}
