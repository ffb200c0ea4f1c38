package execution

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// TickMirror keeps the local price cache current from the tick topic.
// The ingestion service writes its own cache directly; a process that
// only consumes ticks needs this mirror so paper fills and position
// marking see fresh prices.
type TickMirror struct {
	cache        cache.Store
	cacheTimeout time.Duration
	priceTTL     time.Duration
	logger       *zap.Logger
}

// NewTickMirror creates a tick-to-cache mirror.
func NewTickMirror(store cache.Store, cacheTimeout, priceTTL time.Duration, logger *zap.Logger) *TickMirror {
	return &TickMirror{
		cache:        store,
		cacheTimeout: cacheTimeout,
		priceTTL:     priceTTL,
		logger:       logger,
	}
}

// Register subscribes the mirror to the market-ticks topic.
func (t *TickMirror) Register(b bus.Bus) {
	b.Subscribe(event.TopicMarketTicks, t.handleTick)
}

func (t *TickMirror) handleTick(ctx context.Context, _ string, key string, payload []byte) error {
	var tick event.Tick
	if err := json.Unmarshal(payload, &tick); err != nil {
		t.logger.Error("malformed tick, skipping", zap.String("key", key), zap.Error(err))
		return nil
	}
	if tick.Symbol == "" || tick.Price <= 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, t.cacheTimeout)
	defer cancel()

	price := strconv.FormatFloat(tick.Price, 'f', -1, 64)
	if err := t.cache.Set(cctx, cache.PriceKey(tick.Symbol), price, t.priceTTL); err != nil {
		t.logger.Warn("failed to cache price", zap.String("symbol", tick.Symbol), zap.Error(err))
	}
	if err := t.cache.Set(cctx, cache.TickKey(tick.Symbol), string(payload), t.priceTTL); err != nil {
		t.logger.Warn("failed to cache tick", zap.String("symbol", tick.Symbol), zap.Error(err))
	}
	return nil
}
