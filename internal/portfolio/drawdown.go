package portfolio

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

// DrawdownMirror feeds the local drawdown cache from the risk
// monitor's bus updates. The builder reads the drawdown from its own
// cache; when the monitor runs in another process this mirror is what
// keeps that read from always seeing zero.
type DrawdownMirror struct {
	cache        cache.Store
	cacheTimeout time.Duration
	ttl          time.Duration
	logger       *zap.Logger
}

// NewDrawdownMirror creates a mirror writing drawdown values with the
// given TTL.
func NewDrawdownMirror(store cache.Store, cacheTimeout, ttl time.Duration, logger *zap.Logger) *DrawdownMirror {
	return &DrawdownMirror{
		cache:        store,
		cacheTimeout: cacheTimeout,
		ttl:          ttl,
		logger:       logger,
	}
}

// Register subscribes the mirror to drawdown updates.
func (m *DrawdownMirror) Register(b bus.Bus) {
	b.Subscribe(event.TopicDrawdown, m.handleUpdate)
}

func (m *DrawdownMirror) handleUpdate(ctx context.Context, _ string, _ string, payload []byte) error {
	var upd event.DrawdownUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		m.logger.Warn("malformed drawdown update, skipping", zap.Error(err))
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, m.cacheTimeout)
	defer cancel()

	v := strconv.FormatFloat(upd.DrawdownPct, 'f', 4, 64)
	if err := m.cache.Set(cctx, cache.DrawdownKey, v, m.ttl); err != nil {
		m.logger.Warn("failed to cache drawdown", zap.Error(err))
	}
	return nil
}
