package risk

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
)

// Monitor is the continuous portfolio loop: it feeds equity into the
// drawdown monitor and asks the kill switch to check trip conditions,
// independent of any single signal.
type Monitor struct {
	interval       time.Duration
	maxDrawdownPct float64
	cacheTimeout   time.Duration

	snapshots SnapshotSource
	drawdown  *DrawdownMonitor
	kill      *KillSwitch
	cache     cache.Store
	bus       bus.Bus
	logger    *zap.Logger
}

// NewMonitor creates the portfolio monitoring loop.
func NewMonitor(interval time.Duration, maxDrawdownPct float64, cacheTimeout time.Duration,
	snapshots SnapshotSource, drawdown *DrawdownMonitor, kill *KillSwitch,
	store cache.Store, b bus.Bus, logger *zap.Logger) *Monitor {
	return &Monitor{
		interval:       interval,
		maxDrawdownPct: maxDrawdownPct,
		cacheTimeout:   cacheTimeout,
		snapshots:      snapshots,
		drawdown:       drawdown,
		kill:           kill,
		cache:          store,
		bus:            b,
		logger:         logger,
	}
}

// Run checks portfolio health on a fixed interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	snapshot, ok := m.snapshots.Latest(ctx)
	if !ok {
		m.logger.Warn("portfolio snapshot unavailable, skipping drawdown check")
		return
	}

	m.drawdown.Update(snapshot.TotalEquity)
	dd := m.drawdown.Drawdown()
	observability.DrawdownPct.Set(dd)

	m.writeDrawdown(ctx, dd)
	m.publishDrawdown(ctx, dd)

	if m.kill.CheckConditions(dd, m.maxDrawdownPct, ReasonDrawdown) {
		m.logger.Error("kill switch tripped by drawdown",
			zap.Float64("drawdown_pct", dd),
			zap.Float64("max_drawdown_pct", m.maxDrawdownPct),
			zap.Float64("peak_equity", m.drawdown.Peak()),
			zap.Float64("equity", snapshot.TotalEquity),
		)

		ks := event.KillSwitchEvent{
			EventID:      uuid.New().String(),
			Active:       true,
			Reason:       ReasonDrawdown,
			DrawdownPct:  dd,
			TsUnixMillis: time.Now().UnixMilli(),
		}
		if err := m.bus.Publish(ctx, event.TopicKillSwitch, "kill-switch", ks); err != nil {
			m.logger.Error("failed to publish kill-switch event", zap.Error(err))
		}
	}
}

// writeDrawdown shares the current drawdown with the snapshot builder
// through the cache, keeping the components decoupled.
func (m *Monitor) writeDrawdown(ctx context.Context, dd float64) {
	cctx, cancel := context.WithTimeout(ctx, m.cacheTimeout)
	defer cancel()

	v := strconv.FormatFloat(dd, 'f', 4, 64)
	if err := m.cache.Set(cctx, cache.DrawdownKey, v, 2*m.interval); err != nil {
		m.logger.Warn("failed to cache drawdown", zap.Error(err))
	}
}

// publishDrawdown shares the drawdown with other processes. The
// snapshot builder runs next to the executor and mirrors this into
// its own cache.
func (m *Monitor) publishDrawdown(ctx context.Context, dd float64) {
	upd := event.DrawdownUpdate{
		EventID:      uuid.New().String(),
		DrawdownPct:  dd,
		PeakEquity:   m.drawdown.Peak(),
		TsUnixMillis: time.Now().UnixMilli(),
	}
	if err := m.bus.Publish(ctx, event.TopicDrawdown, "drawdown", upd); err != nil {
		m.logger.Warn("failed to publish drawdown update", zap.Error(err))
	}
}
