// Package portfolio periodically rebuilds the account snapshot that
// risk checks read. Snapshots are produced on a timer, not per tick,
// so a burst of market data cannot amplify into snapshot churn.
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
	"github.com/Dev0031/QuantTrader-sub000/internal/execution"
	"github.com/Dev0031/QuantTrader-sub000/internal/journal"
)

// BalanceSource reports the free quote balance of the active account.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// Config tunes the snapshot cadence and cache lifetimes.
type Config struct {
	Interval     time.Duration
	SnapshotTTL  time.Duration
	CacheTimeout time.Duration
}

// Builder assembles portfolio snapshots from position state, the
// latest cached prices, and the account balance.
type Builder struct {
	cfg       Config
	positions *execution.PositionTracker
	balances  BalanceSource
	cache     cache.Store
	journal   *journal.Store
	bus       bus.Bus
	logger    *zap.Logger

	lastBalance float64
}

// NewBuilder creates a snapshot builder.
func NewBuilder(cfg Config, positions *execution.PositionTracker, balances BalanceSource, store cache.Store, j *journal.Store, b bus.Bus, logger *zap.Logger) *Builder {
	return &Builder{
		cfg:       cfg,
		positions: positions,
		balances:  balances,
		cache:     store,
		journal:   j,
		bus:       b,
		logger:    logger,
	}
}

// Run rebuilds the snapshot on the configured interval until ctx is
// canceled. The first snapshot is built immediately so the risk engine
// is not blind for a full interval after startup.
func (b *Builder) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.logger.Info("portfolio builder started", zap.Duration("interval", b.cfg.Interval))
	b.rebuild(ctx)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("portfolio builder stopped")
			return
		case <-ticker.C:
			b.rebuild(ctx)
		}
	}
}

// Rebuild builds and stores one snapshot; exposed for on-demand use.
func (b *Builder) Rebuild(ctx context.Context) event.PortfolioSnapshot {
	return b.rebuild(ctx)
}

func (b *Builder) rebuild(ctx context.Context) event.PortfolioSnapshot {
	b.markOpenPositions(ctx)

	balance, err := b.balances.Balance(ctx)
	if err != nil {
		// A snapshot with a stale balance beats no snapshot: risk
		// checks fail closed when the snapshot is missing entirely.
		b.logger.Warn("failed to read balance, using last known", zap.Error(err))
		balance = b.lastBalance
	} else {
		b.lastBalance = balance
	}

	positions := b.positions.Open()
	unrealized := b.positions.TotalUnrealized()

	snap := event.PortfolioSnapshot{
		TotalEquity:        balance + unrealized,
		AvailableBalance:   balance,
		TotalUnrealizedPnl: unrealized,
		TotalRealizedPnl:   b.positions.TotalRealized(),
		DrawdownPct:        b.readDrawdown(ctx),
		Positions:          positions,
		TsUnixMillis:       time.Now().UnixMilli(),
	}

	b.store(ctx, snap)
	return snap
}

// markOpenPositions refreshes unrealized PnL from the latest cached
// prices before the snapshot is assembled.
func (b *Builder) markOpenPositions(ctx context.Context) {
	for _, pos := range b.positions.Open() {
		cctx, cancel := context.WithTimeout(ctx, b.cfg.CacheTimeout)
		raw, ok, err := b.cache.Get(cctx, cache.PriceKey(pos.Symbol))
		cancel()
		if err != nil || !ok {
			continue
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			b.logger.Warn("invalid cached price",
				zap.String("symbol", pos.Symbol),
				zap.String("raw", raw),
			)
			continue
		}
		b.positions.MarkPrice(pos.Symbol, price)
	}
}

// readDrawdown picks up the drawdown the risk monitor computed. The
// monitor owns peak tracking; the builder only reports its result.
func (b *Builder) readDrawdown(ctx context.Context) float64 {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CacheTimeout)
	defer cancel()

	raw, ok, err := b.cache.Get(cctx, cache.DrawdownKey)
	if err != nil || !ok {
		return 0
	}
	dd, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return dd
}

func (b *Builder) store(ctx context.Context, snap event.PortfolioSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		b.logger.Error("failed to marshal snapshot", zap.Error(err))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, b.cfg.CacheTimeout)
	defer cancel()
	if err := b.cache.Set(cctx, cache.SnapshotKey, string(data), b.cfg.SnapshotTTL); err != nil {
		b.logger.Error("failed to cache snapshot", zap.Error(err))
	}

	if err := b.journal.SaveSnapshot(ctx, snap); err != nil {
		b.logger.Error("failed to journal snapshot", zap.Error(err))
	}

	// Consumers in other processes cannot see this cache; the bus copy
	// is how the risk engine sees the portfolio in a split deployment.
	if err := b.bus.Publish(ctx, event.TopicPortfolio, "portfolio", snap); err != nil {
		b.logger.Error("failed to publish snapshot", zap.Error(err))
	}
}
