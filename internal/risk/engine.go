// Package risk gates trade signals against portfolio limits and runs
// the continuous drawdown / kill-switch monitoring loop.
package risk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// Stable rejection reasons. These are part of the risk-alert contract;
// downstream consumers match on them.
const (
	ReasonKillSwitch   = "kill switch active"
	ReasonDrawdown     = "max drawdown exceeded"
	ReasonNoStopLoss   = "signal missing stop loss"
	ReasonNoSnapshot   = "portfolio snapshot unavailable"
	ReasonMaxPositions = "max open positions reached"
	ReasonRiskReward   = "risk/reward ratio below minimum"
	ReasonZeroSize     = "computed position size is zero"
)

// Config holds the risk limits.
type Config struct {
	MaxRiskPct       float64
	MaxDrawdownPct   float64
	MinRiskReward    float64
	MaxOpenPositions int
	MinOrderSize     float64
	MaxOrderSize     float64
	QtyPrecision     int
}

// SnapshotSource supplies the latest portfolio snapshot. The bool is
// false when no snapshot is available, which fails evaluation closed.
type SnapshotSource interface {
	Latest(ctx context.Context) (event.PortfolioSnapshot, bool)
}

// Result is the outcome of evaluating one signal. A rejection carries
// a stable reason; an approval carries the sized order.
type Result struct {
	Approved bool
	Order    *event.Order
	Reason   string
}

// Engine evaluates trade signals.
type Engine struct {
	cfg       Config
	kill      *KillSwitch
	drawdown  *DrawdownMonitor
	snapshots SnapshotSource
}

// NewEngine creates a risk engine over the shared kill switch and
// drawdown monitor.
func NewEngine(cfg Config, kill *KillSwitch, drawdown *DrawdownMonitor, snapshots SnapshotSource) *Engine {
	return &Engine{
		cfg:       cfg,
		kill:      kill,
		drawdown:  drawdown,
		snapshots: snapshots,
	}
}

// EvaluateSignal applies the risk checks in fixed order, short-
// circuiting on the first failure so rejection reasons are
// deterministic. The check order must not be changed.
func (e *Engine) EvaluateSignal(ctx context.Context, sig event.TradeSignal) Result {
	// 1. Kill switch already active.
	if active, _ := e.kill.Active(); active {
		return Result{Reason: ReasonKillSwitch}
	}

	// 2. Drawdown breach trips the switch and rejects.
	dd := e.drawdown.Drawdown()
	if e.kill.CheckConditions(dd, e.cfg.MaxDrawdownPct, ReasonDrawdown) {
		return Result{Reason: ReasonDrawdown}
	}
	if e.cfg.MaxDrawdownPct > 0 && dd >= e.cfg.MaxDrawdownPct {
		return Result{Reason: ReasonDrawdown}
	}

	// 3. A signal without a stop loss is rejected, never defaulted.
	if sig.StopLoss <= 0 {
		return Result{Reason: ReasonNoStopLoss}
	}

	// 4. No snapshot means unknown state; fail closed.
	snapshot, ok := e.snapshots.Latest(ctx)
	if !ok {
		return Result{Reason: ReasonNoSnapshot}
	}

	// 5. Position count, for opening actions only.
	if isOpeningAction(sig.Action) && e.cfg.MaxOpenPositions > 0 &&
		len(snapshot.Positions) >= e.cfg.MaxOpenPositions {
		return Result{Reason: ReasonMaxPositions}
	}

	// 6. Risk/reward, when a take profit is present.
	if sig.TakeProfit > 0 {
		risk := abs(sig.Price - sig.StopLoss)
		if risk <= 0 {
			return Result{Reason: ReasonRiskReward}
		}
		reward := abs(sig.TakeProfit - sig.Price)
		if reward/risk < e.cfg.MinRiskReward {
			return Result{Reason: ReasonRiskReward}
		}
	}

	// 7. Position sizing.
	qty := PositionSize(SizingParams{
		Equity:       snapshot.TotalEquity,
		EntryPrice:   sig.Price,
		StopLoss:     sig.StopLoss,
		RiskPct:      sig.RiskPct,
		MaxRiskPct:   e.cfg.MaxRiskPct,
		MinOrderSize: e.cfg.MinOrderSize,
		MaxOrderSize: e.cfg.MaxOrderSize,
		Precision:    e.cfg.QtyPrecision,
	})
	if qty <= 0 {
		return Result{Reason: ReasonZeroSize}
	}

	order := buildOrder(sig, qty)
	return Result{Approved: true, Order: &order}
}

func buildOrder(sig event.TradeSignal, qty float64) event.Order {
	now := time.Now().UnixMilli()

	orderType := event.OrderTypeMarket
	if sig.Price > 0 {
		orderType = event.OrderTypeLimit
	}

	return event.Order{
		ID:                uuid.New().String(),
		Symbol:            sig.Symbol,
		Side:              sideForAction(sig.Action),
		Type:              orderType,
		Quantity:          qty,
		Price:             sig.Price,
		Status:            event.StatusNew,
		StopLoss:          sig.StopLoss,
		TakeProfit:        sig.TakeProfit,
		CorrelationID:     sig.CorrelationID,
		CreatedUnixMillis: now,
		UpdatedUnixMillis: now,
	}
}

func sideForAction(a event.SignalAction) event.OrderSide {
	switch a {
	case event.ActionSell, event.ActionCloseLong:
		return event.SideSell
	default:
		// Buy and CloseShort both buy.
		return event.SideBuy
	}
}

func isOpeningAction(a event.SignalAction) bool {
	return a == event.ActionBuy || a == event.ActionSell
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
