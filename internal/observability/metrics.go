package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors shared across components.
var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_ticks_total",
		Help: "Normalized ticks published, by symbol and provider.",
	}, []string{"symbol", "provider"})

	SignalsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_signals_evaluated_total",
		Help: "Trade signals evaluated by the risk engine, by outcome.",
	}, []string{"outcome"})

	SignalRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_signal_rejections_total",
		Help: "Signals rejected by the risk engine, by reason.",
	}, []string{"reason"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_orders_placed_total",
		Help: "Orders submitted to an adapter, by mode and status.",
	}, []string{"mode", "status"})

	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_order_breaker_open",
		Help: "1 when the exchange order breaker is open, 0 otherwise.",
	})

	DrawdownPct = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_drawdown_pct",
		Help: "Current portfolio drawdown from peak equity, percent.",
	})

	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_kill_switch_active",
		Help: "1 when the kill switch is active, 0 otherwise.",
	})

	ProviderMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trader_marketdata_mode",
		Help: "1 for the active market data mode (primary/fallback/degraded).",
	}, []string{"mode"})
)
