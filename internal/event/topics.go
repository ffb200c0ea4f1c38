package event

// Well-known bus topics
const (
	TopicMarketTicks    = "market-ticks"
	TopicTradeSignals   = "trade-signals"
	TopicApprovedOrders = "approved-orders"
	TopicExecutedOrders = "executed-orders"
	TopicRiskAlerts     = "risk-alerts"
	TopicPortfolio      = "portfolio-snapshots"
	TopicDrawdown       = "risk-drawdown"
	TopicKillSwitch     = "kill-switch"
	TopicSystemHealth   = "system-health"
)
