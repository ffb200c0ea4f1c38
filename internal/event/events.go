package event

// SignalAction is the trade action proposed by a strategy
type SignalAction string

const (
	ActionBuy        SignalAction = "BUY"
	ActionSell       SignalAction = "SELL"
	ActionCloseLong  SignalAction = "CLOSE_LONG"
	ActionCloseShort SignalAction = "CLOSE_SHORT"
)

// OrderSide is the direction an order trades in
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType selects the exchange order type
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "STOP_LOSS"
)

// OrderStatus tracks the order lifecycle
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether a status ends the order lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// PositionSide is the direction of an open position
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Tick is a normalized market data observation for one symbol
type Tick struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Volume       float64 `json:"volume"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	TsUnixMillis int64   `json:"ts_unix_millis"`
}

// TradeSignal is a proposed trade produced by an external strategy
type TradeSignal struct {
	EventID       string       `json:"event_id"`
	Symbol        string       `json:"symbol"`
	Action        SignalAction `json:"action"`
	Price         float64      `json:"price"`
	StopLoss      float64      `json:"stop_loss"`
	TakeProfit    float64      `json:"take_profit,omitempty"`
	RiskPct       float64      `json:"risk_pct,omitempty"`
	Strategy      string       `json:"strategy"`
	Confidence    float64      `json:"confidence,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	TsUnixMillis  int64        `json:"ts_unix_millis"`
}

// Order is the lifecycle entity owned by the execution engine
type Order struct {
	ID                string      `json:"id"`
	ExchangeOrderID   string      `json:"exchange_order_id,omitempty"`
	Symbol            string      `json:"symbol"`
	Side              OrderSide   `json:"side"`
	Type              OrderType   `json:"type"`
	Quantity          float64     `json:"quantity"`
	Price             float64     `json:"price,omitempty"`
	StopPrice         float64     `json:"stop_price,omitempty"`
	Status            OrderStatus `json:"status"`
	FilledQuantity    float64     `json:"filled_quantity"`
	FilledPrice       float64     `json:"filled_price"`
	Commission        float64     `json:"commission"`
	StopLoss          float64     `json:"stop_loss,omitempty"`
	TakeProfit        float64     `json:"take_profit,omitempty"`
	CorrelationID     string      `json:"correlation_id,omitempty"`
	CreatedUnixMillis int64       `json:"created_unix_millis"`
	UpdatedUnixMillis int64       `json:"updated_unix_millis"`
}

// ExecutionReport is published on executed-orders after a placement attempt
type ExecutionReport struct {
	EventID      string      `json:"event_id"`
	Order        Order       `json:"order"`
	Status       OrderStatus `json:"status"`
	Mode         string      `json:"mode"`
	Reason       string      `json:"reason,omitempty"`
	TsUnixMillis int64       `json:"ts_unix_millis"`
}

// Position is the net open exposure to a symbol
type Position struct {
	Symbol           string       `json:"symbol"`
	Side             PositionSide `json:"side"`
	EntryPrice       float64      `json:"entry_price"`
	CurrentPrice     float64      `json:"current_price"`
	Quantity         float64      `json:"quantity"`
	UnrealizedPnl    float64      `json:"unrealized_pnl"`
	RealizedPnl      float64      `json:"realized_pnl"`
	StopLoss         float64      `json:"stop_loss,omitempty"`
	TakeProfit       float64      `json:"take_profit,omitempty"`
	OpenedUnixMillis int64        `json:"opened_unix_millis"`
}

// PortfolioSnapshot is a periodically rebuilt view of the account
type PortfolioSnapshot struct {
	TotalEquity        float64    `json:"total_equity"`
	AvailableBalance   float64    `json:"available_balance"`
	TotalUnrealizedPnl float64    `json:"total_unrealized_pnl"`
	TotalRealizedPnl   float64    `json:"total_realized_pnl"`
	DrawdownPct        float64    `json:"drawdown_pct"`
	Positions          []Position `json:"positions"`
	TsUnixMillis       int64      `json:"ts_unix_millis"`
}

// DrawdownUpdate carries the risk monitor's current drawdown to
// processes that cannot read its cache
type DrawdownUpdate struct {
	EventID      string  `json:"event_id"`
	DrawdownPct  float64 `json:"drawdown_pct"`
	PeakEquity   float64 `json:"peak_equity"`
	TsUnixMillis int64   `json:"ts_unix_millis"`
}

// RiskAlert is published when a signal is rejected
type RiskAlert struct {
	EventID      string `json:"event_id"`
	SignalID     string `json:"signal_id"`
	Symbol       string `json:"symbol"`
	Reason       string `json:"reason"`
	TsUnixMillis int64  `json:"ts_unix_millis"`
}

// KillSwitchEvent announces a kill-switch transition
type KillSwitchEvent struct {
	EventID      string  `json:"event_id"`
	Active       bool    `json:"active"`
	Reason       string  `json:"reason"`
	DrawdownPct  float64 `json:"drawdown_pct"`
	TsUnixMillis int64   `json:"ts_unix_millis"`
}

// Health status values
const (
	HealthOK       = "OK"
	HealthDegraded = "DEGRADED"
)

// HealthEvent announces a component health transition
type HealthEvent struct {
	EventID      string `json:"event_id"`
	Component    string `json:"component"`
	Status       string `json:"status"`
	Detail       string `json:"detail,omitempty"`
	TsUnixMillis int64  `json:"ts_unix_millis"`
}
