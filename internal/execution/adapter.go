package execution

import (
	"context"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// Ack is an adapter's answer to a placement, query, or cancel.
type Ack struct {
	ExchangeOrderID string
	Status          event.OrderStatus
	FilledQuantity  float64
	FilledPrice     float64
	Commission      float64
}

// Adapter is the order-execution contract. Live and Paper implement it
// identically so callers are mode-agnostic.
type Adapter interface {
	Name() string

	PlaceMarket(ctx context.Context, symbol string, side event.OrderSide, qty float64) (Ack, error)
	PlaceLimit(ctx context.Context, symbol string, side event.OrderSide, qty, price float64) (Ack, error)
	PlaceStopLoss(ctx context.Context, symbol string, side event.OrderSide, qty, stopPrice float64) (Ack, error)

	Cancel(ctx context.Context, symbol, exchangeOrderID string) error
	Query(ctx context.Context, symbol, exchangeOrderID string) (Ack, error)

	// Balance returns the free quote-asset balance.
	Balance(ctx context.Context) (float64, error)
}

// AdapterFor maps the trading mode to an adapter. Only live mode
// touches the real exchange; every simulated mode uses paper fills.
func AdapterFor(mode Mode, live, paper Adapter) Adapter {
	if mode == ModeLive {
		return live
	}
	return paper
}
