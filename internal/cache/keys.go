package cache

import "fmt"

// Cache key contract shared with the dashboard/API layer.
const SnapshotKey = "portfolio:snapshot"

// PriceKey holds the latest price for a symbol as a plain decimal string.
func PriceKey(symbol string) string {
	return fmt.Sprintf("price:latest:%s", symbol)
}

// TickKey holds the latest structured tick for a symbol as JSON.
func TickKey(symbol string) string {
	return fmt.Sprintf("tick:latest:%s", symbol)
}

// PositionKey holds the open position for a symbol as JSON.
func PositionKey(symbol string) string {
	return fmt.Sprintf("position:open:%s", symbol)
}

// OrderKey holds an active order as JSON.
func OrderKey(id string) string {
	return fmt.Sprintf("order:active:%s", id)
}

// DrawdownKey holds the current drawdown percent as a plain decimal string.
const DrawdownKey = "risk:drawdown"
