package execution

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunStatusSync polls the exchange for the state of resting orders
// until ctx is canceled. Market orders usually ack with their fill,
// but a limit or stop order acked NEW or PARTIALLY_FILLED only
// progresses through these polls; without them it would never reach a
// terminal status.
func (e *Engine) RunStatusSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("order status sync started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("order status sync stopped")
			return
		case <-ticker.C:
			e.syncPending(ctx)
		}
	}
}

// syncPending queries every pending order once and folds any change
// into order and position state. Query failures leave the order
// pending for the next cycle.
func (e *Engine) syncPending(ctx context.Context) {
	adapter := AdapterFor(e.modes.Mode(), e.live, e.paper)

	for _, o := range e.orders.Pending() {
		ack, err := adapter.Query(ctx, o.Symbol, o.ExchangeOrderID)
		if err != nil {
			e.logger.Warn("failed to query order status",
				zap.String("exchange_order_id", o.ExchangeOrderID),
				zap.String("symbol", o.Symbol),
				zap.Error(err),
			)
			continue
		}

		if ack.Status == o.Status && ack.FilledQuantity <= o.FilledQuantity {
			continue
		}

		if err := e.ApplyStatusUpdate(ctx, o.ExchangeOrderID, ack.Status, ack.FilledQuantity, ack.FilledPrice); err != nil {
			e.logger.Error("failed to apply order status update",
				zap.String("exchange_order_id", o.ExchangeOrderID),
				zap.String("status", string(ack.Status)),
				zap.Error(err),
			)
		}
	}
}
