package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/journal"
	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
	"github.com/Dev0031/QuantTrader-sub000/internal/resilience"
)

// EngineConfig tunes placement retries and the exchange breaker.
type EngineConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Breaker    resilience.BreakerConfig
}

// Engine consumes approved orders, routes them to the adapter for the
// current trading mode, and owns the order/position state that results.
// Live placements run behind a circuit breaker; when it opens the
// engine drops to paper mode and stays there until an operator
// intervenes.
type Engine struct {
	cfg       EngineConfig
	modes     *ModeSwitch
	live      Adapter
	paper     Adapter
	breaker   *resilience.Breaker
	orders    *OrderTracker
	positions *PositionTracker
	journal   *journal.Store
	logger    *zap.Logger
}

// NewEngine wires the engine together and installs the breaker's
// open-state reaction.
func NewEngine(cfg EngineConfig, modes *ModeSwitch, live, paper Adapter, orders *OrderTracker, positions *PositionTracker, store *journal.Store, logger *zap.Logger) *Engine {
	e := &Engine{
		cfg:       cfg,
		modes:     modes,
		live:      live,
		paper:     paper,
		orders:    orders,
		positions: positions,
		journal:   store,
		logger:    logger,
	}

	e.breaker = resilience.NewBreaker(cfg.Breaker, logger, func(from, to resilience.BreakerState) {
		if to == resilience.BreakerOpen {
			observability.BreakerState.Set(1)
			modes.ForcePaper("order breaker opened")
		} else {
			observability.BreakerState.Set(0)
		}
	})

	return e
}

// Register subscribes the engine's handlers on the bus.
func (e *Engine) Register(b bus.Bus) {
	b.Subscribe(event.TopicApprovedOrders, e.HandleApproved)
	b.Subscribe(event.TopicKillSwitch, e.HandleKillSwitch)
}

// HandleApproved processes one approved order from the risk engine.
// Orders already seen (broker redelivery) are skipped.
func (e *Engine) HandleApproved(ctx context.Context, topic, key string, payload []byte) error {
	var order event.Order
	if err := json.Unmarshal(payload, &order); err != nil {
		e.logger.Error("malformed approved order, skipping",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil
	}

	dup, err := e.journal.MarkProcessed(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to check order dedup: %w", err)
	}
	if dup {
		e.logger.Info("duplicate approved order, skipping", zap.String("order_id", order.ID))
		return nil
	}

	placed, err := e.PlaceOrder(ctx, order)
	if err != nil {
		// The placement outcome is already recorded and reported; a
		// rejection is a business result, not a redelivery trigger.
		e.logger.Warn("order placement failed",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.Error(err),
		)
		return nil
	}

	e.logger.Info("order placed",
		zap.String("order_id", placed.ID),
		zap.String("exchange_order_id", placed.ExchangeOrderID),
		zap.String("symbol", placed.Symbol),
		zap.String("status", string(placed.Status)),
	)
	return nil
}

// HandleKillSwitch cancels all pending orders when the kill switch
// activates.
func (e *Engine) HandleKillSwitch(ctx context.Context, topic, key string, payload []byte) error {
	var ks event.KillSwitchEvent
	if err := json.Unmarshal(payload, &ks); err != nil {
		e.logger.Error("malformed kill-switch event, skipping", zap.Error(err))
		return nil
	}
	if !ks.Active {
		return nil
	}

	adapter := AdapterFor(e.modes.Mode(), e.live, e.paper)
	for _, o := range e.orders.Pending() {
		if err := adapter.Cancel(ctx, o.Symbol, o.ExchangeOrderID); err != nil {
			e.logger.Error("failed to cancel pending order",
				zap.String("exchange_order_id", o.ExchangeOrderID),
				zap.Error(err),
			)
			continue
		}
		if _, err := e.orders.Update(ctx, o.ExchangeOrderID, event.StatusCanceled, 0, 0); err != nil && !errors.Is(err, ErrUnknownOrder) {
			e.logger.Error("failed to mark order canceled",
				zap.String("exchange_order_id", o.ExchangeOrderID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// PlaceOrder submits an order through the current mode's adapter with
// bounded retries. The returned order carries the exchange id and fill
// state; on failure the order is journaled as rejected and the error
// returned.
func (e *Engine) PlaceOrder(ctx context.Context, order event.Order) (event.Order, error) {
	mode := e.modes.Mode()
	adapter := AdapterFor(mode, e.live, e.paper)

	var ack Ack
	err := resilience.Retry(ctx, e.cfg.MaxRetries, e.cfg.RetryDelay, e.logger, "place_order", func(ctx context.Context) error {
		var placeErr error
		ack, placeErr = e.submit(ctx, adapter, mode, order)
		return placeErr
	})
	now := time.Now().UnixMilli()

	if err != nil {
		order.Status = event.StatusRejected
		order.UpdatedUnixMillis = now
		e.record(ctx, order, mode, err.Error())
		observability.OrdersPlaced.WithLabelValues(string(mode), string(event.StatusRejected)).Inc()
		return order, err
	}

	order.ExchangeOrderID = ack.ExchangeOrderID
	order.Status = ack.Status
	order.FilledQuantity = ack.FilledQuantity
	order.FilledPrice = ack.FilledPrice
	order.Commission = ack.Commission
	order.UpdatedUnixMillis = now

	if err := e.orders.Track(ctx, order); err != nil {
		e.logger.Error("failed to track order", zap.String("order_id", order.ID), zap.Error(err))
	}

	if order.FilledQuantity > 0 {
		e.positions.ApplyFill(ctx, order.Symbol, order.Side, order.FilledQuantity, order.FilledPrice, order.StopLoss, order.TakeProfit)
		if err := e.journal.RecordFill(ctx, order); err != nil {
			e.logger.Error("failed to record fill", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	e.record(ctx, order, mode, "")
	observability.OrdersPlaced.WithLabelValues(string(mode), string(order.Status)).Inc()
	return order, nil
}

// ApplyStatusUpdate folds an asynchronous exchange status change into
// order and position state.
func (e *Engine) ApplyStatusUpdate(ctx context.Context, exchangeOrderID string, status event.OrderStatus, filledQty, filledPrice float64) error {
	before, _ := e.orders.Get(exchangeOrderID)

	updated, err := e.orders.Update(ctx, exchangeOrderID, status, filledQty, filledPrice)
	if err != nil {
		if errors.Is(err, ErrUnknownOrder) {
			return nil
		}
		return err
	}

	// Only the incremental fill moves the position.
	delta := updated.FilledQuantity - before.FilledQuantity
	if delta > 0 && updated.FilledPrice > 0 {
		e.positions.ApplyFill(ctx, updated.Symbol, updated.Side, delta, updated.FilledPrice, updated.StopLoss, updated.TakeProfit)
		if err := e.journal.RecordFill(ctx, updated); err != nil {
			e.logger.Error("failed to record fill", zap.String("order_id", updated.ID), zap.Error(err))
		}
	}

	e.record(ctx, updated, e.modes.Mode(), "")
	return nil
}

// submit dispatches on order type. Live calls run through the breaker;
// an open breaker fails fast without touching the network and is not
// retried.
func (e *Engine) submit(ctx context.Context, adapter Adapter, mode Mode, order event.Order) (Ack, error) {
	place := func(ctx context.Context) (Ack, error) {
		switch order.Type {
		case event.OrderTypeLimit:
			return adapter.PlaceLimit(ctx, order.Symbol, order.Side, order.Quantity, order.Price)
		case event.OrderTypeStopLoss:
			return adapter.PlaceStopLoss(ctx, order.Symbol, order.Side, order.Quantity, order.StopPrice)
		default:
			return adapter.PlaceMarket(ctx, order.Symbol, order.Side, order.Quantity)
		}
	}

	if mode != ModeLive {
		return place(ctx)
	}

	var ack Ack
	err := e.breaker.Execute(func() error {
		var placeErr error
		ack, placeErr = place(ctx)
		return placeErr
	})
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return Ack{}, resilience.Permanent(err)
	}
	return ack, err
}

// record journals the order state and enqueues the execution report
// for outbox publication.
func (e *Engine) record(ctx context.Context, order event.Order, mode Mode, reason string) {
	if err := e.journal.SaveOrder(ctx, order); err != nil {
		e.logger.Error("failed to journal order", zap.String("order_id", order.ID), zap.Error(err))
	}

	report := event.ExecutionReport{
		EventID:      uuid.New().String(),
		Order:        order,
		Status:       order.Status,
		Mode:         string(mode),
		Reason:       reason,
		TsUnixMillis: time.Now().UnixMilli(),
	}
	if err := e.journal.Enqueue(ctx, report.EventID, event.TopicExecutedOrders, order.Symbol, report); err != nil {
		e.logger.Error("failed to enqueue execution report", zap.String("order_id", order.ID), zap.Error(err))
	}
}
