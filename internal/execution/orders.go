package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

var (
	ErrUnknownOrder      = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order already tracked")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

const terminalOrderTTL = 10 * time.Second

// OrderTracker holds the in-memory pending set of submitted orders
// keyed by exchange order id, mirrored to the shared cache. Terminal
// orders leave the pending set (durable history lives in the journal).
type OrderTracker struct {
	mu      sync.RWMutex
	pending map[string]*event.Order

	cache        cache.Store
	cacheTimeout time.Duration
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewOrderTracker creates an empty tracker.
func NewOrderTracker(store cache.Store, cacheTimeout, cacheTTL time.Duration, logger *zap.Logger) *OrderTracker {
	return &OrderTracker{
		pending:      make(map[string]*event.Order),
		cache:        store,
		cacheTimeout: cacheTimeout,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Track adds a submitted order to the pending set.
func (t *OrderTracker) Track(ctx context.Context, order event.Order) error {
	if order.ExchangeOrderID == "" {
		return fmt.Errorf("order %s has no exchange order id", order.ID)
	}

	t.mu.Lock()
	if _, ok := t.pending[order.ExchangeOrderID]; ok {
		t.mu.Unlock()
		return ErrDuplicateOrder
	}
	o := order
	t.pending[order.ExchangeOrderID] = &o
	t.mu.Unlock()

	t.mirror(ctx, order)

	if order.Status.Terminal() {
		// Filled-on-submit orders pass straight through the pending set.
		t.remove(ctx, order.ExchangeOrderID)
	}
	return nil
}

// Update applies a status change from the exchange. Unknown ids are a
// state inconsistency: logged as a warning, not an error that halts
// the loop.
func (t *OrderTracker) Update(ctx context.Context, exchangeOrderID string, status event.OrderStatus, filledQty, filledPrice float64) (event.Order, error) {
	t.mu.Lock()
	order, ok := t.pending[exchangeOrderID]
	if !ok {
		t.mu.Unlock()
		t.logger.Warn("status update for untracked order",
			zap.String("exchange_order_id", exchangeOrderID),
			zap.String("status", string(status)),
		)
		return event.Order{}, ErrUnknownOrder
	}

	if !validTransition(order.Status, status) {
		from := order.Status
		t.mu.Unlock()
		return event.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	order.Status = status
	if filledQty > 0 {
		order.FilledQuantity = filledQty
	}
	if filledPrice > 0 {
		order.FilledPrice = filledPrice
	}
	order.UpdatedUnixMillis = time.Now().UnixMilli()
	updated := *order
	t.mu.Unlock()

	if status.Terminal() {
		t.remove(ctx, exchangeOrderID)
	} else {
		t.mirror(ctx, updated)
	}
	return updated, nil
}

// Get returns a pending order by exchange id.
func (t *OrderTracker) Get(exchangeOrderID string) (event.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if o, ok := t.pending[exchangeOrderID]; ok {
		return *o, true
	}
	return event.Order{}, false
}

// Pending returns a copy of the pending set.
func (t *OrderTracker) Pending() []event.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]event.Order, 0, len(t.pending))
	for _, o := range t.pending {
		out = append(out, *o)
	}
	return out
}

func (t *OrderTracker) remove(ctx context.Context, exchangeOrderID string) {
	t.mu.Lock()
	delete(t.pending, exchangeOrderID)
	t.mu.Unlock()

	// Terminal orders keep a short-lived cache entry so late readers
	// see the final state before the key expires.
	cctx, cancel := context.WithTimeout(ctx, t.cacheTimeout)
	defer cancel()
	if err := t.cache.Expire(cctx, cache.OrderKey(exchangeOrderID), terminalOrderTTL); err != nil {
		t.logger.Warn("failed to expire order cache entry", zap.Error(err))
	}
}

func (t *OrderTracker) mirror(ctx context.Context, order event.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		t.logger.Error("failed to marshal order", zap.Error(err))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, t.cacheTimeout)
	defer cancel()
	if err := t.cache.Set(cctx, cache.OrderKey(order.ExchangeOrderID), string(data), t.cacheTTL); err != nil {
		t.logger.Warn("failed to mirror order to cache", zap.Error(err))
	}
}

// validTransition encodes the order lifecycle: New may partially fill
// or reach any terminal status; a partial fill may fill further or
// terminate; terminal states accept nothing.
func validTransition(from, to event.OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case event.StatusNew:
		return to == event.StatusPartiallyFilled || to.Terminal()
	case event.StatusPartiallyFilled:
		return to == event.StatusPartiallyFilled || to.Terminal()
	}
	return false
}
