package execution

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/chaos"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

const paperCommissionRate = 0.001

// PaperAdapter simulates fills against the latest cached price with
// synthetic order ids. It backs every non-live trading mode.
type PaperAdapter struct {
	cache        cache.Store
	cacheTimeout time.Duration
	chaos        *chaos.Chaos
	logger       *zap.Logger

	mu      sync.Mutex
	balance float64
}

// NewPaperAdapter creates a paper adapter with the given starting
// quote balance.
func NewPaperAdapter(store cache.Store, cacheTimeout time.Duration, balance float64, cz *chaos.Chaos, logger *zap.Logger) *PaperAdapter {
	return &PaperAdapter{
		cache:        store,
		cacheTimeout: cacheTimeout,
		chaos:        cz,
		balance:      balance,
		logger:       logger,
	}
}

func (p *PaperAdapter) Name() string { return "paper" }

// PlaceMarket fills immediately at the latest cached price. A missing
// price key means stale market data; the order is rejected rather than
// filled at a guessed price.
func (p *PaperAdapter) PlaceMarket(ctx context.Context, symbol string, side event.OrderSide, qty float64) (Ack, error) {
	price, err := p.latestPrice(ctx, symbol)
	if err != nil {
		return Ack{}, err
	}
	return p.fill(symbol, side, qty, price)
}

// PlaceLimit fills immediately at the limit price.
func (p *PaperAdapter) PlaceLimit(ctx context.Context, symbol string, side event.OrderSide, qty, price float64) (Ack, error) {
	if err := p.injectFault(ctx, "place_limit"); err != nil {
		return Ack{}, err
	}
	return p.fill(symbol, side, qty, price)
}

// PlaceStopLoss registers a simulated stop; it rests unfilled.
func (p *PaperAdapter) PlaceStopLoss(ctx context.Context, symbol string, side event.OrderSide, qty, stopPrice float64) (Ack, error) {
	if err := p.injectFault(ctx, "place_stop"); err != nil {
		return Ack{}, err
	}
	return Ack{
		ExchangeOrderID: syntheticID(),
		Status:          event.StatusNew,
	}, nil
}

// Cancel always succeeds for simulated orders.
func (p *PaperAdapter) Cancel(ctx context.Context, symbol, exchangeOrderID string) error {
	return nil
}

// Query reports simulated orders as filled.
func (p *PaperAdapter) Query(ctx context.Context, symbol, exchangeOrderID string) (Ack, error) {
	return Ack{ExchangeOrderID: exchangeOrderID, Status: event.StatusFilled}, nil
}

// Balance returns the simulated quote balance.
func (p *PaperAdapter) Balance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperAdapter) fill(symbol string, side event.OrderSide, qty, price float64) (Ack, error) {
	if qty <= 0 {
		return Ack{}, fmt.Errorf("quantity must be positive")
	}
	if price <= 0 {
		return Ack{}, fmt.Errorf("price must be positive")
	}

	notional := qty * price
	commission := notional * paperCommissionRate

	p.mu.Lock()
	if side == event.SideBuy {
		p.balance -= notional + commission
	} else {
		p.balance += notional - commission
	}
	p.mu.Unlock()

	p.logger.Debug("paper fill",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
	)

	return Ack{
		ExchangeOrderID: syntheticID(),
		Status:          event.StatusFilled,
		FilledQuantity:  qty,
		FilledPrice:     price,
		Commission:      commission,
	}, nil
}

func (p *PaperAdapter) latestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := p.injectFault(ctx, "place_market"); err != nil {
		return 0, err
	}

	cctx, cancel := context.WithTimeout(ctx, p.cacheTimeout)
	defer cancel()

	raw, ok, err := p.cache.Get(cctx, cache.PriceKey(symbol))
	if err != nil {
		return 0, fmt.Errorf("failed to read latest price: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("no recent price for %s", symbol)
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cached price %q: %w", raw, err)
	}
	return price, nil
}

func (p *PaperAdapter) injectFault(ctx context.Context, op string) error {
	if err := p.chaos.MaybeDelay(ctx, "paper", op); err != nil {
		return err
	}
	if p.chaos.MaybeDrop("paper", op) {
		return fmt.Errorf("injected failure on %s", op)
	}
	return nil
}

func syntheticID() string {
	return "paper-" + uuid.New().String()
}
