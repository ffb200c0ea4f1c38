package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/chaos"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/resilience"
)

// BinancePoll fetches 24h ticker snapshots over REST. It is the
// fallback tick source when streaming fails.
type BinancePoll struct {
	baseURL string
	client  *http.Client
	limiter *resilience.RateLimiter
	chaos   *chaos.Chaos
	logger  *zap.Logger
}

// NewBinancePoll creates a polling provider against baseURL
// (e.g. https://api.binance.com).
func NewBinancePoll(baseURL string, limiter *resilience.RateLimiter, cz *chaos.Chaos, logger *zap.Logger) *BinancePoll {
	return &BinancePoll{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: limiter,
		chaos:   cz,
		logger:  logger,
	}
}

func (b *BinancePoll) Name() string { return "binance-poll" }

type ticker24h struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Volume    string `json:"volume"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	CloseTime int64  `json:"closeTime"`
}

// Poll fetches one tick per symbol. A failure on any symbol fails the
// whole poll so the cascade counts it as one provider failure.
func (b *BinancePoll) Poll(ctx context.Context, symbols []string) ([]event.Tick, error) {
	ticks := make([]event.Tick, 0, len(symbols))

	for _, sym := range symbols {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := b.chaos.MaybeDelay(ctx, "marketdata", "poll"); err != nil {
			return nil, err
		}
		if b.chaos.MaybeDrop("marketdata", "poll") {
			return nil, fmt.Errorf("injected poll failure for %s", sym)
		}

		tick, err := b.fetch(ctx, sym)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}

	return ticks, nil
}

func (b *BinancePoll) fetch(ctx context.Context, symbol string) (event.Tick, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", b.baseURL, strings.ToUpper(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return event.Tick{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return event.Tick{}, fmt.Errorf("ticker request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return event.Tick{}, fmt.Errorf("failed to read ticker response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return event.Tick{}, fmt.Errorf("ticker request returned %d: %s", resp.StatusCode, string(body))
	}

	var t ticker24h
	if err := json.Unmarshal(body, &t); err != nil {
		return event.Tick{}, fmt.Errorf("failed to decode ticker response: %w", err)
	}

	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return event.Tick{}, fmt.Errorf("invalid last price %q: %w", t.LastPrice, err)
	}
	volume, _ := strconv.ParseFloat(t.Volume, 64)
	bid, _ := strconv.ParseFloat(t.BidPrice, 64)
	ask, _ := strconv.ParseFloat(t.AskPrice, 64)

	ts := t.CloseTime
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	return event.Tick{
		Symbol:       strings.ToUpper(t.Symbol),
		Price:        price,
		Volume:       volume,
		Bid:          bid,
		Ask:          ask,
		TsUnixMillis: ts,
	}, nil
}
