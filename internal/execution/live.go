package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/resilience"
)

// LiveAdapter talks to the real exchange order API with HMAC-SHA256
// signed requests. Outbound calls go through the shared rate limiter
// to respect the documented request-weight budget.
type LiveAdapter struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	limiter   *resilience.RateLimiter
	logger    *zap.Logger
}

// NewLiveAdapter creates a live adapter against baseURL
// (e.g. https://api.binance.com). The timeout bounds every order call.
func NewLiveAdapter(baseURL, apiKey, apiSecret string, timeout time.Duration, limiter *resilience.RateLimiter, logger *zap.Logger) *LiveAdapter {
	return &LiveAdapter{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
		logger:    logger,
	}
}

func (l *LiveAdapter) Name() string { return "live" }

type exchangeOrderResponse struct {
	OrderID             int64  `json:"orderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

// PlaceMarket submits a market order.
func (l *LiveAdapter) PlaceMarket(ctx context.Context, symbol string, side event.OrderSide, qty float64) (Ack, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", formatQty(qty))
	return l.placeOrder(ctx, params)
}

// PlaceLimit submits a good-till-canceled limit order.
func (l *LiveAdapter) PlaceLimit(ctx context.Context, symbol string, side event.OrderSide, qty, price float64) (Ack, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("side", string(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", formatQty(qty))
	params.Set("price", formatQty(price))
	return l.placeOrder(ctx, params)
}

// PlaceStopLoss submits a stop-loss order.
func (l *LiveAdapter) PlaceStopLoss(ctx context.Context, symbol string, side event.OrderSide, qty, stopPrice float64) (Ack, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("side", string(side))
	params.Set("type", "STOP_LOSS")
	params.Set("quantity", formatQty(qty))
	params.Set("stopPrice", formatQty(stopPrice))
	return l.placeOrder(ctx, params)
}

// Cancel cancels an open order.
func (l *LiveAdapter) Cancel(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", exchangeOrderID)

	_, err := l.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params)
	return err
}

// Query fetches the current order state.
func (l *LiveAdapter) Query(ctx context.Context, symbol, exchangeOrderID string) (Ack, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", exchangeOrderID)

	body, err := l.signedRequest(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return Ack{}, err
	}
	return parseOrderResponse(body)
}

type accountResponse struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// Balance returns the free USDT balance from the signed account endpoint.
func (l *LiveAdapter) Balance(ctx context.Context) (float64, error) {
	body, err := l.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return 0, err
	}

	var acct accountResponse
	if err := json.Unmarshal(body, &acct); err != nil {
		return 0, fmt.Errorf("failed to decode account response: %w", err)
	}

	for _, b := range acct.Balances {
		if b.Asset == "USDT" {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid balance %q: %w", b.Free, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

func (l *LiveAdapter) placeOrder(ctx context.Context, params url.Values) (Ack, error) {
	body, err := l.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return Ack{}, err
	}
	return parseOrderResponse(body)
}

// signedRequest appends timestamp and HMAC-SHA256 signature over the
// query string, per the exchange signing scheme.
func (l *LiveAdapter) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(l.apiSecret))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))

	fullURL := fmt.Sprintf("%s%s?%s&signature=%s", l.baseURL, path, query, signature)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read exchange response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("exchange returned %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		// 4xx responses are not retryable; the request itself is wrong.
		return nil, resilience.Permanent(fmt.Errorf("exchange rejected request (%d): %s", resp.StatusCode, string(body)))
	}

	return body, nil
}

func parseOrderResponse(body []byte) (Ack, error) {
	var resp exchangeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Ack{}, fmt.Errorf("failed to decode order response: %w", err)
	}

	filledQty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)

	filledPrice := 0.0
	if filledQty > 0 {
		filledPrice = quoteQty / filledQty
	}

	return Ack{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          mapExchangeStatus(resp.Status),
		FilledQuantity:  filledQty,
		FilledPrice:     filledPrice,
	}, nil
}

func mapExchangeStatus(s string) event.OrderStatus {
	switch s {
	case "NEW":
		return event.StatusNew
	case "PARTIALLY_FILLED":
		return event.StatusPartiallyFilled
	case "FILLED":
		return event.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return event.StatusCanceled
	case "REJECTED":
		return event.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return event.StatusExpired
	default:
		return event.StatusNew
	}
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
