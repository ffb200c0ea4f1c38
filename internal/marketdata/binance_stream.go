package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// BinanceStream subscribes to the combined 24h ticker stream over a
// websocket. One Stream call is one connection; the cascade owns
// reconnection and backoff.
type BinanceStream struct {
	baseURL string
	logger  *zap.Logger
}

// NewBinanceStream creates a streaming provider against baseURL
// (e.g. wss://stream.binance.com:9443).
func NewBinanceStream(baseURL string, logger *zap.Logger) *BinanceStream {
	return &BinanceStream{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (b *BinanceStream) Name() string { return "binance-stream" }

type streamEnvelope struct {
	Stream string        `json:"stream"`
	Data   binanceTicker `json:"data"`
}

type binanceTicker struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	Volume    string `json:"v"`
	BidPrice  string `json:"b"`
	AskPrice  string `json:"a"`
	EventTime int64  `json:"E"`
}

// Stream connects and pumps ticks until the connection fails.
func (b *BinanceStream) Stream(ctx context.Context, symbols []string, out chan<- event.Tick) error {
	if len(symbols) == 0 {
		return fmt.Errorf("stream requires at least one symbol")
	}

	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@ticker"
	}
	url := fmt.Sprintf("%s/stream?streams=%s", b.baseURL, strings.Join(streams, "/"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial stream: %w", err)
	}
	defer conn.Close()

	b.logger.Info("connected market data stream",
		zap.String("provider", b.Name()),
		zap.Strings("symbols", symbols),
	)

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					b.logger.Warn("stream ping failed", zap.Error(err))
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}

		var env streamEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			b.logger.Warn("failed to decode stream message", zap.Error(err))
			continue
		}
		if env.Data.Symbol == "" {
			continue
		}

		tick, err := env.Data.toTick()
		if err != nil {
			b.logger.Warn("invalid ticker payload",
				zap.String("symbol", env.Data.Symbol),
				zap.Error(err),
			)
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t binanceTicker) toTick() (event.Tick, error) {
	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return event.Tick{}, fmt.Errorf("invalid price %q: %w", t.LastPrice, err)
	}
	volume, err := strconv.ParseFloat(t.Volume, 64)
	if err != nil {
		return event.Tick{}, fmt.Errorf("invalid volume %q: %w", t.Volume, err)
	}
	bid, err := strconv.ParseFloat(t.BidPrice, 64)
	if err != nil {
		return event.Tick{}, fmt.Errorf("invalid bid %q: %w", t.BidPrice, err)
	}
	ask, err := strconv.ParseFloat(t.AskPrice, 64)
	if err != nil {
		return event.Tick{}, fmt.Errorf("invalid ask %q: %w", t.AskPrice, err)
	}

	ts := t.EventTime
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
