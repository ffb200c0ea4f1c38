// signals produces synthetic trade signals for exercising the
// pipeline end to end without a real strategy attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/logging"
)

func main() {
	var (
		count    = flag.Int("count", 20, "Number of signals to produce")
		interval = flag.Duration("interval", 2*time.Second, "Delay between signals")
		seed     = flag.Int64("seed", 42, "Random seed for deterministic generation")
		brokers  = flag.String("brokers", "127.0.0.1:9092", "Kafka broker addresses")
		clientID = flag.String("client-id", "quant-trader", "Kafka client id")
		symbols  = flag.String("symbols", "BTCUSDT,ETHUSDT", "Symbols to generate signals for")
		badPct   = flag.Int("bad-pct", 20, "Percentage of signals missing a stop loss (0-100)")
	)
	flag.Parse()

	logger, err := logging.NewLogger("signals", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	brokerList := parseBrokers(*brokers)
	symbolList := parseBrokers(*symbols)

	logger.Info("starting signal producer",
		zap.Int("count", *count),
		zap.Duration("interval", *interval),
		zap.Int64("seed", *seed),
		zap.Strings("brokers", brokerList),
		zap.Strings("symbols", symbolList),
	)

	b, err := bus.NewKafkaBus(brokerList, *clientID, "signals-v1", logger)
	if err != nil {
		logger.Fatal("failed to create kafka bus", zap.Error(err))
	}
	defer b.Close()

	rng := rand.New(rand.NewSource(*seed))
	ctx := context.Background()

	basePrice := map[string]float64{}
	for _, s := range symbolList {
		basePrice[s] = 1000.0 + rng.Float64()*50000.0
	}

	for i := 0; i < *count; i++ {
		symbol := symbolList[rng.Intn(len(symbolList))]
		price := basePrice[symbol] * (1 + (rng.Float64()-0.5)*0.02)

		action := event.ActionBuy
		if rng.Intn(2) == 1 {
			action = event.ActionSell
		}

		// A long stops below entry and targets above; a short is the
		// mirror image.
		stopDist := price * (0.005 + rng.Float64()*0.01)
		var stopLoss, takeProfit float64
		if action == event.ActionBuy {
			stopLoss = price - stopDist
			takeProfit = price + stopDist*(1.0+rng.Float64()*2.0)
		} else {
			stopLoss = price + stopDist
			takeProfit = price - stopDist*(1.0+rng.Float64()*2.0)
		}

		// Some deliberately invalid signals exercise the rejection path.
		if rng.Intn(100) < *badPct {
			stopLoss = 0
		}

		sig := event.TradeSignal{
			EventID:      uuid.New().String(),
			Symbol:       symbol,
			Action:       action,
			Price:        price,
			StopLoss:     stopLoss,
			TakeProfit:   takeProfit,
			Strategy:     "synthetic",
			Confidence:   rng.Float64(),
			TsUnixMillis: time.Now().UnixMilli(),
		}

		if err := b.Publish(ctx, event.TopicTradeSignals, symbol, sig); err != nil {
			logger.Error("failed to publish signal",
				zap.String("signal_id", sig.EventID),
				zap.Error(err),
			)
			continue
		}

		logger.Info("signal published",
			zap.String("signal_id", sig.EventID),
			zap.String("symbol", symbol),
			zap.String("action", string(action)),
			zap.Float64("price", price),
			zap.Float64("stop_loss", stopLoss),
		)

		time.Sleep(*interval)
	}

	logger.Info("signal producer finished", zap.Int("count", *count))
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
