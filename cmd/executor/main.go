package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/chaos"
	"github.com/Dev0031/QuantTrader-sub000/internal/config"
	"github.com/Dev0031/QuantTrader-sub000/internal/execution"
	"github.com/Dev0031/QuantTrader-sub000/internal/journal"
	"github.com/Dev0031/QuantTrader-sub000/internal/logging"
	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
	"github.com/Dev0031/QuantTrader-sub000/internal/portfolio"
	"github.com/Dev0031/QuantTrader-sub000/internal/resilience"
)

// modeBalance reads the balance of whichever adapter the current
// trading mode selects.
type modeBalance struct {
	modes *execution.ModeSwitch
	live  execution.Adapter
	paper execution.Adapter
}

func (m *modeBalance) Balance(ctx context.Context) (float64, error) {
	return execution.AdapterFor(m.modes.Mode(), m.live, m.paper).Balance(ctx)
}

func main() {
	cfg := config.LoadConfig("executor")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting executor service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("trading_mode", cfg.TradingMode),
		zap.String("data_dir", cfg.DataDir),
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	store, err := journal.Open(filepath.Join(cfg.DataDir, "executor.db"))
	if err != nil {
		logger.Fatal("failed to open trade journal", zap.Error(err))
	}
	defer store.Close()

	b, err := bus.NewKafkaBus(cfg.BrokerList(), cfg.KafkaClientID, "executor-v1", logger)
	if err != nil {
		logger.Fatal("failed to create kafka bus", zap.Error(err))
	}
	defer b.Close()

	cacheStore := cache.NewMemoryStore(time.Minute)
	cz := chaos.New(chaos.LoadConfig(), logger)
	limiter := resilience.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)

	modes := execution.NewModeSwitch(execution.ParseMode(cfg.TradingMode), logger)
	paper := execution.NewPaperAdapter(cacheStore, cfg.CacheTimeout, cfg.PaperBalance, cz, logger)
	live := execution.NewLiveAdapter(cfg.ExchangeRESTURL, cfg.APIKey, cfg.APISecret, cfg.OrderTimeout, limiter, logger)
	orders := execution.NewOrderTracker(cacheStore, cfg.CacheTimeout, cfg.SnapshotTTL, logger)
	positions := execution.NewPositionTracker(cacheStore, cfg.CacheTimeout, cfg.SnapshotTTL, logger)

	engine := execution.NewEngine(execution.EngineConfig{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Breaker: resilience.BreakerConfig{
			Name:         "exchange-orders",
			FailureRatio: cfg.BreakerFailureRatio,
			MinSamples:   cfg.BreakerMinSamples,
			Cooldown:     cfg.BreakerCooldown,
		},
	}, modes, live, paper, orders, positions, store, logger)
	engine.Register(b)

	// The paper adapter fills at the latest cached price; in a split
	// deployment that cache is fed from the tick stream.
	ticks := execution.NewTickMirror(cacheStore, cfg.CacheTimeout, cfg.PriceTTL, logger)
	ticks.Register(b)

	// The builder reports the drawdown the risk monitor computes; in a
	// split deployment it arrives over the bus.
	ddMirror := portfolio.NewDrawdownMirror(cacheStore, cfg.CacheTimeout, 2*cfg.MonitorInterval, logger)
	ddMirror.Register(b)

	builder := portfolio.NewBuilder(portfolio.Config{
		Interval:     cfg.SnapshotInterval,
		SnapshotTTL:  cfg.SnapshotTTL,
		CacheTimeout: cfg.CacheTimeout,
	}, positions, &modeBalance{modes: modes, live: live, paper: paper}, cacheStore, store, b, logger)

	publisher := journal.NewPublisher(store, b, time.Second, logger)

	healthChecker := observability.NewHealthChecker(logger)

	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	busErrCh := make(chan error, 1)
	go func() {
		if err := b.Run(runCtx); err != nil && runCtx.Err() == nil {
			busErrCh <- err
		}
	}()

	go builder.Run(runCtx)
	go publisher.Run(runCtx)
	go engine.RunStatusSync(runCtx, cfg.StatusSyncInterval)

	// Wait for the consumer group to join before reporting ready.
	time.Sleep(1 * time.Second)
	healthChecker.SetBusReady(b.IsRunning())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	case err := <-busErrCh:
		logger.Error("bus error", zap.Error(err))
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("executor service stopped")
}
