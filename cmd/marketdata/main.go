package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/chaos"
	"github.com/Dev0031/QuantTrader-sub000/internal/config"
	"github.com/Dev0031/QuantTrader-sub000/internal/logging"
	"github.com/Dev0031/QuantTrader-sub000/internal/marketdata"
	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
	"github.com/Dev0031/QuantTrader-sub000/internal/resilience"
)

func main() {
	cfg := config.LoadConfig("marketdata")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting marketdata service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.Strings("symbols", cfg.Symbols),
	)

	b, err := bus.NewKafkaBus(cfg.BrokerList(), cfg.KafkaClientID, "marketdata-v1", logger)
	if err != nil {
		logger.Fatal("failed to create kafka bus", zap.Error(err))
	}
	defer b.Close()

	cacheStore := cache.NewMemoryStore(time.Minute)
	cz := chaos.New(chaos.LoadConfig(), logger)
	limiter := resilience.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)

	stream := marketdata.NewBinanceStream(cfg.ExchangeWSURL, logger)
	poll := marketdata.NewBinancePoll(cfg.ExchangeRESTURL, limiter, cz, logger)
	md := marketdata.NewService(marketdata.Config{
		Symbols:          cfg.Symbols,
		FailureThreshold: cfg.StreamFailureThreshold,
		PollInterval:     cfg.PollInterval,
		PriceTTL:         cfg.PriceTTL,
		CacheTimeout:     cfg.CacheTimeout,
	}, stream, poll, b, cacheStore, logger)

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

	mdErrCh := make(chan error, 1)
	go func() {
		if err := md.Run(runCtx); err != nil && runCtx.Err() == nil {
			mdErrCh <- err
		}
	}()

	// Producer-only service: the bus is ready as soon as it exists.
	healthChecker.SetBusReady(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	case err := <-mdErrCh:
		logger.Error("market data error", zap.Error(err))
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("marketdata service stopped")
}
