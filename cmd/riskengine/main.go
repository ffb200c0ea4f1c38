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
	"github.com/Dev0031/QuantTrader-sub000/internal/config"
	"github.com/Dev0031/QuantTrader-sub000/internal/logging"
	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
	"github.com/Dev0031/QuantTrader-sub000/internal/risk"
)

func main() {
	cfg := config.LoadConfig("risk-engine")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting risk-engine service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.Float64("max_risk_pct", cfg.MaxRiskPct),
		zap.Float64("max_drawdown_pct", cfg.MaxDrawdownPct),
	)

	b, err := bus.NewKafkaBus(cfg.BrokerList(), cfg.KafkaClientID, "risk-engine-v1", logger)
	if err != nil {
		logger.Fatal("failed to create kafka bus", zap.Error(err))
	}
	defer b.Close()

	cacheStore := cache.NewMemoryStore(time.Minute)

	kill := risk.NewKillSwitch()
	drawdown := risk.NewDrawdownMonitor()

	// Snapshots arrive over the bus from the executor's builder.
	snapshots := risk.NewBusSnapshots(cfg.SnapshotTTL, logger)
	snapshots.Register(b)

	engine := risk.NewEngine(risk.Config{
		MaxRiskPct:       cfg.MaxRiskPct,
		MaxDrawdownPct:   cfg.MaxDrawdownPct,
		MinRiskReward:    cfg.MinRiskReward,
		MaxOpenPositions: cfg.MaxOpenPositions,
		MinOrderSize:     cfg.MinOrderSize,
		MaxOrderSize:     cfg.MaxOrderSize,
		QtyPrecision:     cfg.QtyPrecision,
	}, kill, drawdown, snapshots)

	svc := risk.NewService(engine, b, logger)
	svc.Register()

	monitor := risk.NewMonitor(cfg.MonitorInterval, cfg.MaxDrawdownPct, cfg.CacheTimeout,
		snapshots, drawdown, kill, cacheStore, b, logger)

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

	go monitor.Run(runCtx)

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

	logger.Info("risk-engine service stopped")
}
