package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
)

// CacheSnapshots reads the latest portfolio snapshot from the shared
// cache. Key absence (TTL expiry) means no snapshot is available.
type CacheSnapshots struct {
	Cache   cache.Store
	Timeout time.Duration
	Logger  *zap.Logger
}

// Latest implements SnapshotSource.
func (c *CacheSnapshots) Latest(ctx context.Context) (event.PortfolioSnapshot, bool) {
	cctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	raw, ok, err := c.Cache.Get(cctx, cache.SnapshotKey)
	if err != nil {
		c.Logger.Warn("failed to read portfolio snapshot", zap.Error(err))
		return event.PortfolioSnapshot{}, false
	}
	if !ok {
		return event.PortfolioSnapshot{}, false
	}

	var snapshot event.PortfolioSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		c.Logger.Warn("failed to decode portfolio snapshot", zap.Error(err))
		return event.PortfolioSnapshot{}, false
	}
	return snapshot, true
}

// Service connects the risk engine to the bus: trade-signals in,
// approved-orders or risk-alerts out.
type Service struct {
	engine *Engine
	bus    bus.Bus
	logger *zap.Logger
}

// NewService creates the bus-facing risk service.
func NewService(engine *Engine, b bus.Bus, logger *zap.Logger) *Service {
	return &Service{engine: engine, bus: b, logger: logger}
}

// Register subscribes the service to the trade-signals topic and to
// kill-switch commands.
func (s *Service) Register() {
	s.bus.Subscribe(event.TopicTradeSignals, s.handleSignal)
	s.bus.Subscribe(event.TopicKillSwitch, s.handleKillSwitch)
}

// handleKillSwitch applies kill-switch events, including the manual
// deactivation an operator publishes to resume trading.
func (s *Service) handleKillSwitch(ctx context.Context, _ string, _ string, payload []byte) error {
	var ks event.KillSwitchEvent
	if err := json.Unmarshal(payload, &ks); err != nil {
		s.logger.Error("malformed kill-switch event, skipping", zap.Error(err))
		return nil
	}

	if ks.Active {
		if s.engine.kill.Activate(ks.Reason) {
			s.logger.Error("kill switch activated",
				zap.String("reason", ks.Reason),
				zap.Float64("drawdown_pct", ks.DrawdownPct),
			)
		}
		return nil
	}

	s.engine.kill.Deactivate()
	s.logger.Warn("kill switch deactivated by operator")
	return nil
}

// handleSignal evaluates one signal. Rejections are business outcomes,
// not errors; the handler only errors on malformed payloads or
// publish failures so broker-mode redelivery stays meaningful.
func (s *Service) handleSignal(ctx context.Context, _ string, key string, payload []byte) error {
	var sig event.TradeSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		s.logger.Error("failed to unmarshal trade signal",
			zap.String("key", key),
			zap.Error(err),
		)
		// Malformed payloads will never parse; don't redeliver.
		return nil
	}

	result := s.engine.EvaluateSignal(ctx, sig)
	if !result.Approved {
		observability.SignalsEvaluated.WithLabelValues("rejected").Inc()
		observability.SignalRejections.WithLabelValues(result.Reason).Inc()

		s.logger.Info("signal rejected",
			zap.String("signal_id", sig.EventID),
			zap.String("symbol", sig.Symbol),
			zap.String("reason", result.Reason),
		)

		alert := event.RiskAlert{
			EventID:      uuid.New().String(),
			SignalID:     sig.EventID,
			Symbol:       sig.Symbol,
			Reason:       result.Reason,
			TsUnixMillis: time.Now().UnixMilli(),
		}
		if err := s.bus.Publish(ctx, event.TopicRiskAlerts, sig.Symbol, alert); err != nil {
			return fmt.Errorf("failed to publish risk alert: %w", err)
		}
		return nil
	}

	observability.SignalsEvaluated.WithLabelValues("approved").Inc()
	s.logger.Info("signal approved",
		zap.String("signal_id", sig.EventID),
		zap.String("symbol", sig.Symbol),
		zap.String("order_id", result.Order.ID),
		zap.Float64("quantity", result.Order.Quantity),
	)

	if err := s.bus.Publish(ctx, event.TopicApprovedOrders, result.Order.Symbol, result.Order); err != nil {
		return fmt.Errorf("failed to publish approved order: %w", err)
	}
	return nil
}
