package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/cache"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
	"github.com/Dev0031/QuantTrader-sub000/internal/observability"
)

// Mode is the cascade's provider selection state.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
	ModeDegraded Mode = "degraded"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 120 * time.Second
)

// Config tunes the ingestion cascade.
type Config struct {
	Symbols []string

	// FailureThreshold consecutive failures demote Primary to
	// Fallback; twice that demotes Fallback to Degraded.
	FailureThreshold int

	PollInterval time.Duration
	PriceTTL     time.Duration
	CacheTimeout time.Duration
}

// Service runs the ingestion loop: it keeps a live tick stream via the
// provider cascade, publishes normalized ticks on market-ticks, and
// mirrors the latest price and tick to the shared cache.
type Service struct {
	cfg    Config
	stream StreamProvider
	poll   PollProvider
	bus    bus.Bus
	cache  cache.Store
	logger *zap.Logger

	mu       sync.RWMutex
	mode     Mode
	failures int
	lastGood map[string]event.Tick
}

// NewService creates the ingestion service.
func NewService(cfg Config, stream StreamProvider, poll PollProvider, b bus.Bus, store cache.Store, logger *zap.Logger) *Service {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Service{
		cfg:      cfg,
		stream:   stream,
		poll:     poll,
		bus:      b,
		cache:    store,
		logger:   logger,
		mode:     ModePrimary,
		lastGood: make(map[string]event.Tick),
	}
}

// Mode returns the current provider selection.
func (s *Service) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Failures returns the consecutive failure count.
func (s *Service) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Run drives the cascade until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch s.Mode() {
		case ModePrimary:
			clean := s.runStream(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if clean {
				backoff = initialBackoff
			}
			s.recordFailure(ctx)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}

		case ModeFallback:
			s.runPoll(ctx)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.PollInterval):
			}

		case ModeDegraded:
			// Keep probing the fallback for recovery; until then
			// republish last-known-good ticks as stale data.
			if !s.runPoll(ctx) {
				s.publishStale(ctx)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.PollInterval):
			}
		}
	}
}

// runStream runs one streaming connection. It reports whether the
// connection was clean (delivered at least one tick) so the caller can
// reset the reconnect backoff.
func (s *Service) runStream(ctx context.Context) bool {
	out := make(chan event.Tick, 256)
	errCh := make(chan error, 1)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		errCh <- s.stream.Stream(streamCtx, s.cfg.Symbols, out)
	}()

	clean := false
	for {
		select {
		case <-ctx.Done():
			<-errCh
			return clean
		case tick := <-out:
			clean = true
			s.handleTick(ctx, tick, s.stream.Name())
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("stream provider failed",
					zap.String("provider", s.stream.Name()),
					zap.Error(err),
				)
			}
			// Drain ticks raced with the error.
			for {
				select {
				case tick := <-out:
					clean = true
					s.handleTick(ctx, tick, s.stream.Name())
				default:
					return clean
				}
			}
		}
	}
}

// runPoll performs one polling cycle, reporting success.
func (s *Service) runPoll(ctx context.Context) bool {
	ticks, err := s.poll.Poll(ctx, s.cfg.Symbols)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("poll provider failed",
				zap.String("provider", s.poll.Name()),
				zap.Error(err),
			)
		}
		s.recordFailure(ctx)
		return false
	}

	for _, tick := range ticks {
		s.handleTick(ctx, tick, s.poll.Name())
	}
	return true
}

// handleTick publishes a tick and mirrors it to the cache. Any
// successful tick resets the failure counter and reverts provider
// selection to Primary for the next cycle.
func (s *Service) handleTick(ctx context.Context, tick event.Tick, provider string) {
	if err := s.bus.Publish(ctx, event.TopicMarketTicks, tick.Symbol, tick); err != nil {
		s.logger.Error("failed to publish tick",
			zap.String("symbol", tick.Symbol),
			zap.Error(err),
		)
	}

	s.writeCache(ctx, tick)
	observability.TicksTotal.WithLabelValues(tick.Symbol, provider).Inc()

	s.mu.Lock()
	s.lastGood[tick.Symbol] = tick
	s.failures = 0
	prev := s.mode
	s.mode = ModePrimary
	s.mu.Unlock()

	if prev != ModePrimary {
		s.publishHealth(ctx, event.HealthOK, fmt.Sprintf("recovered via %s", provider))
		s.setModeGauge(ModePrimary)
		s.logger.Info("market data recovered",
			zap.String("from", string(prev)),
			zap.String("provider", provider),
		)
	}
}

func (s *Service) writeCache(ctx context.Context, tick event.Tick) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()

	price := strconv.FormatFloat(tick.Price, 'f', -1, 64)
	if err := s.cache.Set(cctx, cache.PriceKey(tick.Symbol), price, s.cfg.PriceTTL); err != nil {
		s.logger.Error("failed to cache price", zap.String("symbol", tick.Symbol), zap.Error(err))
		return
	}

	data, err := json.Marshal(tick)
	if err != nil {
		s.logger.Error("failed to marshal tick", zap.Error(err))
		return
	}
	if err := s.cache.Set(cctx, cache.TickKey(tick.Symbol), string(data), s.cfg.PriceTTL); err != nil {
		s.logger.Error("failed to cache tick", zap.String("symbol", tick.Symbol), zap.Error(err))
	}
}

// recordFailure bumps the consecutive failure counter and demotes the
// provider selection at the configured thresholds. The health event is
// published once per transition, not per retry.
func (s *Service) recordFailure(ctx context.Context) {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	prev := s.mode

	var next Mode
	switch {
	case failures >= 2*s.cfg.FailureThreshold:
		next = ModeDegraded
	case failures >= s.cfg.FailureThreshold:
		next = ModeFallback
	default:
		next = prev
	}
	// The cascade only ever demotes on failure.
	if prev == ModeDegraded {
		next = ModeDegraded
	}
	s.mode = next
	s.mu.Unlock()

	if next != prev {
		s.logger.Warn("market data provider demoted",
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
			zap.Int("consecutive_failures", failures),
		)
		s.publishHealth(ctx, event.HealthDegraded,
			fmt.Sprintf("provider cascade moved to %s after %d consecutive failures", next, failures))
		s.setModeGauge(next)
	}
}

// publishStale republishes the last-known-good ticks. The cache TTL is
// deliberately not refreshed so readers can detect staleness.
func (s *Service) publishStale(ctx context.Context) {
	s.mu.RLock()
	ticks := make([]event.Tick, 0, len(s.lastGood))
	for _, t := range s.lastGood {
		ticks = append(ticks, t)
	}
	s.mu.RUnlock()

	for _, tick := range ticks {
		if err := s.bus.Publish(ctx, event.TopicMarketTicks, tick.Symbol, tick); err != nil {
			s.logger.Error("failed to publish stale tick",
				zap.String("symbol", tick.Symbol),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) publishHealth(ctx context.Context, status, detail string) {
	he := event.HealthEvent{
		EventID:      uuid.New().String(),
		Component:    "marketdata",
		Status:       status,
		Detail:       detail,
		TsUnixMillis: time.Now().UnixMilli(),
	}
	if err := s.bus.Publish(ctx, event.TopicSystemHealth, he.Component, he); err != nil {
		s.logger.Error("failed to publish health event", zap.Error(err))
	}
}

func (s *Service) setModeGauge(active Mode) {
	for _, m := range []Mode{ModePrimary, ModeFallback, ModeDegraded} {
		v := 0.0
		if m == active {
			v = 1.0
		}
		observability.ProviderMode.WithLabelValues(string(m)).Set(v)
	}
}
