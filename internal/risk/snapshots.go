package risk

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/bus"
	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// BusSnapshots holds the latest portfolio snapshot received over the
// bus. It is the SnapshotSource for deployments where the snapshot
// builder runs in another process. A snapshot older than MaxAge is
// treated as absent, which fails risk evaluation closed.
type BusSnapshots struct {
	mu     sync.RWMutex
	latest event.PortfolioSnapshot
	has    bool

	maxAge time.Duration
	logger *zap.Logger
}

// NewBusSnapshots creates a bus-fed snapshot source.
func NewBusSnapshots(maxAge time.Duration, logger *zap.Logger) *BusSnapshots {
	return &BusSnapshots{maxAge: maxAge, logger: logger}
}

// Register subscribes to the portfolio snapshot topic.
func (s *BusSnapshots) Register(b bus.Bus) {
	b.Subscribe(event.TopicPortfolio, s.handleSnapshot)
}

func (s *BusSnapshots) handleSnapshot(ctx context.Context, _ string, key string, payload []byte) error {
	var snap event.PortfolioSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		s.logger.Error("malformed portfolio snapshot, skipping", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	// Out-of-order redelivery must not roll the snapshot back.
	if !s.has || snap.TsUnixMillis >= s.latest.TsUnixMillis {
		s.latest = snap
		s.has = true
	}
	s.mu.Unlock()
	return nil
}

// Latest implements SnapshotSource.
func (s *BusSnapshots) Latest(ctx context.Context) (event.PortfolioSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.has {
		return event.PortfolioSnapshot{}, false
	}
	age := time.Since(time.UnixMilli(s.latest.TsUnixMillis))
	if s.maxAge > 0 && age > s.maxAge {
		return event.PortfolioSnapshot{}, false
	}
	return s.latest, true
}
