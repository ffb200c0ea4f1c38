package risk

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

func snapPayload(t *testing.T, equity float64, ts int64) []byte {
	t.Helper()
	data, err := json.Marshal(event.PortfolioSnapshot{TotalEquity: equity, TsUnixMillis: ts})
	require.NoError(t, err)
	return data
}

func TestBusSnapshots_LatestWins(t *testing.T) {
	s := NewBusSnapshots(time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := s.Latest(ctx)
	assert.False(t, ok, "no snapshot yet")

	now := time.Now().UnixMilli()
	require.NoError(t, s.handleSnapshot(ctx, event.TopicPortfolio, "portfolio", snapPayload(t, 10000, now)))

	snap, ok := s.Latest(ctx)
	require.True(t, ok)
	assert.Equal(t, 10000.0, snap.TotalEquity)

	// An older redelivered snapshot must not roll state back.
	require.NoError(t, s.handleSnapshot(ctx, event.TopicPortfolio, "portfolio", snapPayload(t, 5000, now-10000)))
	snap, ok = s.Latest(ctx)
	require.True(t, ok)
	assert.Equal(t, 10000.0, snap.TotalEquity)
}

func TestBusSnapshots_StaleReadsAsAbsent(t *testing.T) {
	s := NewBusSnapshots(50*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	old := time.Now().Add(-time.Second).UnixMilli()
	require.NoError(t, s.handleSnapshot(ctx, event.TopicPortfolio, "portfolio", snapPayload(t, 10000, old)))

	_, ok := s.Latest(ctx)
	assert.False(t, ok, "a stale snapshot must fail closed")
}

func TestBusSnapshots_MalformedPayloadIgnored(t *testing.T) {
	s := NewBusSnapshots(time.Minute, zap.NewNop())
	assert.NoError(t, s.handleSnapshot(context.Background(), event.TopicPortfolio, "portfolio", []byte("{bad")))
	_, ok := s.Latest(context.Background())
	assert.False(t, ok)
}
