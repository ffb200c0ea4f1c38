package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired key should read as absent")
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, _ := s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_ExpireShortensTTL(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Hour))
	require.NoError(t, s.Expire(ctx, "k", 20*time.Millisecond))

	v, ok, _ := s.Get(ctx, "k")
	require.True(t, ok, "value should survive until the shortened TTL passes")
	assert.Equal(t, "v", v)

	time.Sleep(50 * time.Millisecond)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)

	// Expiring a missing key is a no-op.
	assert.NoError(t, s.Expire(ctx, "ghost", time.Second))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "price:latest:BTCUSDT", PriceKey("BTCUSDT"))
	assert.Equal(t, "tick:latest:BTCUSDT", TickKey("BTCUSDT"))
	assert.Equal(t, "position:open:BTCUSDT", PositionKey("BTCUSDT"))
	assert.Equal(t, "order:active:abc", OrderKey("abc"))
}
