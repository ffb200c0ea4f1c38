package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "journal_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := Open(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testOrder(id string, status event.OrderStatus, created int64) event.Order {
	return event.Order{
		ID:                id,
		ExchangeOrderID:   "x-" + id,
		Symbol:            "BTCUSDT",
		Side:              event.SideBuy,
		Type:              event.OrderTypeMarket,
		Quantity:          1,
		Status:            status,
		FilledQuantity:    1,
		FilledPrice:       50000,
		Commission:        50,
		CreatedUnixMillis: created,
		UpdatedUnixMillis: created,
	}
}

func TestSaveOrder_Upsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	order := testOrder("ord-1", event.StatusNew, 1000)
	require.NoError(t, store.SaveOrder(ctx, order))

	order.Status = event.StatusFilled
	order.UpdatedUnixMillis = 2000
	require.NoError(t, store.SaveOrder(ctx, order))

	orders, err := store.ListOrders(ctx, OrderFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, orders, 1, "same id should upsert, not duplicate")
	assert.Equal(t, event.StatusFilled, orders[0].Status)
	assert.Equal(t, int64(2000), orders[0].UpdatedUnixMillis)
}

func TestListOrders_Filters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveOrder(ctx, testOrder("ord-1", event.StatusFilled, 1000)))
	require.NoError(t, store.SaveOrder(ctx, testOrder("ord-2", event.StatusRejected, 2000)))
	eth := testOrder("ord-3", event.StatusFilled, 3000)
	eth.Symbol = "ETHUSDT"
	require.NoError(t, store.SaveOrder(ctx, eth))

	filled, err := store.ListOrders(ctx, OrderFilter{Status: event.StatusFilled})
	require.NoError(t, err)
	assert.Len(t, filled, 2)

	btc, err := store.ListOrders(ctx, OrderFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	ranged, err := store.ListOrders(ctx, OrderFilter{FromMillis: 1500, ToMillis: 2500})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "ord-2", ranged[0].ID)

	limited, err := store.ListOrders(ctx, OrderFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "ord-3", limited[0].ID, "newest first")
}

func TestOutbox_EnqueueAndPublish(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	report := event.ExecutionReport{EventID: "evt-1", Mode: "paper"}
	require.NoError(t, store.Enqueue(ctx, "evt-1", event.TopicExecutedOrders, "BTCUSDT", report))
	// Duplicate event ids are absorbed.
	require.NoError(t, store.Enqueue(ctx, "evt-1", event.TopicExecutedOrders, "BTCUSDT", report))

	pending, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, event.TopicExecutedOrders, pending[0].Topic)
	assert.Equal(t, "BTCUSDT", pending[0].Key)

	require.NoError(t, store.MarkPublished(ctx, "evt-1", time.Now().UnixMilli()))

	pending, err = store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkProcessed_Dedup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	dup, err := store.MarkProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, dup, "first sighting is not a duplicate")

	dup, err = store.MarkProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, dup, "second sighting is a duplicate")

	dup, err = store.MarkProcessed(ctx, "evt-2")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRecordFillAndSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(ctx, testOrder("ord-1", event.StatusFilled, 1000)))

	snap := event.PortfolioSnapshot{
		TotalEquity:      10500,
		AvailableBalance: 10000,
		TsUnixMillis:     time.Now().UnixMilli(),
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))
}
