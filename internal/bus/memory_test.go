package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testMsg struct {
	N int `json:"n"`
}

func TestMemoryBus_DeliversInOrder(t *testing.T) {
	b := NewMemoryBus(zap.NewNop())

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	b.Subscribe("t1", func(ctx context.Context, topic, key string, payload []byte) error {
		var m testMsg
		require.NoError(t, json.Unmarshal(payload, &m))
		mu.Lock()
		got = append(got, m.N)
		n := len(got)
		mu.Unlock()
		if n == 10 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(ctx, "t1", "k", testMsg{N: i}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got, "per-subscriber order must match publish order")
}

func TestMemoryBus_FanOut(t *testing.T) {
	b := NewMemoryBus(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		b.Subscribe("t1", func(ctx context.Context, topic, key string, payload []byte) error {
			wg.Done()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.NoError(t, b.Publish(ctx, "t1", "k", testMsg{N: 1}))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestMemoryBus_NoSubscriberDrops(t *testing.T) {
	b := NewMemoryBus(zap.NewNop())
	// At-most-once: publishing into the void succeeds and drops.
	assert.NoError(t, b.Publish(context.Background(), "nobody", "k", testMsg{N: 1}))
}

func TestMemoryBus_HandlerErrorDoesNotStopDispatch(t *testing.T) {
	b := NewMemoryBus(zap.NewNop())

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})

	b.Subscribe("t1", func(ctx context.Context, topic, key string, payload []byte) error {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		if n == 3 {
			close(done)
		}
		return errors.New("handler failure")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "t1", "k", testMsg{N: i}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch stopped after a handler error")
	}
}

func TestMemoryBus_ClosedRejectsPublish(t *testing.T) {
	b := NewMemoryBus(zap.NewNop())
	b.Close()
	assert.Error(t, b.Publish(context.Background(), "t1", "k", testMsg{N: 1}))
}
