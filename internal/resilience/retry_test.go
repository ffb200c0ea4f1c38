package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, zap.NewNop(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, zap.NewNop(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("always failing")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	base := errors.New("bad request")
	err := Retry(context.Background(), 5, time.Millisecond, zap.NewNop(), "op", func(ctx context.Context) error {
		calls++
		return Permanent(base)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
	assert.ErrorIs(t, err, base, "the wrapped error should still unwrap")
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Millisecond, zap.NewNop(), "op", func(ctx context.Context) error {
		t.Fatal("fn must not run on a canceled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(Permanent(errors.New("fatal"))))

	// Wrapping preserves permanence.
	wrapped := errors.Join(errors.New("context"), Permanent(errors.New("fatal")))
	assert.False(t, Retryable(wrapped))

	assert.Nil(t, Permanent(nil))
}
