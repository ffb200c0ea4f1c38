package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBreaker_OpensAfterFailures(t *testing.T) {
	var transitions []BreakerState
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureRatio: 0.5,
		MinSamples:   2,
		Cooldown:     time.Minute,
	}, zap.NewNop(), func(from, to BreakerState) {
		transitions = append(transitions, to)
	})

	assert.Equal(t, BreakerClosed, b.State())

	fail := errors.New("downstream failure")
	require.Error(t, b.Execute(func() error { return fail }))
	assert.Equal(t, BreakerClosed, b.State(), "one sample is below MinSamples")

	require.Error(t, b.Execute(func() error { return fail }))
	assert.Equal(t, BreakerOpen, b.State())
	require.NotEmpty(t, transitions)
	assert.Equal(t, BreakerOpen, transitions[len(transitions)-1])

	// Open breaker fails fast without running fn.
	ran := false
	err := b.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, ran, "open breaker must not invoke fn")
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureRatio: 0.5,
		MinSamples:   1,
		Cooldown:     20 * time.Millisecond,
	}, zap.NewNop(), nil)

	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(40 * time.Millisecond)

	// Cooldown elapsed: a single probe is admitted.
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, BreakerClosed, b.State(), "successful probe should close the breaker")
}

func TestBreaker_SuccessKeepsClosed(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		FailureRatio: 0.5,
		MinSamples:   2,
		Cooldown:     time.Minute,
	}, zap.NewNop(), nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Execute(func() error { return nil }))
	}
	assert.Equal(t, BreakerClosed, b.State())
}
