package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerState mirrors the tri-state of the underlying breaker so
// other components can react to transitions without importing the
// breaker library.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// ErrBreakerOpen is returned when a call fails fast because the
// breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes when the breaker trips and how long it cools down.
type BreakerConfig struct {
	Name string

	// FailureRatio trips the breaker once exceeded within a window,
	// but only after MinSamples requests have been observed.
	FailureRatio float64
	MinSamples   int

	// Cooldown is how long the breaker stays open before half-opening
	// to probe recovery.
	Cooldown time.Duration
}

// Breaker wraps a circuit breaker around one external boundary and
// exposes its state transitions.
type Breaker struct {
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
	onChange func(from, to BreakerState)
}

// NewBreaker creates a breaker. onChange (optional) observes every
// state transition; it is invoked from the breaker's own goroutine,
// so it must not call back into the breaker.
func NewBreaker(cfg BreakerConfig, logger *zap.Logger, onChange func(from, to BreakerState)) *Breaker {
	b := &Breaker{logger: logger, onChange: onChange}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // single probe in half-open
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinSamples) {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState, toState := mapState(from), mapState(to)
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", string(fromState)),
				zap.String("to", string(toState)),
			)
			if b.onChange != nil {
				b.onChange(fromState, toState)
			}
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute runs fn through the breaker. An open breaker returns
// ErrBreakerOpen without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	return mapState(b.cb.State())
}

func mapState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}
