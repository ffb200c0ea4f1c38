// Package marketdata maintains the live tick stream: a streaming
// primary provider, a polling fallback, and a last-known-good
// degraded mode, with normalized ticks published on the bus and
// mirrored to the shared cache.
package marketdata

import (
	"context"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

// StreamProvider is a push-based tick source. Stream blocks on one
// connection: it delivers ticks to out until the connection fails or
// ctx is canceled, then returns. Each call is one connection attempt.
type StreamProvider interface {
	Name() string
	Stream(ctx context.Context, symbols []string, out chan<- event.Tick) error
}

// PollProvider is a pull-based tick source used when streaming fails.
type PollProvider interface {
	Name() string
	Poll(ctx context.Context, symbols []string) ([]event.Tick, error)
}
