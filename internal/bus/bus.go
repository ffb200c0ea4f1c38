// Package bus provides the publish/subscribe fabric the trading
// components communicate through. Two implementations exist: an
// in-process bus for single-binary deployments (at-most-once,
// per-subscriber ordered, non-durable) and a Kafka-backed bus for
// multi-process deployments (at-least-once, durable, competing
// consumers per group). Handlers must be idempotent under the
// Kafka bus.
package bus

import "context"

// Handler processes one message from a topic. A non-nil error causes
// redelivery on the Kafka bus and is logged and swallowed on the
// in-process bus.
type Handler func(ctx context.Context, topic, key string, payload []byte) error

// Bus is the topic-based publish/subscribe contract.
type Bus interface {
	// Publish marshals v to JSON and publishes it on topic. Key is
	// used for partitioning (per-key ordering) on the Kafka bus.
	Publish(ctx context.Context, topic, key string, v any) error

	// Subscribe registers a handler for a topic. Must be called
	// before Run.
	Subscribe(topic string, h Handler)

	// Run drives message dispatch until the context is canceled.
	Run(ctx context.Context) error

	// Close releases the underlying resources.
	Close()
}
