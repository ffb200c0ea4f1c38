// Package cache is the shared latest-state cache downstream readers
// use to detect staleness: a missing key means the writer stopped
// refreshing it within the TTL.
package cache

import (
	"context"
	"time"
)

// Store is the shared cache contract. Values are strings: plain
// decimals for price keys, JSON for structured keys.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error

	// Expire shortens the remaining TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
