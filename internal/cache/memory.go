package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process TTL cache for single-binary deployments.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a memory store that sweeps expired keys
// every cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		c: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Set stores value under key for ttl.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// Get returns the value for key, reporting absence (expired or never
// written) via the bool.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Expire rewrites key with a shorter TTL. Missing keys are a no-op.
func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	if v, ok := m.c.Get(key); ok {
		m.c.Set(key, v, ttl)
	}
	return nil
}
