// Package ristretto implements the cache port using dgraph-io/ristretto
// as a bounded in-process TTL cache. Its main consumer is the channel
// webhook dedup set.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache behind the cache port.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed cache. maxCostBytes is the maximum total
// size of cached values in bytes.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value in the cache with the given TTL. Entries cost their
// byte length, so the dedup set stays bounded under webhook replay storms.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1 // dedup markers store empty values
	}
	c.c.SetWithTTL(key, value, cost, ttl)
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
