// Package ristretto is the in-process artifact cache used by the audit
// aggregator. Entries are keyed by path and modification time, so a stale
// entry is simply never asked for again and ages out by TTL or cost.
package ristretto

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a size-bounded byte cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxCostBytes of keys and values.
func New(maxCostBytes int64) (*Cache, error) {
	// Review verdicts are small; assume ~100 bytes each and keep ten
	// counters per expected entry.
	counters := max(maxCostBytes/100*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c}, nil
}

// NewMB is New with the size given in megabytes.
func NewMB(sizeMB int64) (*Cache, error) {
	return New(sizeMB << 20)
}

// Get returns a copy of the cached value; callers may modify it.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return bytes.Clone(val), true, nil
}

// Set stores a copy of value and waits until it is visible, so a Get right
// after Set hits. Values larger than the cache are dropped.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, bytes.Clone(value), int64(len(key)+len(value)), ttl)
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// HitRatio reports the share of Gets that hit since creation.
func (c *Cache) HitRatio() float64 {
	return c.c.Metrics.Ratio()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
