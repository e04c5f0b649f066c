// Package tiered layers an in-process cache over a shared remote cache.
package tiered

import (
	"context"
	"time"

	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/cache"
)

// Cache reads L1 first and falls back to L2, backfilling L1 on an L2 hit.
// The L2 is shared between processes and may be unavailable: its failures
// are logged and behave like misses, so callers always get the L1 result.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New creates a tiered cache. l1Expire bounds how long backfilled entries
// stay in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get returns the value of key from the first level holding it.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Debug("l2 cache get failed", "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes both levels. Only an L1 failure is returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		logger.FromContext(ctx).Debug("l2 cache set failed", "error", err)
	}
	return nil
}

// Delete removes key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}
