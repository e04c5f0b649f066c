// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FileKey builds the key of a file read. Size and modification time are part
// of the key, so a rewritten artifact is never served stale.
func FileKey(path string, size int64, modTime time.Time) string {
	return fmt.Sprintf("file:%s:%d:%d", path, size, modTime.UnixNano())
}
