// Package queuestore defines the persistence port of the human review queue.
package queuestore

import (
	"context"

	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
)

// Store holds the queue items of one feature in creation order. Items are
// never removed.
type Store interface {
	// List returns every item in creation order.
	List(ctx context.Context) ([]*humanqueue.Item, error)

	// Append adds a new item.
	Append(ctx context.Context, item *humanqueue.Item) error

	// Update loads the item, applies fn and persists the result only when fn
	// succeeds. Unknown ids fail with humanqueue.ErrItemNotFound.
	Update(ctx context.Context, queueID string, fn func(*humanqueue.Item) error) (*humanqueue.Item, error)

	// Location describes where the queue lives, for logs and listings.
	Location() string
}
