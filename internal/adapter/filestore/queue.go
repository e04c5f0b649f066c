package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/port/queuestore"
)

// Queue is the file backed human queue: a JSON array of items rewritten as a
// whole on every change.
type Queue struct {
	path string
	mu   sync.Mutex
}

var _ queuestore.Store = (*Queue)(nil)

// NewQueue returns the queue stored at path.
func NewQueue(path string) *Queue {
	return &Queue{path: path}
}

// Location returns the queue file path.
func (q *Queue) Location() string { return q.path }

// List returns every item. A missing file is an empty queue.
func (q *Queue) List(_ context.Context) ([]*humanqueue.Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Append adds an item at the end of the queue.
func (q *Queue) Append(_ context.Context, item *humanqueue.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return err
	}
	items = append(items, item)
	return q.save(items)
}

// Update applies fn to one item and rewrites the file when fn succeeds.
func (q *Queue) Update(_ context.Context, queueID string, fn func(*humanqueue.Item) error) (*humanqueue.Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return nil, err
	}
	item, err := humanqueue.Find(items, queueID)
	if err != nil {
		return nil, err
	}
	if err := fn(item); err != nil {
		return nil, err
	}
	if err := q.save(items); err != nil {
		return nil, err
	}
	return item, nil
}

func (q *Queue) load() ([]*humanqueue.Item, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*humanqueue.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", q.path, err)
	}
	var items []*humanqueue.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode queue %s: %w", q.path, err)
	}
	if items == nil {
		items = []*humanqueue.Item{}
	}
	return items, nil
}

func (q *Queue) save(items []*humanqueue.Item) error {
	if err := AtomicWriteJSON(q.path, items); err != nil {
		return fmt.Errorf("write queue %s: %w", q.path, err)
	}
	return nil
}
