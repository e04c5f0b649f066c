package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/port/queuestore"
)

// QueueStore implements queuestore.Store for one feature. Items are stored as
// JSONB next to the columns used for filtering.
type QueueStore struct {
	pool    *pgxpool.Pool
	feature string
}

var _ queuestore.Store = (*QueueStore)(nil)

// NewQueueStore returns the queue of the given feature.
func NewQueueStore(pool *pgxpool.Pool, feature string) *QueueStore {
	return &QueueStore{pool: pool, feature: feature}
}

// Location identifies the backing table and feature.
func (s *QueueStore) Location() string {
	return "postgres:human_queue_items/" + s.feature
}

// List returns the feature's items in creation order.
func (s *QueueStore) List(ctx context.Context) ([]*humanqueue.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item FROM human_queue_items WHERE feature = $1 ORDER BY seq ASC`, s.feature)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	items := []*humanqueue.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Append inserts a new item.
func (s *QueueStore) Append(ctx context.Context, item *humanqueue.Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queue item %s: %w", item.QueueID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO human_queue_items (feature, queue_id, phase, status, item)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.feature, item.QueueID, item.Phase, string(item.Status), payload)
	if err != nil {
		return fmt.Errorf("append queue item %s: %w", item.QueueID, err)
	}
	return nil
}

// Update locks the row, applies fn and writes the result in one transaction.
func (s *QueueStore) Update(ctx context.Context, queueID string, fn func(*humanqueue.Item) error) (*humanqueue.Item, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT item FROM human_queue_items WHERE feature = $1 AND queue_id = $2 FOR UPDATE`,
		s.feature, queueID)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("queue_id not found: %s: %w", queueID, humanqueue.ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load queue item %s: %w", queueID, err)
	}

	if err := fn(item); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode queue item %s: %w", queueID, err)
	}
	tag, err := tx.Exec(ctx,
		`UPDATE human_queue_items SET status = $3, item = $4, updated_at = now()
		 WHERE feature = $1 AND queue_id = $2`,
		s.feature, queueID, string(item.Status), payload)
	if err != nil {
		return nil, fmt.Errorf("update queue item %s: %w", queueID, err)
	}
	if tag.RowsAffected() != 1 {
		return nil, fmt.Errorf("update queue item %s: %w", queueID, humanqueue.ErrItemNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit queue item %s: %w", queueID, err)
	}
	return item, nil
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (*humanqueue.Item, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	var it humanqueue.Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, fmt.Errorf("decode queue item: %w", err)
	}
	return &it, nil
}
