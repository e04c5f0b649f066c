package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/Strob0t/sddflow/internal/adapter/postgres"
	"github.com/Strob0t/sddflow/internal/config"
	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
)

// setupQueue runs the migrations and returns a queue for a fresh feature.
func setupQueue(t *testing.T) *postgres.QueueStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	if v, err := postgres.MigrationVersion(ctx, dsn); err != nil || v < 1 {
		t.Fatalf("migration version %d: %v", v, err)
	}

	pool, err := postgres.Open(ctx, config.Postgres{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewQueueStore(pool, "feat-"+uuid.NewString()[:8])
}

func TestQueueStoreLifecycle(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	first := &humanqueue.Item{QueueID: humanqueue.NewID(), Phase: "design-l1", Route: "HUMAN_QUEUE", Status: humanqueue.StatusPending}
	second := &humanqueue.Item{QueueID: humanqueue.NewID(), Phase: "design-l2", Route: "HUMAN_QUEUE", Status: humanqueue.StatusPending}
	for _, it := range []*humanqueue.Item{first, second} {
		if err := q.Append(ctx, it); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	items, err := q.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].QueueID != first.QueueID {
		t.Fatalf("unexpected order %+v", items)
	}

	resolved, err := q.Update(ctx, first.QueueID, func(it *humanqueue.Item) error {
		return it.Resolve("GO", "alice", "ok", "t")
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != humanqueue.StatusResolved {
		t.Fatalf("unexpected status %s", resolved.Status)
	}

	_, err = q.Update(ctx, first.QueueID, func(it *humanqueue.Item) error {
		return it.Resolve("NO_GO", "bob", "late", "t2")
	})
	if !errors.Is(err, humanqueue.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	if _, err := q.Update(ctx, "hq-missing", func(*humanqueue.Item) error { return nil }); !errors.Is(err, humanqueue.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}
