package filestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Strob0t/sddflow/internal/adapter/filestore"
	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
)

func TestWatchReturnsAfterQueueChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review", "human_review_queue.json")
	q := filestore.NewQueue(path)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := q.Append(ctx, &humanqueue.Item{QueueID: "hq-1", Phase: "design-l1", Status: humanqueue.StatusPending}); err != nil {
		t.Fatal(err)
	}

	checks := 0
	check := func() (bool, error) {
		checks++
		items, err := q.List(ctx)
		if err != nil {
			return false, err
		}
		it, err := humanqueue.Find(items, "hq-1")
		if err != nil {
			return false, err
		}
		return it.Status.IsTerminal(), nil
	}

	done := make(chan error, 1)
	go func() { done <- filestore.Watch(ctx, path, check) }()

	time.Sleep(50 * time.Millisecond)
	if _, err := q.Update(ctx, "hq-1", func(it *humanqueue.Item) error {
		return it.Resolve("GO", "alice", "ok", "now")
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("watch did not observe the change")
	}
}

func TestWatchReturnsImmediatelyWhenDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := filestore.Watch(context.Background(), path, func() (bool, error) { return true, nil }); err != nil {
		t.Fatalf("watch: %v", err)
	}
}

func TestWatchHonoursCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := filestore.Watch(ctx, path, func() (bool, error) { return false, nil })
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
