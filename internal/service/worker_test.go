package service_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/sddflow/internal/port/messagequeue"
	"github.com/Strob0t/sddflow/internal/service"
)

// respondQueue records Respond registrations and cancellations.
type respondQueue struct {
	mu        sync.Mutex
	handlers  map[string]messagequeue.RequestHandler
	cancelled int
}

func (q *respondQueue) Publish(context.Context, string, []byte) error { return nil }

func (q *respondQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *respondQueue) Respond(subject string, h messagequeue.RequestHandler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = map[string]messagequeue.RequestHandler{}
	}
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		q.cancelled++
		q.mu.Unlock()
	}, nil
}

func (q *respondQueue) Request(context.Context, string, []byte) ([]byte, error) {
	return nil, nil
}

func (q *respondQueue) Drain() error      { return nil }
func (q *respondQueue) Close() error      { return nil }
func (q *respondQueue) IsConnected() bool { return true }

func (q *respondQueue) handler(subject string) messagequeue.RequestHandler {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.handlers[subject]
}

func TestWorkerSubjects(t *testing.T) {
	w := service.NewWorkerService(&respondQueue{}, nil)
	if got := w.Subjects(nil); !slices.Equal(got, []string{"sddflow.runtime.invoke.>"}) {
		t.Fatalf("unexpected wildcard subjects %v", got)
	}
	got := w.Subjects([]string{"sdd-ba", "sdd-pe"})
	if !slices.Equal(got, []string{"sddflow.runtime.invoke.sdd-ba", "sddflow.runtime.invoke.sdd-pe"}) {
		t.Fatalf("unexpected subjects %v", got)
	}
}

func TestWorkerServeRespondsUntilCancelled(t *testing.T) {
	q := &respondQueue{}
	w := service.NewWorkerService(q, func(_ context.Context, subject string, data []byte) ([]byte, error) {
		return append([]byte(subject+":"), data...), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx, []string{"sdd-ba"}) }()

	subject := messagequeue.InvokeSubject("sdd-ba")
	deadline := time.Now().Add(2 * time.Second)
	for q.handler(subject) == nil {
		if time.Now().After(deadline) {
			t.Fatal("worker never registered")
		}
		time.Sleep(time.Millisecond)
	}
	out, err := q.handler(subject)(context.Background(), subject, []byte("x"))
	if err != nil || string(out) != subject+":x" {
		t.Fatalf("unexpected reply %q %v", out, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelled != 1 {
		t.Fatalf("expected subscription cancelled, got %d", q.cancelled)
	}
}
