package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/messagequeue"
	"github.com/Strob0t/sddflow/internal/port/runtime"
)

var errAlwaysFail = errors.New("handler always fails")

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url, DefaultStream)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// rawConsume reads a subject with a plain JetStream consumer, bypassing
// validation, and returns the first payload seen.
func rawConsume(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	c, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}
	out := make(chan []byte, 1)
	var once sync.Once
	cc, err := c.Consume(func(msg jetstream.Msg) {
		once.Do(func() { out <- msg.Data() })
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	t.Cleanup(cc.Stop)
	return out
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	want := messagequeue.TaskEventPayload{Feature: "f", TaskID: "design-l1", Agent: "sdd-architect", Status: "COMPLETED", Timestamp: "t"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu       sync.Mutex
		received *messagequeue.TaskEventPayload
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(ctx, messagequeue.SubjectTaskFinished, func(ctx context.Context, _ string, d []byte) error {
		var got messagequeue.TaskEventPayload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		if got.TaskID == want.TaskID {
			received = &got
			gotReqID = logger.RequestID(ctx)
		}
		mu.Unlock()
		if got.TaskID == want.TaskID {
			once.Do(func() { close(done) })
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	pubCtx := logger.WithRequestID(ctx, "req-abc-123")
	if err := q.Publish(pubCtx, messagequeue.SubjectTaskFinished, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received.Status != want.Status {
		t.Errorf("got %q, want %q", received.Status, want.Status)
	}
	if gotReqID != "req-abc-123" {
		t.Errorf("request ID = %q, want req-abc-123", gotReqID)
	}
}

func TestQueue_InvalidPayloadGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectQueueEnqueued

	dlq := rawConsume(t, q, subject+messagequeue.DLQSuffix)
	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(ctx, subject, []byte("not-json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-dlq:
		if string(got) != "not-json" {
			t.Errorf("DLQ data = %q, want not-json", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
}

func TestQueue_RetryExhaustionGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectQueueAcked

	dlq := rawConsume(t, q, subject+messagequeue.DLQSuffix)
	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error { return errAlwaysFail })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	payload := []byte(`{"feature":"f","queue_id":"hq-retry","phase":"design-l1","status":"ACKED","timestamp":"t"}`)
	if err := q.Publish(ctx, subject, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-dlq:
		if string(got) != string(payload) {
			t.Errorf("DLQ data = %s", got)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
}

func TestQueue_RequestRespond(t *testing.T) {
	q := testConnect(t)

	stop, err := q.Respond(messagequeue.InvokeSubject("sdd-coder"), InvokeHandler(echoAdapter{}))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	defer stop()

	res := NewRuntime(q).Invoke(context.Background(), runtime.Invocation{
		TaskID: "execute-task-1", Agent: "sdd-coder", Command: "build", Timeout: 2 * time.Second,
	})
	if !res.Success || res.Stdout != "execute-task-1:" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !q.IsConnected() {
		t.Error("expected connection to be up")
	}
}
