// Package nats implements the message queue port using NATS JetStream for
// events and core NATS request/reply for remote runtime invocations.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/messagequeue"
)

// DefaultStream is the JetStream stream holding sddflow events.
const DefaultStream = "SDDFLOW"

const (
	headerRequestID = "X-Request-ID"
	headerFeature   = "X-Sddflow-Feature"
	maxDeliver      = 3
	responderQueue  = "sddflow-workers"
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url, stream string) (*Queue, error) {
	if stream == "" {
		stream = DefaultStream
	}
	nc, err := nats.Connect(url, nats.Name("sddflow"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our event patterns.
	// DLQ subjects are covered by the same wildcards.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: messagequeue.StreamSubjects,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", stream)
	return &Queue{nc: nc, js: js, stream: stream}, nil
}

// Publish sends a message to the given subject. The request ID and feature
// found in ctx travel as headers.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	setHeaders(ctx, msg)

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject. Messages
// failing schema validation go straight to the dead letter subject; handler
// failures are redelivered up to maxDeliver times before they do.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		msgCtx := contextFromHeaders(ctx, msg.Headers())

		if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
			slog.Warn("message failed validation", "subject", msg.Subject(), "error", err)
			q.deadLetter(msgCtx, msg)
			return
		}

		if err := handler(msgCtx, msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
			if md, mdErr := msg.Metadata(); mdErr == nil && md.NumDelivered >= maxDeliver {
				q.deadLetter(msgCtx, msg)
				return
			}
			if nakErr := msg.Nak(); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// deadLetter republishes msg on its DLQ subject and terminates it.
func (q *Queue) deadLetter(ctx context.Context, msg jetstream.Msg) {
	dlq := msg.Subject() + messagequeue.DLQSuffix
	if _, err := q.js.Publish(ctx, dlq, msg.Data()); err != nil {
		slog.Error("nats dlq publish failed", "subject", dlq, "error", err)
	}
	if err := msg.Term(); err != nil {
		slog.Error("nats term failed", "error", err)
	}
}

// Request sends a core NATS request and waits for its reply.
func (q *Queue) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg := nats.NewMsg(subject)
	msg.Data = data
	setHeaders(ctx, msg)

	reply, err := q.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("nats request %s: no worker listening: %w", subject, err)
		}
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return reply.Data, nil
}

// Respond answers requests on subject within the shared worker queue group.
func (q *Queue) Respond(subject string, handler messagequeue.RequestHandler) (func(), error) {
	sub, err := q.nc.QueueSubscribe(subject, responderQueue, func(msg *nats.Msg) {
		ctx := contextFromHeaders(context.Background(), msg.Header)
		if err := messagequeue.Validate(msg.Subject, msg.Data); err != nil {
			slog.Warn("request failed validation", "subject", msg.Subject, "error", err)
			_ = msg.Respond([]byte(`{"success":false,"exit_code":1,"error_type":"INVOCATION_ERROR","summary":"invalid request"}`))
			return
		}
		out, err := handler(ctx, msg.Subject, msg.Data)
		if err != nil {
			slog.Error("request handler failed", "subject", msg.Subject, "error", err)
			return
		}
		if err := msg.Respond(out); err != nil {
			slog.Error("nats respond failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats queue subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Drain gracefully drains all subscriptions and closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

// JetStream returns the JetStream context, used to open KV buckets.
func (q *Queue) JetStream() jetstream.JetStream {
	return q.js
}

func setHeaders(ctx context.Context, msg *nats.Msg) {
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if f := logger.Feature(ctx); f != "" {
		msg.Header.Set(headerFeature, f)
	}
}

func contextFromHeaders(ctx context.Context, h nats.Header) context.Context {
	if h == nil {
		return ctx
	}
	if id := h.Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	if f := h.Get(headerFeature); f != "" {
		ctx = logger.WithFeature(ctx, f)
	}
	return ctx
}
