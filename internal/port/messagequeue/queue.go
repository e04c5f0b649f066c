// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// RequestHandler answers a request received on a reply subject.
type RequestHandler func(ctx context.Context, subject string, data []byte) ([]byte, error)

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Request sends data and waits for a single reply until ctx expires.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Respond answers requests on subject with handler. Responders sharing
	// a subject form a queue group, so each request is answered once.
	Respond(subject string, handler RequestHandler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for NATS subjects used by sddflow. Event subjects are
// persisted in the stream; runtime invocations use core request/reply.
const (
	SubjectTaskStarted  = "sddflow.task.started"
	SubjectTaskFinished = "sddflow.task.finished"

	SubjectRouteEvaluated = "sddflow.route.evaluated"

	SubjectQueueEnqueued = "sddflow.queue.enqueued"
	SubjectQueueAcked    = "sddflow.queue.acked"
	SubjectQueueResolved = "sddflow.queue.resolved"

	SubjectRuntimeInvoke = "sddflow.runtime.invoke" // sddflow.runtime.invoke.{agent}

	// SubjectAll matches every event subject.
	SubjectAll = "sddflow.>"
)

// StreamSubjects lists the subject patterns captured by the event stream.
var StreamSubjects = []string{"sddflow.task.>", "sddflow.route.>", "sddflow.queue.>"}

// DLQSuffix is appended to a subject to form its dead letter subject.
const DLQSuffix = ".dlq"

// InvokeSubject returns the request subject serving an agent.
func InvokeSubject(agent string) string {
	if agent == "" {
		agent = "any"
	}
	return SubjectRuntimeInvoke + "." + agent
}
