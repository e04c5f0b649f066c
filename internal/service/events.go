package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/broadcast"
	"github.com/Strob0t/sddflow/internal/port/messagequeue"
	"github.com/Strob0t/sddflow/internal/resilience"
)

// Event types broadcast to WebSocket clients. They mirror the NATS subjects.
const (
	EventTaskStarted    = "task.started"
	EventTaskFinished   = "task.finished"
	EventRouteEvaluated = "route.evaluated"
	EventQueueEnqueued  = "queue.enqueued"
	EventQueueAcked     = "queue.acked"
	EventQueueResolved  = "queue.resolved"
)

var eventSubjects = map[string]string{
	EventTaskStarted:    messagequeue.SubjectTaskStarted,
	EventTaskFinished:   messagequeue.SubjectTaskFinished,
	EventRouteEvaluated: messagequeue.SubjectRouteEvaluated,
	EventQueueEnqueued:  messagequeue.SubjectQueueEnqueued,
	EventQueueAcked:     messagequeue.SubjectQueueAcked,
	EventQueueResolved:  messagequeue.SubjectQueueResolved,
}

// Events fans workflow events out to an optional WebSocket hub and an
// optional message queue. Publishing is best effort: failures are logged and
// never change the outcome of the operation that emitted the event.
type Events struct {
	hub     broadcast.Broadcaster
	queue   messagequeue.Queue
	breaker *resilience.Breaker
}

// NewEvents creates an event fan-out. Any collaborator may be nil.
func NewEvents(hub broadcast.Broadcaster, queue messagequeue.Queue, breaker *resilience.Breaker) *Events {
	return &Events{hub: hub, queue: queue, breaker: breaker}
}

// Emit broadcasts and publishes one event.
func (e *Events) Emit(ctx context.Context, eventType string, payload any) {
	if e == nil {
		return
	}
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, eventType, payload)
	}
	if e.queue == nil {
		return
	}
	subject, ok := eventSubjects[eventType]
	if !ok {
		slog.Warn("no subject for event", "type", eventType)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event", "type", eventType, "error", err)
		return
	}
	publish := func() error { return e.queue.Publish(ctx, subject, data) }
	if e.breaker != nil {
		err = e.breaker.Execute(publish)
	} else {
		err = publish()
	}
	if err != nil {
		log := logger.FromContext(ctx).With("subject", subject)
		if e.breaker != nil {
			log = log.With("breaker_state", e.breaker.State())
		}
		log.Warn("event publish failed", "error", err)
	}
}

// TaskStarted emits task.started.
func (e *Events) TaskStarted(ctx context.Context, featureID, taskID, agent string) {
	e.Emit(ctx, EventTaskStarted, messagequeue.TaskEventPayload{
		Feature:   featureID,
		TaskID:    taskID,
		Agent:     agent,
		Status:    "RUNNING",
		Timestamp: feature.Now(),
	})
}

// TaskFinished emits task.finished.
func (e *Events) TaskFinished(ctx context.Context, featureID string, entry feature.ExecutionEntry) {
	e.Emit(ctx, EventTaskFinished, messagequeue.TaskEventPayload{
		Feature:   featureID,
		TaskID:    entry.TaskID,
		Agent:     entry.Agent,
		Status:    entry.Status,
		ExitCode:  entry.ExitCode,
		ErrorType: entry.ErrorKind,
		Summary:   entry.Summary,
		Timestamp: entry.Timestamp,
	})
}
