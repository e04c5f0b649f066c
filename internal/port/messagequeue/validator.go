package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	// Map subject to payload struct for structural validation.
	var target any
	required := func() error { return nil }
	switch {
	case subject == SubjectTaskStarted, subject == SubjectTaskFinished:
		p := &TaskEventPayload{}
		target = p
		required = func() error { return need(subject, "task_id", p.TaskID) }
	case subject == SubjectRouteEvaluated:
		p := &RouteEventPayload{}
		target = p
		required = func() error { return need(subject, "phase", p.Phase) }
	case subject == SubjectQueueEnqueued, subject == SubjectQueueAcked, subject == SubjectQueueResolved:
		p := &QueueEventPayload{}
		target = p
		required = func() error { return need(subject, "queue_id", p.QueueID) }
	case strings.HasPrefix(subject, SubjectRuntimeInvoke+"."):
		p := &InvokeRequestPayload{}
		target = p
		required = func() error { return need(subject, "task_id", p.TaskID) }
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return required()
}

func need(subject, field, value string) error {
	if value == "" {
		return fmt.Errorf("schema validation failed for %s: %s is required", subject, field)
	}
	return nil
}
