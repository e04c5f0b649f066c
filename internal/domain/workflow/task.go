// Package workflow defines the task graph of a feature: task records, their
// categories and the readiness rules that decide what may run next.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// AllStatuses lists the statuses in reporting order.
var AllStatuses = []Status{StatusReady, StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// IsTerminal returns true if the task finished, successfully or not.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one node of the workflow graph as persisted in workflow.json.
type Task struct {
	ID           string   `json:"-"`
	Status       Status   `json:"status"`
	Dependencies []string `json:"dependencies"`
	Command      string   `json:"command"`

	// Activated re-arms a dormant rework task.
	Activated bool `json:"activated,omitempty"`
	// AwaitingHuman holds a review task until a human queue item is resolved.
	AwaitingHuman bool `json:"awaiting_human,omitempty"`

	AutoCompletedBy string `json:"auto_completed_by,omitempty"`
	HumanResolvedBy string `json:"human_resolved_by,omitempty"`

	category Category
	extra    map[string]json.RawMessage
}

// taskFields mirrors the JSON shape of Task without its custom codec.
type taskFields struct {
	Status          Status   `json:"status"`
	Dependencies    []string `json:"dependencies"`
	Command         string   `json:"command"`
	Activated       bool     `json:"activated,omitempty"`
	AwaitingHuman   bool     `json:"awaiting_human,omitempty"`
	AutoCompletedBy string   `json:"auto_completed_by,omitempty"`
	HumanResolvedBy string   `json:"human_resolved_by,omitempty"`
}

var knownTaskKeys = map[string]bool{
	"status": true, "dependencies": true, "command": true, "activated": true,
	"awaiting_human": true, "auto_completed_by": true, "human_resolved_by": true,
}

// Category returns the category computed when the task joined its graph.
func (t *Task) Category() Category { return t.category }

// Agent returns the agent responsible for the task.
func (t *Task) Agent() string { return AgentFor(t.ID) }

// UnmarshalJSON decodes a task record and keeps unknown keys for round-tripping.
func (t *Task) UnmarshalJSON(data []byte) error {
	var f taskFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if knownTaskKeys[k] {
			delete(raw, k)
		}
	}

	t.Status = f.Status
	t.Dependencies = f.Dependencies
	t.Command = f.Command
	t.Activated = f.Activated
	t.AwaitingHuman = f.AwaitingHuman
	t.AutoCompletedBy = f.AutoCompletedBy
	t.HumanResolvedBy = f.HumanResolvedBy
	if len(raw) > 0 {
		t.extra = raw
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	return nil
}

// MarshalJSON encodes the task record including any unknown keys it was loaded with.
func (t Task) MarshalJSON() ([]byte, error) { //nolint:gocritic // json.Marshaler needs a value receiver
	deps := t.Dependencies
	if deps == nil {
		deps = []string{}
	}
	known, err := json.Marshal(taskFields{
		Status:          t.Status,
		Dependencies:    deps,
		Command:         t.Command,
		Activated:       t.Activated,
		AwaitingHuman:   t.AwaitingHuman,
		AutoCompletedBy: t.AutoCompletedBy,
		HumanResolvedBy: t.HumanResolvedBy,
	})
	if err != nil {
		return nil, err
	}
	if len(t.extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(t.extra)+7)
	for k, v := range t.extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, fmt.Errorf("merge task fields: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}
