package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Graph is the task graph of one feature. Iteration follows the order in
// which tasks were declared in workflow.json.
type Graph struct {
	order []string
	tasks map[string]*Task
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{tasks: make(map[string]*Task)}
}

// Add appends a task. Adding an id twice replaces the record but keeps its position.
func (g *Graph) Add(t *Task) {
	if _, exists := g.tasks[t.ID]; !exists {
		g.order = append(g.order, t.ID)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	t.category = Categorize(t.ID)
	g.tasks[t.ID] = t
}

// Get returns the task with the given id.
func (g *Graph) Get(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Has reports whether the graph contains id.
func (g *Graph) Has(id string) bool {
	_, ok := g.tasks[id]
	return ok
}

// IDs returns task ids in declaration order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.order) }

// Tasks returns tasks in declaration order.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// SetStatus changes the status of id. Unknown ids are ignored and reported as false.
func (g *Graph) SetStatus(id string, s Status) bool {
	t, ok := g.tasks[id]
	if !ok {
		return false
	}
	t.Status = s
	return true
}

// isDormant reports whether t must be skipped by readiness regardless of status.
func isDormant(t *Task) bool {
	if t.AwaitingHuman {
		return true
	}
	return t.category.IsRework() && !t.Activated
}

// ReadyTasks returns the ids eligible for execution in declaration order:
// READY tasks, and PENDING tasks whose dependencies are all COMPLETED.
// Rework tasks are eligible only while activated and held review tasks never are.
// A dependency on an unknown id fails with ErrUnknownDependency.
func (g *Graph) ReadyTasks() ([]string, error) {
	var ready []string
	for _, id := range g.order {
		t := g.tasks[id]
		if isDormant(t) {
			continue
		}
		switch t.Status {
		case StatusReady:
			ready = append(ready, id)
		case StatusPending:
			met, err := g.dependenciesMet(t)
			if err != nil {
				return nil, err
			}
			if met {
				ready = append(ready, id)
			}
		}
	}
	return ready, nil
}

func (g *Graph) dependenciesMet(t *Task) (bool, error) {
	for _, dep := range t.Dependencies {
		d, ok := g.tasks[dep]
		if !ok {
			return false, fmt.Errorf("task %s depends on %q: %w", t.ID, dep, ErrUnknownDependency)
		}
		if d.Status != StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// ActionablePending returns PENDING tasks that are neither dormant rework
// tasks nor held for a human decision.
func (g *Graph) ActionablePending() []string {
	var out []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status == StatusPending && !isDormant(t) {
			out = append(out, id)
		}
	}
	return out
}

// AwaitingHuman returns tasks held for a human queue decision.
func (g *Graph) AwaitingHuman() []string {
	var out []string
	for _, id := range g.order {
		if g.tasks[id].AwaitingHuman {
			out = append(out, id)
		}
	}
	return out
}

// WithStatus returns ids of tasks in the given status, in declaration order.
func (g *Graph) WithStatus(s Status) []string {
	var out []string
	for _, id := range g.order {
		if g.tasks[id].Status == s {
			out = append(out, id)
		}
	}
	return out
}

// CountTotal is the Counts key holding the number of tasks.
const CountTotal = "TOTAL"

// Counts returns the number of tasks per status plus CountTotal.
func (g *Graph) Counts() map[string]int {
	counts := make(map[string]int, len(AllStatuses)+1)
	for _, s := range AllStatuses {
		counts[string(s)] = 0
	}
	for _, id := range g.order {
		counts[string(g.tasks[id].Status)]++
	}
	counts[CountTotal] = len(g.order)
	return counts
}

// UnmarshalJSON decodes the workflow.json mapping while keeping key order.
func (g *Graph) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("workflow: %w", ErrNotObject)
	}

	fresh := NewGraph()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("workflow: %w", err)
		}
		id, _ := keyTok.(string)
		var t Task
		if err := dec.Decode(&t); err != nil {
			return fmt.Errorf("workflow task %s: %w", id, err)
		}
		if fresh.Has(id) {
			return fmt.Errorf("workflow task %s: %w", id, ErrDuplicateTask)
		}
		t.ID = id
		fresh.Add(&t)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}

	*g = *fresh
	return nil
}

// MarshalJSON encodes the graph as an ordered id -> record mapping.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(g.tasks[id])
		if err != nil {
			return nil, fmt.Errorf("workflow task %s: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
