package service

import (
	"context"

	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
)

// StatusReport is the summary printed by "sddflow status".
type StatusReport struct {
	Feature       string         `json:"feature"`
	Path          string         `json:"path"`
	Counts        map[string]int `json:"counts"`
	Running       []string       `json:"running"`
	Ready         []string       `json:"ready"`
	Failed        []string       `json:"failed"`
	AwaitingHuman []string       `json:"awaiting_human"`

	// Agents maps every listed task to its agent.
	Agents map[string]string `json:"agents"`
}

// Status builds the report of one feature from its persisted graph. Ready
// lists the tasks eligible to run next; held and dormant tasks are excluded.
func Status(ctx context.Context, store featurestore.Store) (*StatusReport, error) {
	g, err := store.LoadGraph(ctx)
	if err != nil {
		return nil, err
	}
	r := &StatusReport{
		Feature:       store.Name(),
		Path:          store.Dir(),
		Counts:        g.Counts(),
		Running:       nonNil(g.WithStatus(workflow.StatusRunning)),
		Failed:        nonNil(g.WithStatus(workflow.StatusFailed)),
		AwaitingHuman: nonNil(g.AwaitingHuman()),
		Agents:        map[string]string{},
	}
	ready, err := g.ReadyTasks()
	if err != nil {
		return nil, err
	}
	r.Ready = nonNil(ready)

	for _, list := range [][]string{r.Running, r.Ready, r.Failed, r.AwaitingHuman} {
		for _, id := range list {
			r.Agents[id] = workflow.AgentFor(id)
		}
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
