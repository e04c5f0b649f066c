package workflow

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrEmptyGraph        = errors.New("workflow has no tasks")
	ErrNotObject         = errors.New("workflow root must be an object of task records")
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("dependency references unknown task")
	ErrCycle             = errors.New("task dependencies contain a cycle")
	ErrInvalidStatus     = errors.New("invalid task status")
)

// Validate checks the graph for structural correctness: known statuses, known
// dependencies and no cycles.
func (g *Graph) Validate() error {
	if len(g.order) == 0 {
		return ErrEmptyGraph
	}
	for _, id := range g.order {
		t := g.tasks[id]
		if !slices.Contains(AllStatuses, t.Status) {
			return fmt.Errorf("task %s status %q: %w", id, t.Status, ErrInvalidStatus)
		}
		for _, dep := range t.Dependencies {
			if !g.Has(dep) {
				return fmt.Errorf("task %s depends on %q: %w", id, dep, ErrUnknownDependency)
			}
			if dep == id {
				return fmt.Errorf("task %s depends on itself: %w", id, ErrCycle)
			}
		}
	}
	return g.checkAcyclic()
}

// checkAcyclic runs Kahn's algorithm over the dependency edges.
func (g *Graph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		for _, dep := range g.tasks[id].Dependencies {
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(g.order) {
		var stuck []string
		for _, id := range g.order {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return nil
}
