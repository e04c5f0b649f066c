package review

import (
	"slices"
	"strings"

	"github.com/Strob0t/sddflow/internal/domain/workflow"
)

// AttributionPolicyGate is recorded on review tasks completed by an AUTO_APPROVE route.
const AttributionPolicyGate = workflow.AgentPolicyGate

// TasksForPhase returns the review tasks gating a design phase: the standard
// reviewers of the phase followed by any further review task of that phase
// declared in the graph.
func TasksForPhase(g *workflow.Graph, phase string) []string {
	out := slices.Clone(workflow.PhaseReviewTasks[phase])
	for _, t := range g.Tasks() {
		if t.Category() == workflow.CategoryPhaseReview && workflow.PhaseOfReview(t.ID) == phase && !slices.Contains(out, t.ID) {
			out = append(out, t.ID)
		}
	}
	return out
}

// PhaseOf returns the phase a review task belongs to. Task reviews
// ("review-task-*") are their own phase.
func PhaseOf(reviewID string) string {
	if p := workflow.PhaseOfReview(reviewID); p != "" {
		return p
	}
	return reviewID
}

// ApplyRejection marks the review FAILED and re-arms its rework task as
// READY and activated. It returns the rework id, or "" when the review has no
// rework task in the graph.
func ApplyRejection(g *workflow.Graph, reviewID string) string {
	g.SetStatus(reviewID, workflow.StatusFailed)
	reworkID := workflow.ReworkFor(reviewID)
	rework, ok := g.Get(reworkID)
	if !ok {
		return ""
	}
	rework.Status = workflow.StatusReady
	rework.Activated = true
	return reworkID
}

// ApplyReworkCompleted resets every review answered by a finished rework task
// to PENDING and returns the rework task to its dormant state. It returns the
// reset review ids.
func ApplyReworkCompleted(g *workflow.Graph, reworkID string) []string {
	var reviews []string
	switch {
	case workflow.PhaseOfRework(reworkID) != "":
		reviews = TasksForPhase(g, workflow.PhaseOfRework(reworkID))
	default:
		if id := taskReviewFor(reworkID); id != "" {
			reviews = []string{id}
		}
	}

	var reset []string
	for _, id := range reviews {
		t, ok := g.Get(id)
		if !ok {
			continue
		}
		t.Status = workflow.StatusPending
		t.AutoCompletedBy = ""
		t.HumanResolvedBy = ""
		reset = append(reset, id)
	}
	if rework, ok := g.Get(reworkID); ok {
		rework.Activated = false
	}
	return reset
}

// ApplyAutoApprove completes every review task of the phase on behalf of the
// policy gate and returns the ids that changed.
func ApplyAutoApprove(g *workflow.Graph, phase string) []string {
	var done []string
	for _, id := range TasksForPhase(g, phase) {
		t, ok := g.Get(id)
		if !ok {
			continue
		}
		t.Status = workflow.StatusCompleted
		t.AutoCompletedBy = AttributionPolicyGate
		t.AwaitingHuman = false
		done = append(done, id)
	}
	return done
}

// HoldForHuman parks the phase's review tasks until a human queue item is
// resolved. Held tasks are never reported ready.
func HoldForHuman(g *workflow.Graph, phase string) []string {
	var held []string
	for _, id := range TasksForPhase(g, phase) {
		t, ok := g.Get(id)
		if !ok || t.Status.IsTerminal() {
			continue
		}
		t.AwaitingHuman = true
		held = append(held, id)
	}
	return held
}

// ApplyHumanGo releases the hold and completes the phase's review tasks with
// the reviewer's attribution. It returns the ids that changed.
func ApplyHumanGo(g *workflow.Graph, phase, reviewer string) []string {
	var done []string
	for _, id := range TasksForPhase(g, phase) {
		t, ok := g.Get(id)
		if !ok {
			continue
		}
		t.Status = workflow.StatusCompleted
		t.AwaitingHuman = false
		t.HumanResolvedBy = reviewer
		done = append(done, id)
	}
	return done
}

// ApplyHumanNoGo fails the phase's routing task and releases the review
// holds. It returns the routing task id, or "" when the graph lacks it.
func ApplyHumanNoGo(g *workflow.Graph, phase, reviewer string) string {
	for _, id := range TasksForPhase(g, phase) {
		if t, ok := g.Get(id); ok {
			t.AwaitingHuman = false
		}
	}
	routeID := workflow.RouteTaskFor(phase)
	route, ok := g.Get(routeID)
	if !ok {
		return ""
	}
	route.Status = workflow.StatusFailed
	route.HumanResolvedBy = reviewer
	return routeID
}

func taskReviewFor(reworkID string) string {
	if suffix, ok := strings.CutPrefix(reworkID, "rework-task-"); ok && suffix != "" {
		return "review-task-" + suffix
	}
	return ""
}
