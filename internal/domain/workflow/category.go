package workflow

import (
	"strings"
)

// Category classifies a task once, when its graph is loaded, so dispatch never
// re-derives behaviour from id prefixes.
type Category int

const (
	CategoryOther Category = iota
	CategoryInit
	CategoryRequirements
	CategoryDesign
	CategoryDesignRework
	CategoryPhaseReview
	CategoryRoute
	CategoryExecute
	CategoryTaskRework
	CategoryTaskReview
)

var categoryNames = map[Category]string{
	CategoryOther:        "other",
	CategoryInit:         "init",
	CategoryRequirements: "requirements",
	CategoryDesign:       "design",
	CategoryDesignRework: "design_rework",
	CategoryPhaseReview:  "phase_review",
	CategoryRoute:        "route",
	CategoryExecute:      "execute",
	CategoryTaskRework:   "task_rework",
	CategoryTaskReview:   "task_review",
}

func (c Category) String() string { return categoryNames[c] }

// IsReview reports whether tasks of this category produce a review artifact.
func (c Category) IsReview() bool {
	return c == CategoryPhaseReview || c == CategoryTaskReview
}

// IsRework reports whether tasks of this category stay dormant until re-armed.
func (c Category) IsRework() bool {
	return c == CategoryDesignRework || c == CategoryTaskRework
}

// Well-known agents.
const (
	AgentFeature    = "feature"
	AgentBA         = "sdd-ba"
	AgentArchitect  = "sdd-architect"
	AgentPE         = "sdd-pe"
	AgentLE         = "sdd-le"
	AgentCoder      = "sdd-coder"
	AgentPolicyGate = "policy-gate"
	AgentUnknown    = "unknown"
)

const (
	prefixExecute    = "execute-task-"
	prefixTaskRework = "rework-task-"
	prefixTaskReview = "review-task-"
	prefixRoute      = "route-review-"
	prefixDesign     = "design-"
	suffixRework     = "-rework"
)

var agentByTask = map[string]string{
	"init":                AgentFeature,
	"define-requirements": AgentBA,
	"design-l1":           AgentArchitect,
	"design-l1-rework":    AgentArchitect,
	"review-l1-ba":        AgentBA,
	"review-l1-pe":        AgentPE,
	"review-l1-le":        AgentLE,
	"design-l2":           AgentPE,
	"design-l2-rework":    AgentPE,
	"review-l2-architect": AgentArchitect,
	"review-l2-le":        AgentLE,
	"design-l3":           AgentLE,
	"design-l3-rework":    AgentLE,
	"review-l3-pe":        AgentPE,
	"review-l3-coder":     AgentCoder,
}

// PhaseReviewTasks maps a design phase to the review tasks that gate it.
var PhaseReviewTasks = map[string][]string{
	"design-l1": {"review-l1-ba", "review-l1-pe", "review-l1-le"},
	"design-l2": {"review-l2-architect", "review-l2-le"},
	"design-l3": {"review-l3-pe", "review-l3-coder"},
}

// PhaseArtifacts maps a design phase to the document its reviewers assess.
var PhaseArtifacts = map[string]string{
	"design-l1": "design/l1_architecture.md",
	"design-l2": "design/l2_component_design.md",
	"design-l3": "implementation/l3_plan.md",
}

// Phases lists the design phases in pipeline order.
var Phases = []string{"design-l1", "design-l2", "design-l3"}

// AgentFor returns the agent responsible for a task id.
func AgentFor(id string) string {
	switch {
	case strings.HasPrefix(id, prefixExecute), strings.HasPrefix(id, prefixTaskRework):
		return AgentCoder
	case strings.HasPrefix(id, prefixTaskReview):
		return AgentLE
	case strings.HasPrefix(id, prefixRoute):
		return AgentPolicyGate
	}
	if a, ok := agentByTask[id]; ok {
		return a
	}
	return AgentUnknown
}

// Categorize derives the category of a task id.
func Categorize(id string) Category {
	switch {
	case id == "init":
		return CategoryInit
	case id == "define-requirements":
		return CategoryRequirements
	case strings.HasPrefix(id, prefixRoute):
		return CategoryRoute
	case strings.HasPrefix(id, prefixExecute):
		return CategoryExecute
	case strings.HasPrefix(id, prefixTaskRework):
		return CategoryTaskRework
	case strings.HasPrefix(id, prefixTaskReview):
		return CategoryTaskReview
	case strings.HasPrefix(id, prefixDesign) && strings.HasSuffix(id, suffixRework):
		return CategoryDesignRework
	case strings.HasPrefix(id, prefixDesign):
		return CategoryDesign
	case PhaseOfReview(id) != "":
		return CategoryPhaseReview
	}
	return CategoryOther
}

// PhaseOfReview returns the design phase reviewed by a phase review task,
// e.g. "review-l1-ba" -> "design-l1". Empty for anything else.
func PhaseOfReview(id string) string {
	for phase, reviews := range PhaseReviewTasks {
		for _, r := range reviews {
			if r == id {
				return phase
			}
		}
	}
	rest, ok := strings.CutPrefix(id, "review-l")
	if !ok {
		return ""
	}
	level, _, found := strings.Cut(rest, "-")
	if !found || level == "" {
		return ""
	}
	return prefixDesign + "l" + level
}

// PhaseOfRoute returns the phase a routing task decides, e.g. "route-review-l1" -> "design-l1".
func PhaseOfRoute(id string) string {
	level, ok := strings.CutPrefix(id, prefixRoute)
	if !ok || level == "" {
		return ""
	}
	return prefixDesign + level
}

// RouteTaskFor returns the routing task of a phase, e.g. "design-l2" -> "route-review-l2".
func RouteTaskFor(phase string) string {
	level, ok := strings.CutPrefix(phase, prefixDesign)
	if !ok || level == "" {
		return ""
	}
	return prefixRoute + level
}

// ReworkFor returns the rework task re-armed when the given review task rejects.
func ReworkFor(reviewID string) string {
	if suffix, ok := strings.CutPrefix(reviewID, prefixTaskReview); ok {
		return prefixTaskRework + suffix
	}
	if phase := PhaseOfReview(reviewID); phase != "" {
		return phase + suffixRework
	}
	return ""
}

// PhaseOfRework returns the phase whose reviews a rework task answers.
func PhaseOfRework(reworkID string) string {
	if phase, ok := strings.CutSuffix(reworkID, suffixRework); ok && strings.HasPrefix(phase, prefixDesign) {
		return phase
	}
	return ""
}

// ArtifactName converts a phase id into the form used in artifact file names,
// e.g. "design-l1" -> "design_l1".
func ArtifactName(phase string) string {
	return strings.ReplaceAll(phase, "-", "_")
}
