// Package review interprets review outcomes and applies the review/rework
// transitions to a feature's task graph.
package review

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/Strob0t/sddflow/internal/domain/workflow"
)

// Outcome is the interpreted verdict of a review artifact.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeApproved
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Review decisions and statuses.
const (
	DecisionGo   = "GO"
	DecisionNoGo = "NO_GO"

	StatusApproved             = "APPROVED"
	StatusRejected             = "REJECTED"
	StatusRejectedWithFeedback = "REJECTED_WITH_FEEDBACK"

	// HumanReviewerRole marks artifacts written on behalf of a human decision.
	HumanReviewerRole = "human-reviewer"
)

// Dir is the artifact directory inside a feature.
const Dir = "review"

// Artifact is the review/<task>.json record written by reviewers, simulated
// agents and human queue resolutions.
type Artifact struct {
	FeatureID        string `json:"featureId,omitempty"`
	ArtifactReviewed string `json:"artifactReviewed,omitempty"`
	ReviewerRole     string `json:"reviewerRole,omitempty"`
	Status           string `json:"status,omitempty"`
	Decision         string `json:"decision,omitempty"`
	Route            string `json:"route,omitempty"`
	RiskTier         string `json:"risk_tier,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

// Outcome interprets the artifact. A NO_GO decision or a rejected status wins
// over an approval so a contradictory artifact never releases a phase.
func (a Artifact) Outcome() Outcome {
	decision := strings.ToUpper(strings.TrimSpace(a.Decision))
	status := strings.ToUpper(strings.TrimSpace(a.Status))
	switch {
	case decision == DecisionNoGo, status == StatusRejected, status == StatusRejectedWithFeedback:
		return OutcomeRejected
	case decision == DecisionGo, status == StatusApproved:
		return OutcomeApproved
	}
	return OutcomeUnknown
}

// NormalizeDecision maps a decision/status pair onto GO or NO_GO. A
// recognised decision takes precedence over the status; empty means unknown.
func NormalizeDecision(decision, status string) string {
	switch d := strings.ToUpper(strings.TrimSpace(decision)); d {
	case DecisionGo, DecisionNoGo:
		return d
	}
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusApproved:
		return DecisionGo
	case StatusRejected, StatusRejectedWithFeedback:
		return DecisionNoGo
	}
	return ""
}

// ParseOutcome decodes a review artifact and interprets it.
func ParseOutcome(data []byte) (Outcome, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return OutcomeUnknown, fmt.Errorf("parse review artifact: %w", err)
	}
	return a.Outcome(), nil
}

// HumanAudit is the terminal human decision for one phase.
type HumanAudit struct {
	QueueID      string `json:"queue_id"`
	ReviewerRole string `json:"reviewerRole"`
	Reviewer     string `json:"reviewer,omitempty"`
	Decision     string `json:"decision"`
	Status       string `json:"status"`
	Summary      string `json:"summary"`
	Timestamp    string `json:"timestamp"`
}

// RouteRecord is the persisted policy gate evaluation of one phase.
type RouteRecord struct {
	Phase           string            `json:"phase"`
	Route           string            `json:"route"`
	RiskTier        string            `json:"risk_tier"`
	Rationale       []string          `json:"rationale"`
	FailedCriteria  []string          `json:"failed_criteria"`
	Warnings        []string          `json:"warnings"`
	EvidenceSummary map[string]string `json:"evidence_summary"`
	RouteTask       string            `json:"route_task"`
	EvaluatedAt     string            `json:"evaluated_at"`
	QueueID         string            `json:"queue_id,omitempty"`
}

// ArtifactPath returns the feature-relative path of a review task's artifact.
func ArtifactPath(taskID string) string {
	return path.Join(Dir, taskID+".json")
}

// RoutePath returns the feature-relative path of a phase's route artifact.
func RoutePath(phase string) string {
	return path.Join(Dir, "review_routing_"+workflow.ArtifactName(phase)+".json")
}

// HumanAuditPath returns the feature-relative path of a phase's human audit.
func HumanAuditPath(phase string) string {
	return path.Join(Dir, "human_audit_"+workflow.ArtifactName(phase)+".json")
}

// PhaseFromRouteFile recovers the phase from a route artifact file name,
// e.g. "review_routing_design_l1.json" -> "design-l1".
func PhaseFromRouteFile(name string) string {
	stem := strings.TrimSuffix(path.Base(name), ".json")
	stem = strings.TrimPrefix(stem, "review_routing_")
	return strings.ReplaceAll(stem, "_", "-")
}
