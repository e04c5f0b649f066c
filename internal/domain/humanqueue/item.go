// Package humanqueue defines human review queue items and their lifecycle.
package humanqueue

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/sddflow/internal/domain"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAcked    Status = "ACKED"
	StatusResolved Status = "RESOLVED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether a human decision has been recorded.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Human decisions.
const (
	DecisionGo   = "GO"
	DecisionNoGo = "NO_GO"
)

var (
	ErrItemNotFound    = fmt.Errorf("queue item %w", domain.ErrNotFound)
	ErrAlreadyResolved = fmt.Errorf("queue item already resolved: %w", domain.ErrConflict)
	ErrInvalidDecision = fmt.Errorf("decision must be GO or NO_GO: %w", domain.ErrValidation)
	ErrMissingReviewer = fmt.Errorf("reviewer is required: %w", domain.ErrValidation)
)

// Item is one entry of the per-feature human review queue: a route decision
// extended with its queue lifecycle.
type Item struct {
	QueueID         string            `json:"queue_id"`
	Phase           string            `json:"phase"`
	Artifact        string            `json:"artifact,omitempty"`
	RouteTask       string            `json:"route_task,omitempty"`
	Route           string            `json:"route"`
	RiskTier        string            `json:"risk_tier"`
	Backend         string            `json:"backend,omitempty"`
	Rationale       []string          `json:"rationale,omitempty"`
	FailedCriteria  []string          `json:"failed_criteria,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	EvidenceSummary map[string]string `json:"evidence_summary,omitempty"`

	Status            Status `json:"status"`
	CreatedAt         string `json:"created_at"`
	AssignedReviewer  string `json:"assigned_reviewer,omitempty"`
	AckedAt           string `json:"acked_at,omitempty"`
	ResolvedBy        string `json:"resolved_by,omitempty"`
	ResolvedAt        string `json:"resolved_at,omitempty"`
	HumanDecision     string `json:"human_decision,omitempty"`
	ResolutionSummary string `json:"resolution_summary,omitempty"`
}

// Summary is the projection printed by queue listings.
type Summary struct {
	QueueID          string `json:"queue_id"`
	Phase            string `json:"phase"`
	RiskTier         string `json:"risk_tier"`
	Route            string `json:"route"`
	Status           Status `json:"status"`
	CreatedAt        string `json:"created_at"`
	AssignedReviewer string `json:"assigned_reviewer"`
}

// NewID returns a fresh queue id.
func NewID() string {
	return "hq-" + uuid.NewString()
}

// Summary projects the item for display.
func (it *Item) Summary() Summary {
	return Summary{
		QueueID:          it.QueueID,
		Phase:            it.Phase,
		RiskTier:         it.RiskTier,
		Route:            it.Route,
		Status:           it.Status,
		CreatedAt:        it.CreatedAt,
		AssignedReviewer: it.AssignedReviewer,
	}
}

// Ack assigns a reviewer. Acking an ACKED item re-assigns it; terminal items
// are rejected.
func (it *Item) Ack(reviewer, at string) error {
	if strings.TrimSpace(reviewer) == "" {
		return ErrMissingReviewer
	}
	if it.Status.IsTerminal() {
		return fmt.Errorf("ack %s: %w", it.QueueID, ErrAlreadyResolved)
	}
	it.Status = StatusAcked
	it.AssignedReviewer = reviewer
	it.AckedAt = at
	return nil
}

// NormalizeDecision upper-cases a decision and checks it is GO or NO_GO.
func NormalizeDecision(decision string) (string, error) {
	d := strings.ToUpper(strings.TrimSpace(decision))
	if d != DecisionGo && d != DecisionNoGo {
		return "", fmt.Errorf("%q: %w", decision, ErrInvalidDecision)
	}
	return d, nil
}

// Resolve records the terminal human decision. A second resolve of any
// terminal item fails with ErrAlreadyResolved and leaves the item unchanged.
func (it *Item) Resolve(decision, reviewer, summary, at string) error {
	d, err := NormalizeDecision(decision)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reviewer) == "" {
		return ErrMissingReviewer
	}
	if it.Status.IsTerminal() {
		return fmt.Errorf("resolve %s: %w", it.QueueID, ErrAlreadyResolved)
	}
	it.Status = StatusResolved
	if d == DecisionNoGo {
		it.Status = StatusRejected
	}
	it.ResolvedBy = reviewer
	it.ResolvedAt = at
	it.HumanDecision = d
	it.ResolutionSummary = summary
	return nil
}

// Find returns the item with the given id.
func Find(items []*Item, queueID string) (*Item, error) {
	for _, it := range items {
		if it.QueueID == queueID {
			return it, nil
		}
	}
	return nil, fmt.Errorf("queue_id not found: %s: %w", queueID, ErrItemNotFound)
}

// Filter returns the items whose status matches, case-insensitively. An
// empty filter returns every item.
func Filter(items []*Item, status string) []*Item {
	want := Status(strings.ToUpper(strings.TrimSpace(status)))
	out := make([]*Item, 0, len(items))
	for _, it := range items {
		if want == "" || it.Status == want {
			out = append(out, it)
		}
	}
	return out
}

// Open returns the first item of the phase still awaiting a decision, or nil.
func Open(items []*Item, phase string) *Item {
	for _, it := range items {
		if it.Phase == phase && !it.Status.IsTerminal() {
			return it
		}
	}
	return nil
}
