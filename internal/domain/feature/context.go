// Package feature defines the persisted context of one feature directory:
// risk tier, policy, runtime selection and the append-only audit trail.
package feature

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/sddflow/internal/domain/policygate"
)

// DefaultMaxReworkIterations is the advisory rework limit per phase.
const DefaultMaxReworkIterations = 3

// Context is the context.json document of a feature.
type Context struct {
	RiskTier       string                   `json:"risk_tier"`
	PolicyGate     *policygate.Config       `json:"policy_gate,omitempty"`
	Runtime        Runtime                  `json:"runtime"`
	ExecutionLog   []ExecutionEntry         `json:"execution_log"`
	HandoverNotes  HandoverNotes            `json:"handover_notes"`
	CircuitBreaker CircuitBreaker           `json:"circuit_breaker"`
	ReviewRouting  map[string]RoutingStatus `json:"review_routing"`
	SimState       map[string]bool          `json:"sim_state,omitempty"`

	extra map[string]json.RawMessage
}

// Runtime selects the adapter used for task commands. Zero values defer to
// the environment and process defaults.
type Runtime struct {
	Adapter        string `json:"adapter,omitempty"`
	Strict         *bool  `json:"strict,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ExecutionEntry records one task attempt.
type ExecutionEntry struct {
	Timestamp string `json:"timestamp"`
	TaskID    string `json:"task_id"`
	Agent     string `json:"agent"`
	Command   string `json:"command"`
	Status    string `json:"status"`
	ExitCode  int    `json:"exit_code"`
	ErrorKind string `json:"error_type,omitempty"`
	Adapter   string `json:"adapter,omitempty"`
	Summary   string `json:"summary"`
}

// HandoverNotes carries continuity notes between agents.
type HandoverNotes struct {
	History []Handover `json:"history"`
}

// Handover is written once per finished task.
type Handover struct {
	Timestamp     string `json:"timestamp"`
	TaskCompleted string `json:"task_completed"`
	FromAgent     string `json:"from_agent"`
	Status        string `json:"status"`
	Summary       string `json:"summary"`
}

// CircuitBreaker records interventions and rework counts. It is advisory:
// nothing in the loop halts on it.
type CircuitBreaker struct {
	MaxReworkIterations  int            `json:"max_rework_iterations"`
	ReworkCounts         map[string]int `json:"rework_counts,omitempty"`
	InterventionRequired bool           `json:"intervention_required"`
	BlockedTask          string         `json:"blocked_task,omitempty"`
	Reason               string         `json:"reason,omitempty"`
}

// RoutingStatus is the latest routing and human decision for one phase.
type RoutingStatus struct {
	Route           string   `json:"route"`
	RiskTier        string   `json:"risk_tier"`
	RouteTask       string   `json:"route_task"`
	FailedCriteria  []string `json:"failed_criteria,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	EvaluatedAt     string   `json:"evaluated_at"`
	QueueID         string   `json:"queue_id,omitempty"`
	HumanDecision   string   `json:"human_decision,omitempty"`
	HumanResolvedBy string   `json:"human_resolved_by,omitempty"`
	HumanResolvedAt string   `json:"human_resolved_at,omitempty"`
}

// Default returns the context written for a new feature.
func Default() *Context {
	return &Context{
		RiskTier:       policygate.TierT1,
		PolicyGate:     policygate.DefaultConfig(),
		ExecutionLog:   []ExecutionEntry{},
		HandoverNotes:  HandoverNotes{History: []Handover{}},
		CircuitBreaker: CircuitBreaker{MaxReworkIterations: DefaultMaxReworkIterations},
		ReviewRouting:  map[string]RoutingStatus{},
	}
}

// Now formats timestamps the way every record in the context stores them.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// AppendExecution adds an execution log entry.
func (c *Context) AppendExecution(e ExecutionEntry) {
	if e.Timestamp == "" {
		e.Timestamp = Now()
	}
	c.ExecutionLog = append(c.ExecutionLog, e)
}

// AppendHandover adds a handover note.
func (c *Context) AppendHandover(h Handover) {
	if h.Timestamp == "" {
		h.Timestamp = Now()
	}
	c.HandoverNotes.History = append(c.HandoverNotes.History, h)
}

// SetIntervention flags the feature for human intervention.
func (c *Context) SetIntervention(blockedTask, reason string) {
	c.CircuitBreaker.InterventionRequired = true
	c.CircuitBreaker.BlockedTask = blockedTask
	c.CircuitBreaker.Reason = reason
}

// RecordRework counts a rework activation for a phase and reports whether
// the advisory limit is now exceeded.
func (c *Context) RecordRework(phase string) (count int, exceeded bool) {
	if c.CircuitBreaker.ReworkCounts == nil {
		c.CircuitBreaker.ReworkCounts = map[string]int{}
	}
	c.CircuitBreaker.ReworkCounts[phase]++
	count = c.CircuitBreaker.ReworkCounts[phase]
	limit := c.CircuitBreaker.MaxReworkIterations
	if limit <= 0 {
		limit = DefaultMaxReworkIterations
	}
	return count, count > limit
}

// UpdateRouting replaces the routing status of a phase.
func (c *Context) UpdateRouting(phase string, s RoutingStatus) {
	if c.ReviewRouting == nil {
		c.ReviewRouting = map[string]RoutingStatus{}
	}
	c.ReviewRouting[phase] = s
}

// RecordHumanDecision stamps the human outcome onto a phase's routing status.
func (c *Context) RecordHumanDecision(phase, decision, reviewer, at string) {
	s := c.ReviewRouting[phase]
	s.HumanDecision = decision
	s.HumanResolvedBy = reviewer
	s.HumanResolvedAt = at
	c.UpdateRouting(phase, s)
}

// SimFlag reads a simulation state flag.
func (c *Context) SimFlag(key string) bool { return c.SimState[key] }

// SetSimFlag sets a simulation state flag.
func (c *Context) SetSimFlag(key string, v bool) {
	if c.SimState == nil {
		c.SimState = map[string]bool{}
	}
	c.SimState[key] = v
}

// contextFields aliases Context without its methods so the codec can reuse
// the struct tags.
type contextFields Context

var knownContextKeys = map[string]bool{
	"risk_tier": true, "policy_gate": true, "runtime": true, "execution_log": true,
	"handover_notes": true, "circuit_breaker": true, "review_routing": true, "sim_state": true,
}

// UnmarshalJSON decodes the context and keeps keys owned by other tools.
func (c *Context) UnmarshalJSON(data []byte) error {
	var f contextFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode feature context: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode feature context: %w", err)
	}
	for k := range raw {
		if knownContextKeys[k] {
			delete(raw, k)
		}
	}
	*c = Context(f)
	if len(raw) > 0 {
		c.extra = raw
	}
	return nil
}

// MarshalJSON encodes the context including preserved foreign keys.
func (c *Context) MarshalJSON() ([]byte, error) {
	f := contextFields(*c)
	f.extra = nil
	if f.ExecutionLog == nil {
		f.ExecutionLog = []ExecutionEntry{}
	}
	if f.HandoverNotes.History == nil {
		f.HandoverNotes.History = []Handover{}
	}
	if f.ReviewRouting == nil {
		f.ReviewRouting = map[string]RoutingStatus{}
	}
	known, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	if len(c.extra) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, fmt.Errorf("merge feature context: %w", err)
	}
	for k, v := range c.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Merge fills fields absent from c with the values of defaults. Present
// values, logs and foreign keys are never replaced.
func (c *Context) Merge(defaults *Context) {
	if c.RiskTier == "" {
		c.RiskTier = defaults.RiskTier
	}
	if c.PolicyGate == nil && defaults.PolicyGate != nil {
		cp := *defaults.PolicyGate
		c.PolicyGate = &cp
	}
	if c.Runtime.Adapter == "" {
		c.Runtime.Adapter = defaults.Runtime.Adapter
	}
	if c.Runtime.Strict == nil {
		c.Runtime.Strict = defaults.Runtime.Strict
	}
	if c.Runtime.TimeoutSeconds == 0 {
		c.Runtime.TimeoutSeconds = defaults.Runtime.TimeoutSeconds
	}
	if c.ExecutionLog == nil {
		c.ExecutionLog = []ExecutionEntry{}
	}
	if c.HandoverNotes.History == nil {
		c.HandoverNotes.History = []Handover{}
	}
	if c.CircuitBreaker.MaxReworkIterations == 0 {
		c.CircuitBreaker.MaxReworkIterations = defaults.CircuitBreaker.MaxReworkIterations
	}
	if c.ReviewRouting == nil {
		c.ReviewRouting = map[string]RoutingStatus{}
	}
}
