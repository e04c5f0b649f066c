// Package policygate decides how a design phase proceeds from its risk tier,
// the feature's policy configuration and externally supplied evidence.
// Confidence scores are never consulted.
package policygate

import (
	"math"
	"strconv"
	"strings"
)

// Defaults applied when a policy field is absent.
const (
	DefaultMinCoveragePercent = 80
	DefaultQueueFile          = "review/human_review_queue.json"
	BackendFile               = "file"
	BackendPostgres           = "postgres"
	ModeAdvisory              = "advisory"
	ModeBlocking              = "blocking"
)

// Evidence is the per-phase evidence record. Values are booleans, status
// strings or, for requirement_coverage_percent, numbers.
type Evidence map[string]any

// Evidence keys.
const (
	KeyAcceptance      = "acceptance_evidence"
	KeyVerification    = "verification_results"
	KeyOperational     = "operational_readiness"
	KeyCoverage        = "requirement_coverage"
	KeyCoveragePercent = "requirement_coverage_percent"
)

// Config is the policy_gate section of the feature context. Pointer and any
// fields distinguish "absent" from zero values; values of the wrong JSON type
// are kept aside (see codec.go) and reported by ValidateConfig.
type Config struct {
	AutoReviewEnabled        *bool               `json:"auto_review_enabled,omitempty"`
	AutoApproveEnabled       *bool               `json:"auto_approve_enabled,omitempty"`
	EnforceMandatoryEvidence *bool               `json:"enforce_mandatory_evidence,omitempty"`
	RequirementCoverage      *CoverageConfig     `json:"requirement_coverage,omitempty"`
	HumanQueue               *QueueConfig        `json:"human_queue,omitempty"`
	Evidence                 map[string]Evidence `json:"evidence,omitempty"`

	bad      malformed
	badPhase malformed
}

// CoverageConfig controls the optional requirement-coverage criterion.
type CoverageConfig struct {
	Enabled            bool   `json:"enabled"`
	Mode               string `json:"mode,omitempty"`
	MinCoveragePercent any    `json:"min_coverage_percent,omitempty"`
	MeasuredPercent    any    `json:"measured_percent,omitempty"`

	bad malformed
}

// QueueConfig controls the human review queue.
type QueueConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Backend        string `json:"backend,omitempty"`
	PauseOnEnqueue any    `json:"pause_on_enqueue,omitempty"`
	FilePath       string `json:"file_path,omitempty"`

	bad malformed
}

// DefaultConfig returns the policy written into new feature contexts.
func DefaultConfig() *Config {
	return &Config{
		AutoReviewEnabled:        boolPtr(true),
		AutoApproveEnabled:       boolPtr(false),
		EnforceMandatoryEvidence: boolPtr(true),
		RequirementCoverage: &CoverageConfig{
			Enabled:            false,
			Mode:               ModeAdvisory,
			MinCoveragePercent: DefaultMinCoveragePercent,
		},
		HumanQueue: &QueueConfig{
			Enabled:        boolPtr(true),
			Backend:        BackendFile,
			PauseOnEnqueue: true,
			FilePath:       DefaultQueueFile,
		},
	}
}

func boolPtr(b bool) *bool { return &b }

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// AutoReview reports auto_review_enabled (default true).
func (c *Config) AutoReview() bool { return boolOr(c.AutoReviewEnabled, true) }

// AutoApprove reports auto_approve_enabled (default false).
func (c *Config) AutoApprove() bool { return boolOr(c.AutoApproveEnabled, false) }

// EnforceEvidence reports enforce_mandatory_evidence (default true).
func (c *Config) EnforceEvidence() bool { return boolOr(c.EnforceMandatoryEvidence, true) }

// EvidenceFor returns the evidence recorded for a phase, never nil.
func (c *Config) EvidenceFor(phase string) Evidence {
	if c == nil || c.Evidence == nil || c.Evidence[phase] == nil {
		return Evidence{}
	}
	return c.Evidence[phase]
}

// QueueEnabled reports whether HUMAN_QUEUE routes enqueue an item (default true).
func (c *Config) QueueEnabled() bool {
	if c == nil || c.HumanQueue == nil {
		return true
	}
	return boolOr(c.HumanQueue.Enabled, true)
}

// PauseOnEnqueue reports whether the loop halts after enqueueing. Only a
// boolean true pauses; anything else is reported by ValidateConfig.
func (c *Config) PauseOnEnqueue() bool {
	if c == nil || c.HumanQueue == nil {
		return false
	}
	b, ok := c.HumanQueue.PauseOnEnqueue.(bool)
	return ok && b
}

// QueueBackend returns the configured backend name, lower-cased (default file).
func (c *Config) QueueBackend() string {
	if c == nil || c.HumanQueue == nil || c.HumanQueue.Backend == "" {
		return BackendFile
	}
	return strings.ToLower(strings.TrimSpace(c.HumanQueue.Backend))
}

// QueueFilePath returns the queue file path relative to the feature directory.
func (c *Config) QueueFilePath() string {
	if c == nil || c.HumanQueue == nil || c.HumanQueue.FilePath == "" {
		return DefaultQueueFile
	}
	return c.HumanQueue.FilePath
}

func (cc *CoverageConfig) mode() string {
	m := strings.ToLower(strings.TrimSpace(cc.Mode))
	if m == "" {
		return ModeAdvisory
	}
	return m
}

func (cc *CoverageConfig) minPercent() (int, bool) {
	if cc.MinCoveragePercent == nil {
		return DefaultMinCoveragePercent, true
	}
	return toInt(cc.MinCoveragePercent)
}

// toInt converts JSON numbers and numeric strings, truncating fractions.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}
