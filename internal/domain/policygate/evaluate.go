package policygate

import (
	"fmt"
	"strings"
)

// Decision is the route chosen for a phase.
type Decision string

const (
	DecisionNoGo        Decision = "NO_GO"
	DecisionAutoApprove Decision = "AUTO_APPROVE"
	DecisionAutoReview  Decision = "AUTO_REVIEW"
	DecisionHumanQueue  Decision = "HUMAN_QUEUE"
)

// Decisions lists every route in reporting order.
var Decisions = []Decision{DecisionAutoApprove, DecisionAutoReview, DecisionHumanQueue, DecisionNoGo}

// Risk tiers.
const (
	TierT0 = "T0"
	TierT1 = "T1"
	TierT2 = "T2"
)

// Evidence summary values besides the upper-cased input.
const (
	SummaryPass        = "PASS"
	SummaryFail        = "FAIL"
	SummaryMissing     = "MISSING"
	SummaryNotRequired = "NOT_REQUIRED"
	SummaryNotEnforced = "NOT_ENFORCED"
)

// Result is one gate evaluation.
type Result struct {
	Decision        Decision          `json:"decision"`
	RiskTier        string            `json:"risk_tier"`
	Rationale       []string          `json:"rationale"`
	FailedCriteria  []string          `json:"failed_criteria"`
	Warnings        []string          `json:"warnings"`
	EvidenceSummary map[string]string `json:"evidence_summary"`
}

var passValues = map[string]bool{"PASS": true, "PASSED": true, "TRUE": true, "OK": true}

// IsPass reports whether an evidence value is a recognised pass.
func IsPass(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return passValues[strings.ToUpper(strings.TrimSpace(x))]
	}
	return false
}

// NormalizeStatus renders an evidence value for the evidence summary.
func NormalizeStatus(v any, def string) string {
	switch x := v.(type) {
	case string:
		return strings.ToUpper(x)
	case bool:
		if x {
			return SummaryPass
		}
		return SummaryFail
	}
	return def
}

// NormalizeTier maps any input onto T0, T1 or T2; unknown tiers become T1.
func NormalizeTier(tier string) string {
	t := strings.ToUpper(strings.TrimSpace(tier))
	switch t {
	case TierT0, TierT1, TierT2:
		return t
	}
	return TierT1
}

// Evaluate maps a risk tier, policy and evidence onto a route decision.
// Failed mandatory evidence yields NO_GO before any tier-based routing.
func Evaluate(riskTier string, cfg *Config, ev Evidence) Result {
	if cfg == nil {
		return Result{
			Decision:        DecisionAutoReview,
			RiskTier:        NormalizeTier(riskTier),
			Rationale:       []string{"policy_gate missing; defaulting to legacy AUTO_REVIEW"},
			FailedCriteria:  []string{},
			Warnings:        []string{"policy_gate not configured"},
			EvidenceSummary: map[string]string{},
		}
	}
	if ev == nil {
		ev = Evidence{}
	}

	tier := NormalizeTier(riskTier)
	warnings := ValidateConfig(cfg)
	if riskTier != "" && strings.ToUpper(strings.TrimSpace(riskTier)) != tier {
		warnings = append(warnings, fmt.Sprintf("unknown risk_tier=%s; treated as %s", riskTier, tier))
	}

	operationalDefault := SummaryNotRequired
	if tier == TierT2 {
		operationalDefault = SummaryMissing
	}
	summary := map[string]string{
		KeyAcceptance:   NormalizeStatus(ev[KeyAcceptance], SummaryMissing),
		KeyVerification: NormalizeStatus(ev[KeyVerification], SummaryMissing),
		KeyOperational:  NormalizeStatus(ev[KeyOperational], operationalDefault),
		KeyCoverage:     SummaryNotEnforced,
	}

	failed := []string{}
	if cfg.EnforceEvidence() {
		for _, key := range mandatoryEvidence(tier) {
			if !IsPass(ev[key]) {
				failed = append(failed, key)
			}
		}
	}

	if cc := cfg.RequirementCoverage; cc != nil && cc.Enabled {
		status := coverageStatus(cc, ev)
		summary[KeyCoverage] = status
		if status != SummaryPass {
			if cc.mode() == ModeBlocking {
				failed = append(failed, KeyCoverage)
			} else {
				warnings = append(warnings, "requirement_coverage below threshold or missing in advisory mode")
			}
		}
	}

	res := Result{
		RiskTier:        tier,
		FailedCriteria:  failed,
		Warnings:        warnings,
		EvidenceSummary: summary,
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}

	if len(failed) > 0 {
		res.Decision = DecisionNoGo
		res.Rationale = []string{"mandatory evidence failed policy gate"}
		return res
	}

	switch tier {
	case TierT2:
		res.Decision = DecisionHumanQueue
		res.Rationale = []string{"T2 policy requires human sign-off"}
	case TierT1:
		res.Decision = DecisionHumanQueue
		if cfg.AutoReview() {
			res.Decision = DecisionAutoReview
		}
		res.Rationale = []string{fmt.Sprintf("T1 policy routes to %s", res.Decision)}
	default:
		switch {
		case cfg.AutoApprove():
			res.Decision = DecisionAutoApprove
		case cfg.AutoReview():
			res.Decision = DecisionAutoReview
		default:
			res.Decision = DecisionHumanQueue
		}
		res.Rationale = []string{fmt.Sprintf("T0 policy routes to %s", res.Decision)}
	}
	return res
}

func mandatoryEvidence(tier string) []string {
	keys := []string{KeyAcceptance, KeyVerification}
	if tier == TierT2 {
		keys = append(keys, KeyOperational)
	}
	return keys
}

// coverageStatus compares measured coverage against the configured minimum.
// The measurement comes from the policy itself, else from the phase evidence.
func coverageStatus(cc *CoverageConfig, ev Evidence) string {
	measuredRaw := cc.MeasuredPercent
	if measuredRaw == nil {
		measuredRaw = ev[KeyCoveragePercent]
	}
	measured, ok := toInt(measuredRaw)
	if !ok {
		return SummaryMissing
	}
	minimum, ok := cc.minPercent()
	if !ok {
		minimum = DefaultMinCoveragePercent
	}
	if measured >= minimum {
		return SummaryPass
	}
	return SummaryFail
}
