package policygate

import "fmt"

// LegacyFallbackWarning is reported when a feature has no policy_gate section.
const LegacyFallbackWarning = "policy_gate missing; using legacy AUTO_REVIEW fallback"

// ValidateConfig reports shape problems in a policy configuration. It never
// fails: the gate still routes, using the documented fallback for each field.
func ValidateConfig(cfg *Config) []string {
	if cfg == nil {
		return []string{LegacyFallbackWarning}
	}
	warnings := append([]string{}, typeWarnings("", cfg.bad)...)
	warnings = append(warnings, typeWarnings("evidence", cfg.badPhase)...)

	if cc := cfg.RequirementCoverage; cc != nil {
		warnings = append(warnings, typeWarnings("requirement_coverage", cc.bad)...)
		if m := cc.mode(); m != ModeAdvisory && m != ModeBlocking {
			warnings = append(warnings, fmt.Sprintf("invalid requirement_coverage.mode=%s; defaulting to advisory", m))
		}
		if minimum, ok := cc.minPercent(); !ok {
			warnings = append(warnings, "requirement_coverage.min_coverage_percent is not an integer")
		} else if minimum < 0 || minimum > 100 {
			warnings = append(warnings, "requirement_coverage.min_coverage_percent should be between 0 and 100")
		}
	}

	if hq := cfg.HumanQueue; hq != nil {
		warnings = append(warnings, typeWarnings("human_queue", hq.bad)...)
		if b := cfg.QueueBackend(); b != BackendFile && b != BackendPostgres {
			warnings = append(warnings, fmt.Sprintf("unsupported human_queue backend=%s; file backend will be used", b))
		}
		if hq.PauseOnEnqueue != nil {
			if _, ok := hq.PauseOnEnqueue.(bool); !ok {
				warnings = append(warnings, "human_queue.pause_on_enqueue should be boolean")
			}
		}
	}
	return warnings
}
