package policygate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// malformed holds policy values whose JSON type did not match. They are
// written back verbatim on save and reported by ValidateConfig; the typed
// field keeps its default.
type malformed map[string]json.RawMessage

// wholeKey marks a policy_gate value that is not an object at all.
const wholeKey = ""

func (m *malformed) keep(key string, v json.RawMessage) {
	if *m == nil {
		*m = malformed{}
	}
	(*m)[key] = v
}

// restore adds the kept values whose key the typed encoding left out.
func (m malformed) restore(out map[string]json.RawMessage) {
	for k, v := range m {
		if _, ok := out[k]; !ok && k != wholeKey {
			out[k] = v
		}
	}
}

func isNull(v json.RawMessage) bool { return bytes.Equal(bytes.TrimSpace(v), []byte("null")) }

func isObject(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '{'
}

// fields splits an object into its members. A non-object is kept whole.
func fields(data []byte, bad *malformed) map[string]json.RawMessage {
	var raw map[string]json.RawMessage
	if !isObject(data) || json.Unmarshal(data, &raw) != nil {
		bad.keep(wholeKey, append(json.RawMessage(nil), data...))
		return nil
	}
	return raw
}

func decodeBool(raw map[string]json.RawMessage, key string, bad *malformed) *bool {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		bad.keep(key, v)
		return nil
	}
	return &b
}

func decodeString(raw map[string]json.RawMessage, key string, bad *malformed) string {
	v, ok := raw[key]
	if !ok || isNull(v) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		bad.keep(key, v)
		return ""
	}
	return s
}

// decodeAny never fails on valid JSON; type checks happen in ValidateConfig.
func decodeAny(raw map[string]json.RawMessage, key string) any {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var out any
	if err := json.Unmarshal(v, &out); err != nil {
		return nil
	}
	return out
}

// mergeKept re-encodes known with the kept values added back.
func mergeKept(known []byte, bad malformed) ([]byte, error) {
	if len(bad) == 0 {
		return known, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, fmt.Errorf("merge policy_gate: %w", err)
	}
	bad.restore(out)
	return json.Marshal(out)
}

type configFields Config

// UnmarshalJSON decodes policy_gate leniently: a wrongly typed field falls
// back to its default instead of failing the whole feature context.
func (c *Config) UnmarshalJSON(data []byte) error {
	*c = Config{}
	raw := fields(data, &c.bad)
	if raw == nil {
		return nil
	}
	c.AutoReviewEnabled = decodeBool(raw, "auto_review_enabled", &c.bad)
	c.AutoApproveEnabled = decodeBool(raw, "auto_approve_enabled", &c.bad)
	c.EnforceMandatoryEvidence = decodeBool(raw, "enforce_mandatory_evidence", &c.bad)

	if v, ok := raw["requirement_coverage"]; ok && !isNull(v) {
		if isObject(v) {
			c.RequirementCoverage = &CoverageConfig{}
			if err := json.Unmarshal(v, c.RequirementCoverage); err != nil {
				return err
			}
		} else {
			c.bad.keep("requirement_coverage", v)
		}
	}
	if v, ok := raw["human_queue"]; ok && !isNull(v) {
		if isObject(v) {
			c.HumanQueue = &QueueConfig{}
			if err := json.Unmarshal(v, c.HumanQueue); err != nil {
				return err
			}
		} else {
			c.bad.keep("human_queue", v)
		}
	}
	if v, ok := raw["evidence"]; ok && !isNull(v) {
		phases := fields(v, &c.badPhase)
		if phases == nil {
			c.badPhase = nil
			c.bad.keep("evidence", v)
		} else {
			c.Evidence = map[string]Evidence{}
		}
		for phase, pv := range phases {
			var ev Evidence
			if isNull(pv) {
				continue
			}
			if !isObject(pv) || json.Unmarshal(pv, &ev) != nil {
				c.badPhase.keep(phase, pv)
				continue
			}
			c.Evidence[phase] = ev
		}
	}
	return nil
}

// MarshalJSON encodes the policy, writing malformed input back unchanged.
func (c Config) MarshalJSON() ([]byte, error) {
	if whole, ok := c.bad[wholeKey]; ok {
		return whole, nil
	}
	known, err := json.Marshal(configFields(c))
	if err != nil {
		return nil, err
	}
	if len(c.badPhase) > 0 {
		var out map[string]json.RawMessage
		if err := json.Unmarshal(known, &out); err != nil {
			return nil, fmt.Errorf("merge policy_gate: %w", err)
		}
		ev := map[string]json.RawMessage{}
		if raw, ok := out["evidence"]; ok {
			if err := json.Unmarshal(raw, &ev); err != nil {
				return nil, fmt.Errorf("merge policy_gate evidence: %w", err)
			}
		}
		c.badPhase.restore(ev)
		if out["evidence"], err = json.Marshal(ev); err != nil {
			return nil, err
		}
		if known, err = json.Marshal(out); err != nil {
			return nil, err
		}
	}
	return mergeKept(known, c.bad)
}

type coverageFields CoverageConfig

// UnmarshalJSON decodes requirement_coverage leniently.
func (cc *CoverageConfig) UnmarshalJSON(data []byte) error {
	*cc = CoverageConfig{}
	raw := fields(data, &cc.bad)
	if raw == nil {
		return nil
	}
	if b := decodeBool(raw, "enabled", &cc.bad); b != nil {
		cc.Enabled = *b
	}
	cc.Mode = decodeString(raw, "mode", &cc.bad)
	cc.MinCoveragePercent = decodeAny(raw, "min_coverage_percent")
	cc.MeasuredPercent = decodeAny(raw, "measured_percent")
	return nil
}

// MarshalJSON encodes requirement_coverage, keeping malformed input.
func (cc CoverageConfig) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(coverageFields(cc))
	if err != nil {
		return nil, err
	}
	if _, ok := cc.bad["enabled"]; ok {
		// enabled has no omitempty; the kept value replaces the default.
		var out map[string]json.RawMessage
		if err := json.Unmarshal(known, &out); err != nil {
			return nil, err
		}
		delete(out, "enabled")
		cc.bad.restore(out)
		return json.Marshal(out)
	}
	return mergeKept(known, cc.bad)
}

type queueFields QueueConfig

// UnmarshalJSON decodes human_queue leniently.
func (q *QueueConfig) UnmarshalJSON(data []byte) error {
	*q = QueueConfig{}
	raw := fields(data, &q.bad)
	if raw == nil {
		return nil
	}
	q.Enabled = decodeBool(raw, "enabled", &q.bad)
	q.Backend = decodeString(raw, "backend", &q.bad)
	q.PauseOnEnqueue = decodeAny(raw, "pause_on_enqueue")
	q.FilePath = decodeString(raw, "file_path", &q.bad)
	return nil
}

// MarshalJSON encodes human_queue, keeping malformed input.
func (q QueueConfig) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(queueFields(q))
	if err != nil {
		return nil, err
	}
	return mergeKept(known, q.bad)
}

// typeWarnings lists the malformed fields of the object at path in a stable
// order. The top-level object has an empty path.
func typeWarnings(path string, m malformed) []string {
	var out []string
	for _, k := range slices.Sorted(maps.Keys(m)) {
		switch {
		case k == wholeKey && path == "":
			out = append(out, "policy_gate should be an object; using defaults")
		case k == wholeKey:
			out = append(out, fmt.Sprintf("%s should be an object; using defaults", path))
		case path == "":
			out = append(out, fmt.Sprintf("%s has the wrong type; using the default", k))
		default:
			out = append(out, fmt.Sprintf("%s.%s has the wrong type; using the default", path, k))
		}
	}
	return out
}
