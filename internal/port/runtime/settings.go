package runtime

import (
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/sddflow/internal/domain/feature"
)

// Environment variables overriding the runtime selection.
const (
	EnvAdapter = "SDD_RUNTIME_ADAPTER"
	EnvStrict  = "SDD_STRICT_COMMANDS"
	EnvTimeout = "SDD_TASK_TIMEOUT"
)

// Settings is the resolved runtime selection of one run.
type Settings struct {
	Adapter string
	Strict  bool
	Timeout time.Duration
}

// DefaultSettings returns the hard defaults: shell, non-strict, 120s.
func DefaultSettings() Settings {
	return Settings{Adapter: FallbackName, Timeout: DefaultTimeout}
}

// SettingsFor resolves each field with precedence environment > feature
// context > defaults. Unparseable environment values are ignored.
func SettingsFor(getenv func(string) string, rt feature.Runtime, defaults Settings) Settings {
	s := defaults
	if rt.Adapter != "" {
		s.Adapter = rt.Adapter
	}
	if rt.Strict != nil {
		s.Strict = *rt.Strict
	}
	if rt.TimeoutSeconds > 0 {
		s.Timeout = time.Duration(rt.TimeoutSeconds) * time.Second
	}

	if getenv == nil {
		return s
	}
	if v := strings.TrimSpace(getenv(EnvAdapter)); v != "" {
		s.Adapter = v
	}
	if v := strings.TrimSpace(getenv(EnvStrict)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Strict = b
		}
	}
	if v := strings.TrimSpace(getenv(EnvTimeout)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.Timeout = time.Duration(n) * time.Second
		}
	}
	return s
}
