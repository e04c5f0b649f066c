package runtime_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/port/runtime"
)

type fakeAdapter struct{ name string }

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) Invoke(_ context.Context, _ runtime.Invocation) runtime.Result {
	return runtime.Result{Success: true, ErrorKind: runtime.ErrorNone}
}

func init() {
	runtime.Register(runtime.FallbackName, func(_ map[string]string) (runtime.Adapter, error) {
		return &fakeAdapter{name: runtime.FallbackName}, nil
	})
	runtime.Register("test-runtime", func(_ map[string]string) (runtime.Adapter, error) {
		return &fakeAdapter{name: "test-runtime"}, nil
	}, "tr", "Test_Alias")
	runtime.Register("broken-runtime", func(_ map[string]string) (runtime.Adapter, error) {
		return nil, errors.New("no broker configured")
	})
}

func TestRegisterAndNew(t *testing.T) {
	a, err := runtime.New("TEST-RUNTIME", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "test-runtime" {
		t.Fatalf("expected test-runtime, got %s", a.Name())
	}
	if a, err := runtime.New("test_alias", nil); err != nil || a.Name() != "test-runtime" {
		t.Fatalf("alias lookup failed: %v", err)
	}
	if _, err := runtime.New("nonexistent", nil); !errors.Is(err, runtime.ErrUnknownAdapter) {
		t.Fatalf("expected ErrUnknownAdapter, got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	runtime.Register("test-runtime", nil)
}

func TestAvailable(t *testing.T) {
	names := runtime.Available()
	if !slices.Contains(names, "test-runtime") || !slices.IsSorted(names) {
		t.Fatalf("unexpected available adapters %v", names)
	}
}

func TestResolve(t *testing.T) {
	a, warnings := runtime.Resolve("", nil)
	if a.Name() != runtime.FallbackName || len(warnings) != 0 {
		t.Fatalf("empty name: got %s %v", a.Name(), warnings)
	}

	a, warnings = runtime.Resolve("tr", nil)
	if a.Name() != "test-runtime" || len(warnings) != 0 {
		t.Fatalf("alias: got %s %v", a.Name(), warnings)
	}

	a, warnings = runtime.Resolve("quantum", nil)
	if a.Name() != runtime.FallbackName {
		t.Fatalf("expected fallback, got %s", a.Name())
	}
	if len(warnings) != 2 || warnings[0] != "Unknown runtime adapter 'quantum', falling back to 'shell'" {
		t.Fatalf("unexpected warnings %v", warnings)
	}
	if !strings.HasPrefix(warnings[1], "registered runtime adapters: ") || !strings.Contains(warnings[1], "test-runtime") {
		t.Fatalf("second warning should list the registered adapters, got %q", warnings[1])
	}

	a, warnings = runtime.Resolve("broken-runtime", nil)
	if a.Name() != runtime.FallbackName || len(warnings) != 1 {
		t.Fatalf("broken adapter: got %s %v", a.Name(), warnings)
	}
	if warnings[0] != "Runtime adapter 'broken-runtime' unavailable (no broker configured), falling back to 'shell'" {
		t.Fatalf("unexpected warning %q", warnings[0])
	}
}

func TestSettingsForPrecedence(t *testing.T) {
	strict := true
	rt := feature.Runtime{Adapter: "claude_code", Strict: &strict, TimeoutSeconds: 30}

	s := runtime.SettingsFor(func(string) string { return "" }, rt, runtime.DefaultSettings())
	if s.Adapter != "claude_code" || !s.Strict || s.Timeout != 30*time.Second {
		t.Fatalf("context values not applied: %+v", s)
	}

	env := map[string]string{
		runtime.EnvAdapter: "shell",
		runtime.EnvStrict:  "0",
		runtime.EnvTimeout: "5",
	}
	s = runtime.SettingsFor(func(k string) string { return env[k] }, rt, runtime.DefaultSettings())
	if s.Adapter != "shell" || s.Strict || s.Timeout != 5*time.Second {
		t.Fatalf("environment should win: %+v", s)
	}

	env[runtime.EnvTimeout] = "soon"
	s = runtime.SettingsFor(func(k string) string { return env[k] }, feature.Runtime{}, runtime.DefaultSettings())
	if s.Timeout != runtime.DefaultTimeout {
		t.Fatalf("bad timeout should fall back to default, got %s", s.Timeout)
	}
}

func TestEffectiveTimeoutFloor(t *testing.T) {
	if got := (runtime.Invocation{Timeout: 10 * time.Millisecond}).EffectiveTimeout(); got != time.Second {
		t.Fatalf("expected 1s floor, got %s", got)
	}
	if got := (runtime.Invocation{}).EffectiveTimeout(); got != runtime.DefaultTimeout {
		t.Fatalf("expected default, got %s", got)
	}
}
