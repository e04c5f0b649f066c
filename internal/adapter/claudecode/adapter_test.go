package claudecode_test

import (
	"context"
	"testing"

	_ "github.com/Strob0t/sddflow/internal/adapter/claudecode"
	_ "github.com/Strob0t/sddflow/internal/adapter/shell"
	"github.com/Strob0t/sddflow/internal/port/runtime"
)

func TestResolveAliases(t *testing.T) {
	for _, name := range []string{"claude", "claude_code", "ClaudeCode"} {
		a, warnings := runtime.Resolve(name, nil)
		if a.Name() != "claude_code" || len(warnings) != 0 {
			t.Errorf("Resolve(%q) = %s %v", name, a.Name(), warnings)
		}
	}
}

func TestInvokeNotImplemented(t *testing.T) {
	a, _ := runtime.Resolve("claude", nil)
	res := a.Invoke(context.Background(), runtime.Invocation{Command: "anything"})
	if res.Success || res.ExitCode != 2 || res.ErrorKind != runtime.ErrorNotImplemented {
		t.Fatalf("unexpected result %+v", res)
	}
}
