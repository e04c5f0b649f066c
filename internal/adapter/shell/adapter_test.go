package shell

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/sddflow/internal/port/runtime"
)

func TestInvokeSimulatesInternalCommands(t *testing.T) {
	a := New(nil)
	res := a.Invoke(context.Background(), runtime.Invocation{Command: "sdd-ba-define-requirements --task_id=x"})
	if !res.Success || res.ErrorKind != runtime.ErrorNone || res.ExitCode != 0 {
		t.Fatalf("expected simulated success, got %+v", res)
	}
	if !strings.HasPrefix(res.Stdout, "[SIMULATED]") {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
}

func TestInvokeStrictRunsInternalCommands(t *testing.T) {
	a := New(nil)
	res := a.Invoke(context.Background(), runtime.Invocation{
		Command: "sdd-definitely-not-installed-binary",
		Strict:  true,
		WorkDir: t.TempDir(),
	})
	if res.Success || res.ErrorKind != runtime.ErrorCommand {
		t.Fatalf("expected command error, got %+v", res)
	}
}

func TestInvokeRunsInWorkDirWithEnv(t *testing.T) {
	dir := t.TempDir()
	a := New(nil)
	res := a.Invoke(context.Background(), runtime.Invocation{
		Command: `printf '%s' "$SDD_TASK_ID" > out.txt`,
		WorkDir: dir,
		Env:     map[string]string{"SDD_TASK_ID": "task-1"},
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "task-1" {
		t.Fatalf("expected task-1, got %q", data)
	}
}

func TestInvokeNonzeroExit(t *testing.T) {
	res := New(nil).Invoke(context.Background(), runtime.Invocation{Command: "echo boom >&2; exit 3", WorkDir: t.TempDir()})
	if res.Success || res.ExitCode != 3 || res.ErrorKind != runtime.ErrorCommand {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Summary != "Command failed" || !strings.Contains(res.Stderr, "boom") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestInvokeTimeout(t *testing.T) {
	start := time.Now()
	res := New(nil).Invoke(context.Background(), runtime.Invocation{
		Command: "sleep 5",
		WorkDir: t.TempDir(),
		Timeout: time.Second,
	})
	if res.ErrorKind != runtime.ErrorTimeout || res.ExitCode != runtime.ExitTimeout {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if res.Summary != "Command timed out after 1s" {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatal("timeout not enforced")
	}
}

func TestInvokeInvocationError(t *testing.T) {
	a := New(map[string]string{"shell": "/nonexistent/shell"})
	res := a.Invoke(context.Background(), runtime.Invocation{Command: "true", WorkDir: t.TempDir()})
	if res.ErrorKind != runtime.ErrorInvocation || res.ExitCode != runtime.ExitInvocation {
		t.Fatalf("expected invocation error, got %+v", res)
	}
}

func TestRegistered(t *testing.T) {
	if !slices.Contains(runtime.Available(), "shell") {
		t.Fatal("shell adapter not registered")
	}
}

func TestMergeEnvOverrides(t *testing.T) {
	got := mergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3", "C": "4"})
	want := []string{"A=1", "B=3", "C=4"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
