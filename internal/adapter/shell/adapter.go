// Package shell implements the runtime.Adapter interface by running task
// commands through the system shell.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/Strob0t/sddflow/internal/port/runtime"
)

const adapterName = "shell"

// simulatedPrefix marks the internal agent commands that are accepted
// without spawning a process in non-strict mode.
const simulatedPrefix = "sdd-"

// Adapter runs commands with "sh -c" in the invocation's working directory.
type Adapter struct {
	shell   string
	baseEnv func() []string
}

// New creates a shell adapter. config["shell"] overrides the shell binary.
func New(config map[string]string) *Adapter {
	sh := config["shell"]
	if sh == "" {
		sh = "sh"
	}
	return &Adapter{shell: sh, baseEnv: os.Environ}
}

func init() {
	runtime.Register(adapterName, func(config map[string]string) (runtime.Adapter, error) {
		return New(config), nil
	})
}

// Name returns "shell".
func (a *Adapter) Name() string { return adapterName }

// Invoke executes the command, or simulates it when it is an internal agent
// command and strict mode is off.
func (a *Adapter) Invoke(ctx context.Context, inv runtime.Invocation) runtime.Result {
	if !inv.Strict && strings.HasPrefix(inv.Command, simulatedPrefix) {
		return runtime.Result{
			Success:   true,
			Stdout:    "[SIMULATED] Non-strict mode accepted sdd-* command",
			ErrorKind: runtime.ErrorNone,
			Summary:   "Simulated success for sdd-* command in non-strict mode",
		}
	}

	timeout := inv.EffectiveTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.shell, "-c", inv.Command) //nolint:gosec // commands come from the feature's own workflow
	cmd.Dir = inv.WorkDir
	cmd.Env = mergeEnv(a.baseEnv(), inv.Env)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return runtime.Result{
			ExitCode:  runtime.ExitTimeout,
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			ErrorKind: runtime.ErrorTimeout,
			Summary:   fmt.Sprintf("Command timed out after %ds", int(timeout/time.Second)),
		}
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return runtime.Result{
			Success:   true,
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			ErrorKind: runtime.ErrorNone,
			Summary:   "Command succeeded",
		}
	case errors.As(err, &exitErr):
		return runtime.Result{
			ExitCode:  exitErr.ExitCode(),
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			ErrorKind: runtime.ErrorCommand,
			Summary:   "Command failed",
		}
	default:
		return runtime.Result{
			ExitCode:  runtime.ExitInvocation,
			Stderr:    err.Error(),
			ErrorKind: runtime.ErrorInvocation,
			Summary:   fmt.Sprintf("Invocation exception: %v", err),
		}
	}
}

// mergeEnv overlays extra on base; keys in extra win.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, override := extra[k]; !override {
			out = append(out, kv)
		}
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
