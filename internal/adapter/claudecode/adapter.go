// Package claudecode registers the Claude Code runtime adapter. Transport and
// command contracts are not settled yet, so every invocation reports
// NOT_IMPLEMENTED.
package claudecode

import (
	"context"

	"github.com/Strob0t/sddflow/internal/port/runtime"
)

const adapterName = "claude_code"

// Adapter is the Claude Code runtime scaffold.
type Adapter struct{}

func init() {
	runtime.Register(adapterName, func(_ map[string]string) (runtime.Adapter, error) {
		return Adapter{}, nil
	}, "claude", "claudecode")
}

// Name returns "claude_code".
func (Adapter) Name() string { return adapterName }

// Invoke always fails with NOT_IMPLEMENTED.
func (Adapter) Invoke(_ context.Context, _ runtime.Invocation) runtime.Result {
	return runtime.Result{
		ExitCode:  runtime.ExitNotImplemented,
		Stderr:    "ClaudeCodeAdapter is not implemented yet.",
		ErrorKind: runtime.ErrorNotImplemented,
		Summary:   "Adapter scaffold only; implementation pending",
	}
}
