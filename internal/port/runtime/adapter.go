// Package runtime defines the runtime adapter port used to execute task
// commands, and the registry that selects an adapter by name.
package runtime

import (
	"context"
	"time"
)

// ErrorKind classifies the outcome of an invocation.
type ErrorKind string

const (
	ErrorNone           ErrorKind = "NONE"
	ErrorCommand        ErrorKind = "COMMAND_ERROR"
	ErrorTimeout        ErrorKind = "TIMEOUT"
	ErrorInvocation     ErrorKind = "INVOCATION_ERROR"
	ErrorNotImplemented ErrorKind = "NOT_IMPLEMENTED"
)

// Exit codes reported when no process exit status is available.
const (
	ExitTimeout        = 124
	ExitInvocation     = 1
	ExitNotImplemented = 2
)

// DefaultTimeout is the wall-clock limit applied when none is configured.
const DefaultTimeout = 120 * time.Second

// Invocation is one task command to execute.
type Invocation struct {
	TaskID  string
	Agent   string
	Command string
	WorkDir string
	Strict  bool
	Timeout time.Duration
	Env     map[string]string
}

// Result is the structured outcome of an invocation.
type Result struct {
	Success   bool      `json:"success"`
	ExitCode  int       `json:"exit_code"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	ErrorKind ErrorKind `json:"error_type"`
	Summary   string    `json:"summary"`
}

// Adapter executes task commands. Invoke never returns an error for a failed
// command: failures are reported through Result.
type Adapter interface {
	// Name returns the registry name of the adapter.
	Name() string

	// Invoke runs the command described by inv.
	Invoke(ctx context.Context, inv Invocation) Result
}

// EffectiveTimeout returns the invocation timeout with a one second floor.
func (inv Invocation) EffectiveTimeout() time.Duration {
	if inv.Timeout <= 0 {
		return DefaultTimeout
	}
	if inv.Timeout < time.Second {
		return time.Second
	}
	return inv.Timeout
}
