package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/sddflow/internal/port/messagequeue"
	"github.com/Strob0t/sddflow/internal/port/runtime"
)

// RuntimeName is the registry name of the remote runtime adapter.
const RuntimeName = "nats"

// Config keys read by the registered factory.
const (
	ConfigURL    = "nats_url"
	ConfigStream = "nats_stream"
)

// replySlack is added to the command timeout so the worker can report a
// TIMEOUT result before the request itself expires.
const replySlack = 5 * time.Second

func init() {
	runtime.Register(RuntimeName, func(config map[string]string) (runtime.Adapter, error) {
		url := config[ConfigURL]
		if url == "" {
			return nil, errors.New("NATS_URL is not configured")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		q, err := Connect(ctx, url, config[ConfigStream])
		if err != nil {
			return nil, err
		}
		return &Runtime{queue: q, owned: q}, nil
	}, "remote")
}

// Runtime dispatches invocations to a remote worker with request/reply on
// sddflow.runtime.invoke.<agent>. The worker applies the same timeout and
// simulation rules as the shell adapter.
type Runtime struct {
	queue messagequeue.Queue
	owned *Queue
}

// NewRuntime creates a remote runtime adapter over an existing queue.
func NewRuntime(q messagequeue.Queue) *Runtime {
	return &Runtime{queue: q}
}

// Name returns "nats".
func (r *Runtime) Name() string { return RuntimeName }

// Invoke sends the invocation and maps the worker's reply onto a Result.
// A missing or late reply is reported as TIMEOUT or INVOCATION_ERROR.
func (r *Runtime) Invoke(ctx context.Context, inv runtime.Invocation) runtime.Result {
	timeout := inv.EffectiveTimeout()
	req := messagequeue.InvokeRequestPayload{
		TaskID:         inv.TaskID,
		Agent:          inv.Agent,
		Command:        inv.Command,
		WorkDir:        inv.WorkDir,
		Strict:         inv.Strict,
		TimeoutSeconds: int(timeout / time.Second),
		Env:            inv.Env,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return invocationError(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+replySlack)
	defer cancel()

	reply, err := r.queue.Request(reqCtx, messagequeue.InvokeSubject(inv.Agent), data)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return runtime.Result{
				ExitCode:  runtime.ExitTimeout,
				Stderr:    err.Error(),
				ErrorKind: runtime.ErrorTimeout,
				Summary:   fmt.Sprintf("Command timed out after %ds", req.TimeoutSeconds),
			}
		}
		return invocationError(err)
	}

	var resp messagequeue.InvokeResponsePayload
	if err := json.Unmarshal(reply, &resp); err != nil {
		return invocationError(fmt.Errorf("decode worker reply: %w", err))
	}
	return runtime.Result{
		Success:   resp.Success,
		ExitCode:  resp.ExitCode,
		Stdout:    resp.Stdout,
		Stderr:    resp.Stderr,
		ErrorKind: runtime.ErrorKind(resp.ErrorType),
		Summary:   resp.Summary,
	}
}

// Close releases the connection opened by the registry factory.
func (r *Runtime) Close() error {
	if r.owned == nil {
		return nil
	}
	return r.owned.Close()
}

func invocationError(err error) runtime.Result {
	return runtime.Result{
		ExitCode:  runtime.ExitInvocation,
		Stderr:    err.Error(),
		ErrorKind: runtime.ErrorInvocation,
		Summary:   fmt.Sprintf("Invocation exception: %v", err),
	}
}

// InvokeHandler adapts a local adapter into a request handler, so a worker
// process can serve invocations from remote orchestrators.
func InvokeHandler(local runtime.Adapter) messagequeue.RequestHandler {
	return func(ctx context.Context, _ string, data []byte) ([]byte, error) {
		var req messagequeue.InvokeRequestPayload
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decode invocation: %w", err)
		}
		res := local.Invoke(ctx, runtime.Invocation{
			TaskID:  req.TaskID,
			Agent:   req.Agent,
			Command: req.Command,
			WorkDir: req.WorkDir,
			Strict:  req.Strict,
			Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
			Env:     req.Env,
		})
		return json.Marshal(messagequeue.InvokeResponsePayload{
			Success:   res.Success,
			ExitCode:  res.ExitCode,
			Stdout:    res.Stdout,
			Stderr:    res.Stderr,
			ErrorType: string(res.ErrorKind),
			Summary:   res.Summary,
		})
	}
}
