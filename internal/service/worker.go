package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/messagequeue"
)

// WorkerService answers remote runtime invocations for a set of agents.
type WorkerService struct {
	queue   messagequeue.Queue
	handler messagequeue.RequestHandler
}

// NewWorkerService creates a worker that serves requests with handler.
func NewWorkerService(q messagequeue.Queue, handler messagequeue.RequestHandler) *WorkerService {
	return &WorkerService{queue: q, handler: handler}
}

// Subjects returns the request subjects served for agents. No agents means
// every agent.
func (w *WorkerService) Subjects(agents []string) []string {
	if len(agents) == 0 {
		return []string{messagequeue.SubjectRuntimeInvoke + ".>"}
	}
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		out = append(out, messagequeue.InvokeSubject(a))
	}
	return out
}

// Serve responds until ctx is cancelled.
func (w *WorkerService) Serve(ctx context.Context, agents []string) error {
	log := logger.FromContext(ctx)
	handle := func(ctx context.Context, subject string, data []byte) ([]byte, error) {
		start := time.Now()
		out, err := w.handler(ctx, subject, data)
		if err != nil {
			logger.FromContext(ctx).Error("invocation failed", "subject", subject, "error", err)
			return nil, err
		}
		logger.FromContext(ctx).Info("invocation served", "subject", subject, "duration", time.Since(start))
		return out, nil
	}

	var cancels []func()
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()
	for _, subject := range w.Subjects(agents) {
		cancel, err := w.queue.Respond(subject, handle)
		if err != nil {
			return fmt.Errorf("serve %s: %w", subject, err)
		}
		cancels = append(cancels, cancel)
		log.Info("worker listening", "subject", subject)
	}

	<-ctx.Done()
	log.Info("worker stopping")
	return nil
}
