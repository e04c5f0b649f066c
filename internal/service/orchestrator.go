// Package service implements the workflow use cases on top of ports:
// orchestration, routing, the human review queue and audit metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/sddflow/internal/adapter/otel"
	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/review"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
	"github.com/Strob0t/sddflow/internal/port/runtime"
)

// Mode selects how the loop picks tasks.
type Mode string

const (
	ModeAutonomous Mode = "autonomous"
	ModeSupervised Mode = "supervised"
	ModeManual     Mode = "manual"
)

// ParseMode validates a mode name. Empty selects autonomous.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAutonomous, nil
	case ModeAutonomous, ModeSupervised, ModeManual:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q: %w", s, domain.ErrValidation)
}

// DefaultMaxIterations caps the scheduling rounds of one run.
const DefaultMaxIterations = 100

// QuitCommand ends a manual session.
const QuitCommand = "quit"

// ErrNotReady is returned when a task is asked to run outside the ready set.
var ErrNotReady = errors.New("task is not ready")

// RunStatus is the terminal state of one run.
type RunStatus string

const (
	RunCompleted     RunStatus = "completed"
	RunStuck         RunStatus = "stuck"
	RunHalted        RunStatus = "halted"
	RunAwaitingHuman RunStatus = "awaiting_human"
	RunIterationCap  RunStatus = "iteration_cap"
	RunQuit          RunStatus = "quit"
	RunStepped       RunStatus = "stepped" // single step, tasks still ready
)

// RunResult summarizes a run.
type RunResult struct {
	Status     RunStatus `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Iterations int       `json:"iterations"`
	Executed   []string  `json:"executed"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// OrchestratorConfig holds the run parameters.
type OrchestratorConfig struct {
	MaxIterations int
	Mode          Mode
	// Defaults is the runtime selection used when neither the environment
	// nor the feature context sets a field.
	Defaults      runtime.Settings
	AdapterConfig map[string]string
	Getenv        func(string) string
	// Progress receives the human-readable progress lines.
	Progress io.Writer
}

// TaskPicker chooses the next task in manual mode. Returning QuitCommand
// ends the session.
type TaskPicker func(ctx context.Context, ready []string) (string, error)

// OrchestratorService drives the task graph of one feature until nothing is
// left to run, a human decision is required or the iteration cap is hit.
type OrchestratorService struct {
	store   featurestore.Store
	ctxSvc  *ContextService
	router  *RouterService
	cfg     OrchestratorConfig
	events  *Events
	metrics *otel.Metrics
	adapter runtime.Adapter
	mu      sync.Mutex // one run per feature at a time
}

// NewOrchestratorService creates an OrchestratorService.
func NewOrchestratorService(store featurestore.Store, ctxSvc *ContextService, router *RouterService, cfg OrchestratorConfig) *OrchestratorService {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAutonomous
	}
	if cfg.Defaults.Adapter == "" {
		cfg.Defaults = runtime.DefaultSettings()
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}
	return &OrchestratorService{store: store, ctxSvc: ctxSvc, router: router, cfg: cfg}
}

// SetEvents sets the event fan-out for task transitions.
func (s *OrchestratorService) SetEvents(e *Events) { s.events = e }

// SetMetrics sets the metric instruments for task executions.
func (s *OrchestratorService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// SetAdapter bypasses adapter resolution. Used by tests and the worker.
func (s *OrchestratorService) SetAdapter(a runtime.Adapter) { s.adapter = a }

// session is the state shared by the tasks of one run.
type session struct {
	graph    *workflow.Graph
	adapter  runtime.Adapter
	settings runtime.Settings
	warnings []string
	close    func()
}

func (s *OrchestratorService) open(ctx context.Context) (*session, error) {
	g, err := s.store.LoadGraph(ctx)
	if err != nil {
		return nil, err
	}
	fc, err := s.ctxSvc.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	settings := runtime.SettingsFor(s.cfg.Getenv, fc.Runtime, s.cfg.Defaults)

	sess := &session{graph: g, settings: settings, close: func() {}}
	if s.adapter != nil {
		sess.adapter = s.adapter
		return sess, nil
	}

	ad, warnings := runtime.Resolve(settings.Adapter, s.cfg.AdapterConfig)
	log := logger.FromContext(ctx)
	for _, w := range warnings {
		log.Warn(w)
		s.progressf("WARNING: %s\n", w)
	}
	sess.adapter = ad
	sess.warnings = warnings
	if c, ok := ad.(io.Closer); ok {
		sess.close = func() {
			if err := c.Close(); err != nil {
				log.Warn("close runtime adapter", "adapter", ad.Name(), "error", err)
			}
		}
	}
	log.Info("runtime selected", "adapter", ad.Name(), "strict", settings.Strict, "timeout", settings.Timeout)
	return sess, nil
}

// Run executes ready tasks round by round. Structural errors (bad graph,
// unreadable documents) abort the run; failed commands are recorded and the
// loop continues.
func (s *OrchestratorService) Run(ctx context.Context) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = logger.WithFeature(ctx, s.store.Name())

	sess, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	res := &RunResult{Warnings: sess.warnings}
	for res.Iterations < s.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ready, err := sess.graph.ReadyTasks()
		if err != nil {
			return res, err
		}
		if len(ready) == 0 {
			s.finish(ctx, sess.graph, res)
			return res, nil
		}
		res.Iterations++

		for _, id := range ready {
			// An earlier task of this round may have changed the graph.
			if !isReady(sess.graph, id) {
				continue
			}
			halt, err := s.execute(ctx, sess, id)
			if err != nil {
				return res, err
			}
			res.Executed = append(res.Executed, id)
			if halt != "" {
				res.Status = RunHalted
				res.Reason = halt
				s.progressf("\nHALT: %s\n", halt)
				return res, nil
			}
		}
	}

	res.Status = RunIterationCap
	res.Reason = "Maximum iterations reached"
	s.progressf("\n%s\n", res.Reason)
	logger.FromContext(ctx).Warn("iteration cap reached", "max_iterations", s.cfg.MaxIterations)
	return res, nil
}

// Step executes a single ready task.
func (s *OrchestratorService) Step(ctx context.Context, taskID string) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = logger.WithFeature(ctx, s.store.Name())

	sess, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if !isReady(sess.graph, taskID) {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrNotReady)
	}
	res := &RunResult{Iterations: 1, Warnings: sess.warnings}
	halt, err := s.execute(ctx, sess, taskID)
	if err != nil {
		return res, err
	}
	res.Executed = []string{taskID}
	if halt != "" {
		res.Status = RunHalted
		res.Reason = halt
		return res, nil
	}
	if ready, err := sess.graph.ReadyTasks(); err == nil && len(ready) > 0 {
		res.Status = RunStepped
		return res, nil
	}
	s.finish(ctx, sess.graph, res)
	return res, nil
}

// RunManual lets pick choose one ready task at a time until the graph is
// done, a halt is requested or pick returns QuitCommand.
func (s *OrchestratorService) RunManual(ctx context.Context, pick TaskPicker) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = logger.WithFeature(ctx, s.store.Name())

	sess, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	res := &RunResult{Warnings: sess.warnings}
	for res.Iterations < s.cfg.MaxIterations {
		ready, err := sess.graph.ReadyTasks()
		if err != nil {
			return res, err
		}
		if len(ready) == 0 {
			s.finish(ctx, sess.graph, res)
			return res, nil
		}

		choice, err := pick(ctx, ready)
		if err != nil {
			return res, err
		}
		choice = strings.TrimSpace(choice)
		if strings.EqualFold(choice, QuitCommand) {
			res.Status = RunQuit
			return res, nil
		}
		if !slices.Contains(ready, choice) {
			s.progressf("Task '%s' is not ready or doesn't exist.\n", choice)
			continue
		}

		res.Iterations++
		halt, err := s.execute(ctx, sess, choice)
		if err != nil {
			return res, err
		}
		res.Executed = append(res.Executed, choice)
		if halt != "" {
			res.Status = RunHalted
			res.Reason = halt
			s.progressf("\nHALT: %s\n", halt)
			return res, nil
		}
	}
	res.Status = RunIterationCap
	res.Reason = "Maximum iterations reached"
	return res, nil
}

// finish classifies a run that ran out of ready tasks.
func (s *OrchestratorService) finish(ctx context.Context, g *workflow.Graph, res *RunResult) {
	log := logger.FromContext(ctx)
	if held := g.AwaitingHuman(); len(held) > 0 {
		res.Status = RunAwaitingHuman
		res.Reason = "Human review required: " + strings.Join(held, ", ")
		s.progressf("\n%s\n", res.Reason)
		log.Info("run waiting for human review", "held", held)
		return
	}
	if pending := g.ActionablePending(); len(pending) > 0 {
		res.Status = RunStuck
		res.Reason = fmt.Sprintf("No ready tasks, but %d tasks still pending", len(pending))
		s.progressf("\n%s\n", res.Reason)
		log.Warn("run stuck", "pending", pending)
		return
	}
	res.Status = RunCompleted
	s.progressf("\nAll tasks completed!\n")
	log.Info("run completed", "iterations", res.Iterations)
}

// execute runs one task and persists every consequence. It returns a
// non-empty halt reason when the loop must stop after this task.
func (s *OrchestratorService) execute(ctx context.Context, sess *session, id string) (string, error) {
	g := sess.graph
	t, _ := g.Get(id)
	agent := t.Agent()
	ctx = logger.WithTaskID(ctx, id)
	ctx, span := otel.StartTaskSpan(ctx, s.store.Name(), id, agent)
	defer span.End()
	log := logger.FromContext(ctx)

	s.progressf("\n%s\nTask: %s\nAgent: %s\nCommand: %s\n", strings.Repeat("=", 60), id, agent, t.Command)

	t.Status = workflow.StatusRunning
	if err := s.store.SaveGraph(ctx, g); err != nil {
		return "", err
	}
	s.events.TaskStarted(ctx, s.store.Name(), id, agent)
	s.metrics.RecordStart(ctx, agent)
	start := time.Now()

	var (
		result      runtime.Result
		adapterName = sess.adapter.Name()
		halt        string
	)
	if t.Category() == workflow.CategoryRoute {
		adapterName = workflow.AgentPolicyGate
		out, err := s.router.Route(ctx, g, id)
		switch {
		case err != nil:
			log.Error("route evaluation failed", "error", err)
			result = runtime.Result{ExitCode: runtime.ExitInvocation, Stderr: err.Error(),
				ErrorKind: runtime.ErrorInvocation, Summary: "route evaluation failed: " + err.Error()}
		case out.Success:
			result = runtime.Result{Success: true, ErrorKind: runtime.ErrorNone, Summary: out.Summary()}
			halt = out.HaltReason
		default:
			result = runtime.Result{ExitCode: 1, ErrorKind: runtime.ErrorCommand, Summary: out.Summary()}
		}
	} else {
		result = sess.adapter.Invoke(ctx, runtime.Invocation{
			TaskID:  id,
			Agent:   agent,
			Command: t.Command,
			WorkDir: s.store.Dir(),
			Strict:  sess.settings.Strict,
			Timeout: sess.settings.Timeout,
			Env: map[string]string{
				"SDD_TASK_ID":     id,
				"SDD_AGENT":       agent,
				"SDD_FEATURE_DIR": s.store.Dir(),
			},
		})
	}

	status := workflow.StatusFailed
	if result.Success {
		status = workflow.StatusCompleted
	}
	// The router may have replaced the task record; re-fetch it.
	if cur, ok := g.Get(id); ok {
		t = cur
	}
	t.Status = status

	entry := feature.ExecutionEntry{
		Timestamp: feature.Now(),
		TaskID:    id,
		Agent:     agent,
		Command:   t.Command,
		Status:    string(status),
		ExitCode:  result.ExitCode,
		ErrorKind: string(result.ErrorKind),
		Adapter:   adapterName,
		Summary:   result.Summary,
	}
	_, err := s.ctxSvc.Update(ctx, func(c *feature.Context) error {
		c.AppendExecution(entry)
		c.AppendHandover(feature.Handover{
			Timestamp:     entry.Timestamp,
			TaskCompleted: id,
			FromAgent:     agent,
			Status:        entry.Status,
			Summary:       result.Summary,
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	if result.Success {
		s.progressf("✓ Task %s completed successfully\n", id)
		log.Info("task completed", "agent", agent, "adapter", adapterName)
	} else {
		s.progressf("✗ Task %s failed\n", id)
		if msg := strings.TrimSpace(result.Stderr); msg != "" {
			s.progressf("  %s\n", firstLine(msg))
		}
		log.Warn("task failed", "agent", agent, "adapter", adapterName,
			"exit_code", result.ExitCode, "error_type", result.ErrorKind)
	}

	if result.Success {
		switch {
		case t.Category().IsReview():
			if err := s.applyReview(ctx, g, id); err != nil {
				return "", err
			}
		case t.Category().IsRework():
			reset := review.ApplyReworkCompleted(g, id)
			if len(reset) > 0 {
				s.progressf("Rework %s completed - re-running reviews: %s\n", id, strings.Join(reset, ", "))
			}
		}
	}

	if err := s.store.SaveGraph(ctx, g); err != nil {
		return "", err
	}

	s.events.TaskFinished(ctx, s.store.Name(), entry)
	s.metrics.RecordTask(ctx, agent, result.Success, time.Since(start).Seconds())

	if s.cfg.Mode == ModeSupervised && result.Success && t.Category() == workflow.CategoryDesign {
		s.progressf("Milestone: %s completed\n", id)
		log.Info("milestone reached", "milestone", id)
	}
	return halt, nil
}

// applyReview inspects the artifact of a finished review task and re-arms
// its rework task on rejection. A missing or unreadable artifact leaves the
// review as it is.
func (s *OrchestratorService) applyReview(ctx context.Context, g *workflow.Graph, id string) error {
	log := logger.FromContext(ctx)
	data, err := s.store.ReadArtifact(ctx, review.ArtifactPath(id))
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("review produced no artifact")
		return nil
	}
	if err != nil {
		return err
	}
	outcome, err := review.ParseOutcome(data)
	if err != nil {
		log.Warn("unreadable review artifact", "error", err)
		return nil
	}
	if outcome != review.OutcomeRejected {
		return nil
	}

	rework := review.ApplyRejection(g, id)
	if rework == "" {
		s.progressf("Review %s rejected - no rework task in workflow\n", id)
		log.Warn("review rejected without rework task")
		return nil
	}
	s.progressf("Review rejected - forcing %s to READY\n", rework)

	phase := review.PhaseOf(id)
	_, err = s.ctxSvc.Update(ctx, func(c *feature.Context) error {
		count, exceeded := c.RecordRework(phase)
		if exceeded {
			log.Warn("rework limit exceeded", "phase", phase, "count", count,
				"max_rework_iterations", c.CircuitBreaker.MaxReworkIterations)
		}
		return nil
	})
	return err
}

func (s *OrchestratorService) progressf(format string, args ...any) {
	fmt.Fprintf(s.cfg.Progress, format, args...)
}

func isReady(g *workflow.Graph, id string) bool {
	ready, err := g.ReadyTasks()
	return err == nil && slices.Contains(ready, id)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
