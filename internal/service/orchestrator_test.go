package service_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/domain/policygate"
	"github.com/Strob0t/sddflow/internal/domain/review"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/service"
)

func passing(keys ...string) policygate.Evidence {
	ev := policygate.Evidence{}
	for _, k := range keys {
		ev[k] = "PASS"
	}
	return ev
}

func TestRunDemoPipelineReworksOnce(t *testing.T) {
	h := newHarness(t, "demo")
	var progress bytes.Buffer
	o := h.orchestrator(service.OrchestratorConfig{Progress: &progress})

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != service.RunCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Reason)
	}
	if n := h.adapter.count("review-l1-ba"); n != 2 {
		t.Errorf("review-l1-ba should run twice, ran %d", n)
	}
	if n := h.adapter.count("design-l1-rework"); n != 1 {
		t.Errorf("design-l1-rework should run once, ran %d", n)
	}
	if n := h.adapter.count("design-l2-rework"); n != 0 {
		t.Errorf("dormant rework must not run, ran %d", n)
	}
	if !strings.Contains(progress.String(), "Review rejected - forcing design-l1-rework to READY") {
		t.Errorf("missing rejection line in progress:\n%s", progress.String())
	}

	c := mustContext(t, h.store)
	if len(c.ExecutionLog) != len(res.Executed) || len(c.HandoverNotes.History) != len(res.Executed) {
		t.Fatalf("expected one log and handover entry per execution, got %d/%d for %d",
			len(c.ExecutionLog), len(c.HandoverNotes.History), len(res.Executed))
	}
	if c.CircuitBreaker.ReworkCounts["design-l1"] != 1 {
		t.Errorf("expected one recorded rework, got %v", c.CircuitBreaker.ReworkCounts)
	}
	if !c.SimFlag("l1_rework_done") {
		t.Error("simulation state written by tasks was lost")
	}

	var rec review.RouteRecord
	decode(t, h.store, review.RoutePath("design-l1"), &rec)
	if rec.Route != string(policygate.DecisionAutoReview) || rec.RouteTask != "route-review-l1" {
		t.Errorf("unexpected route record %+v", rec)
	}
	if c.ReviewRouting["design-l3"].Route != string(policygate.DecisionAutoReview) {
		t.Errorf("review_routing not updated: %+v", c.ReviewRouting)
	}

	g := mustGraph(t, h.store)
	for _, id := range []string{"design-l3", "review-l3-coder", "review-l1-ba"} {
		if s := mustTask(t, g, id).Status; s != workflow.StatusCompleted {
			t.Errorf("%s: expected COMPLETED, got %s", id, s)
		}
	}
	if mustTask(t, g, "design-l1-rework").Activated {
		t.Error("rework must be dormant again")
	}
}

func TestDependenciesCompleteBeforeExecution(t *testing.T) {
	h := newHarness(t, "demo")
	if _, err := h.orchestrator(service.OrchestratorConfig{}).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	c := mustContext(t, h.store)
	g := mustGraph(t, h.store)

	done := map[string]bool{}
	for _, e := range c.ExecutionLog {
		for _, dep := range mustTask(t, g, e.TaskID).Dependencies {
			if !done[dep] {
				t.Fatalf("%s executed before dependency %s", e.TaskID, dep)
			}
		}
		if e.Status == string(workflow.StatusCompleted) {
			done[e.TaskID] = true
		}
	}
}

func TestRunAutoApproveCompletesReviews(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, func(c *feature.Context) {
		c.RiskTier = policygate.TierT0
		c.PolicyGate.AutoApproveEnabled = boolPtr(true)
	})

	res, err := h.orchestrator(service.OrchestratorConfig{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != service.RunCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Reason)
	}
	for _, id := range h.adapter.invoked() {
		if workflow.Categorize(id) == workflow.CategoryPhaseReview {
			t.Fatalf("review %s should have been auto-approved, not executed", id)
		}
	}

	g := mustGraph(t, h.store)
	for _, id := range workflow.PhaseReviewTasks["design-l1"] {
		task := mustTask(t, g, id)
		if task.Status != workflow.StatusCompleted || task.AutoCompletedBy != review.AttributionPolicyGate {
			t.Errorf("unexpected review after AUTO_APPROVE: %+v", task)
		}
	}
	var rec review.RouteRecord
	decode(t, h.store, review.RoutePath("design-l1"), &rec)
	if rec.Route != string(policygate.DecisionAutoApprove) {
		t.Fatalf("expected AUTO_APPROVE route artifact, got %+v", rec)
	}
}

func TestRunMandatoryEvidenceFailureIsNoGo(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, func(c *feature.Context) {
		c.RiskTier = policygate.TierT0
		c.PolicyGate.AutoApproveEnabled = boolPtr(true)
		c.PolicyGate.Evidence["design-l1"] = policygate.Evidence{
			policygate.KeyAcceptance:   "PASS",
			policygate.KeyVerification: "FAIL",
		}
	})
	var progress bytes.Buffer
	res, err := h.orchestrator(service.OrchestratorConfig{Progress: &progress}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != service.RunStuck {
		t.Fatalf("expected stuck run, got %s", res.Status)
	}
	if !strings.Contains(res.Reason, "No ready tasks, but") {
		t.Errorf("unexpected reason %q", res.Reason)
	}

	g := mustGraph(t, h.store)
	if s := mustTask(t, g, "route-review-l1").Status; s != workflow.StatusFailed {
		t.Fatalf("route task should be FAILED, got %s", s)
	}
	var rec review.RouteRecord
	decode(t, h.store, review.RoutePath("design-l1"), &rec)
	if rec.Route != string(policygate.DecisionNoGo) || !slices.Contains(rec.FailedCriteria, policygate.KeyVerification) {
		t.Fatalf("unexpected route record %+v", rec)
	}
	c := mustContext(t, h.store)
	if !c.CircuitBreaker.InterventionRequired || c.CircuitBreaker.BlockedTask != "route-review-l1" {
		t.Errorf("intervention not recorded: %+v", c.CircuitBreaker)
	}
	if !strings.Contains(progress.String(), "✗ Task route-review-l1 failed") {
		t.Errorf("missing failure line:\n%s", progress.String())
	}
}

func t2Policy(c *feature.Context) {
	c.RiskTier = policygate.TierT2
	c.PolicyGate.AutoApproveEnabled = boolPtr(true)
	c.PolicyGate.HumanQueue.PauseOnEnqueue = true
	for _, phase := range workflow.Phases {
		c.PolicyGate.Evidence[phase] = passing(policygate.KeyAcceptance, policygate.KeyVerification, policygate.KeyOperational)
	}
}

func TestRunPausesOnHumanQueueAndResumesAfterGo(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, t2Policy)
	ctx := context.Background()
	o := h.orchestrator(service.OrchestratorConfig{})

	res, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != service.RunHalted || res.Executed[len(res.Executed)-1] != "route-review-l1" {
		t.Fatalf("expected halt after route-review-l1, got %s %v", res.Status, res.Executed)
	}
	items, _ := h.queueSvc.List(ctx, "pending")
	if len(items) != 1 || items[0].Phase != "design-l1" || items[0].Route != string(policygate.DecisionHumanQueue) {
		t.Fatalf("expected one pending design-l1 item, got %+v", items)
	}
	if !strings.Contains(res.Reason, items[0].QueueID) {
		t.Errorf("halt reason should name the queue item: %q", res.Reason)
	}

	again, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if again.Status != service.RunAwaitingHuman || len(again.Executed) != 0 {
		t.Fatalf("re-run must not progress, got %s %v", again.Status, again.Executed)
	}

	if _, err := h.queueSvc.Ack(ctx, items[0].QueueID, "alice"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := h.queueSvc.Resolve(ctx, items[0].QueueID, "go", "alice", "architecture ok"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	g := mustGraph(t, h.store)
	for _, id := range workflow.PhaseReviewTasks["design-l1"] {
		task := mustTask(t, g, id)
		if task.Status != workflow.StatusCompleted || task.HumanResolvedBy != "alice" || task.AwaitingHuman {
			t.Errorf("unexpected review after GO: %+v", task)
		}
		var art review.Artifact
		decode(t, h.store, review.ArtifactPath(id), &art)
		if art.Decision != review.DecisionGo || art.ReviewerRole != review.HumanReviewerRole || art.Route != "HUMAN_QUEUE" {
			t.Errorf("unexpected review artifact %+v", art)
		}
	}
	var audit review.HumanAudit
	decode(t, h.store, review.HumanAuditPath("design-l1"), &audit)
	if audit.Decision != "GO" || audit.Status != review.StatusApproved || audit.QueueID != items[0].QueueID {
		t.Fatalf("unexpected human audit %+v", audit)
	}

	third, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if third.Status != service.RunHalted || !slices.Contains(third.Executed, "design-l2") {
		t.Fatalf("expected progress to the next human gate, got %s %v", third.Status, third.Executed)
	}
	if h.adapter.count("review-l1-ba") != 0 {
		t.Error("human-approved reviews must not execute")
	}
}

func TestResolveNoGoFailsRouteTask(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, t2Policy)
	ctx := context.Background()
	if _, err := h.orchestrator(service.OrchestratorConfig{}).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	items, _ := h.queueSvc.List(ctx, "")

	item, err := h.queueSvc.Resolve(ctx, items[0].QueueID, "NO_GO", "bob", "missing threat model")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.Status != humanqueue.StatusRejected || item.ResolvedBy != "bob" {
		t.Fatalf("unexpected item %+v", item)
	}

	g := mustGraph(t, h.store)
	route := mustTask(t, g, "route-review-l1")
	if route.Status != workflow.StatusFailed || route.HumanResolvedBy != "bob" {
		t.Fatalf("route task should be FAILED by bob: %+v", route)
	}
	if held := g.AwaitingHuman(); len(held) != 0 {
		t.Fatalf("holds must be released, got %v", held)
	}
	var audit review.HumanAudit
	decode(t, h.store, review.HumanAuditPath("design-l1"), &audit)
	if audit.Status != review.StatusRejectedWithFeedback || audit.Decision != "NO_GO" {
		t.Fatalf("unexpected audit %+v", audit)
	}
	c := mustContext(t, h.store)
	if !c.CircuitBreaker.InterventionRequired || c.CircuitBreaker.Reason != "human NO_GO for design-l1: missing threat model" {
		t.Fatalf("unexpected breaker %+v", c.CircuitBreaker)
	}
	if c.ReviewRouting["design-l1"].HumanDecision != "NO_GO" {
		t.Fatalf("human decision not recorded: %+v", c.ReviewRouting["design-l1"])
	}
}

func TestSecondResolveIsRejectedWithoutWrites(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, t2Policy)
	ctx := context.Background()
	if _, err := h.orchestrator(service.OrchestratorConfig{}).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	items, _ := h.queueSvc.List(ctx, "")
	if _, err := h.queueSvc.Resolve(ctx, items[0].QueueID, "GO", "alice", "ok"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	before, _ := h.store.ReadArtifact(ctx, "workflow.json")
	beforeCtx, _ := h.store.ReadArtifact(ctx, "context.json")

	_, err := h.queueSvc.Resolve(ctx, items[0].QueueID, "GO", "alice", "again")
	if !errors.Is(err, humanqueue.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	after, _ := h.store.ReadArtifact(ctx, "workflow.json")
	afterCtx, _ := h.store.ReadArtifact(ctx, "context.json")
	if !bytes.Equal(before, after) || !bytes.Equal(beforeCtx, afterCtx) {
		t.Fatal("second resolve must not write")
	}

	if _, err := h.queueSvc.Resolve(ctx, "hq-missing", "GO", "alice", ""); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.queueSvc.Resolve(ctx, items[0].QueueID, "MAYBE", "alice", ""); !errors.Is(err, humanqueue.ErrInvalidDecision) {
		t.Fatalf("expected invalid decision, got %v", err)
	}
}

func TestHumanQueueDisabledRunsAutomatedReviews(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, func(c *feature.Context) {
		t2Policy(c)
		c.PolicyGate.HumanQueue.Enabled = boolPtr(false)
	})
	res, err := h.orchestrator(service.OrchestratorConfig{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != service.RunCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Reason)
	}
	items, _ := h.queueSvc.List(context.Background(), "")
	if len(items) != 0 {
		t.Fatalf("nothing should be enqueued, got %d", len(items))
	}
	var rec review.RouteRecord
	decode(t, h.store, review.RoutePath("design-l1"), &rec)
	if !slices.ContainsFunc(rec.Warnings, func(w string) bool { return strings.Contains(w, "human queue disabled") }) {
		t.Fatalf("expected disabled-queue warning, got %v", rec.Warnings)
	}
}

func TestRunFailedTaskIsRecordedAndLoopContinues(t *testing.T) {
	h := newHarness(t, "demo")
	h.adapter.fail["design-l1"] = true
	var progress bytes.Buffer

	res, err := h.orchestrator(service.OrchestratorConfig{Progress: &progress}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != service.RunStuck {
		t.Fatalf("expected stuck, got %s", res.Status)
	}
	c := mustContext(t, h.store)
	last := c.ExecutionLog[len(c.ExecutionLog)-1]
	if last.TaskID != "design-l1" || last.Status != "FAILED" || last.ExitCode != 3 || last.ErrorKind != "COMMAND_ERROR" {
		t.Fatalf("unexpected execution entry %+v", last)
	}
	if h := c.HandoverNotes.History[len(c.HandoverNotes.History)-1]; h.Status != "FAILED" {
		t.Fatalf("handover must be written on failure: %+v", h)
	}
	if !strings.Contains(progress.String(), "✗ Task design-l1 failed\n  boom\n") {
		t.Errorf("unexpected progress:\n%s", progress.String())
	}
}

func TestRunUnknownDependencyAborts(t *testing.T) {
	h := newHarness(t, "demo")
	_ = h.store.WriteFile(context.Background(), "workflow.json",
		[]byte(`{"a": {"status": "PENDING", "dependencies": ["ghost"], "command": "x"}}`))

	_, err := h.orchestrator(service.OrchestratorConfig{}).Run(context.Background())
	if !errors.Is(err, workflow.ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}
	if len(h.adapter.invoked()) != 0 {
		t.Fatal("no task may run on an invalid graph")
	}
}

func TestRunIterationCap(t *testing.T) {
	h := newHarness(t, "demo")
	res, err := h.orchestrator(service.OrchestratorConfig{MaxIterations: 2}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != service.RunIterationCap || res.Iterations != 2 {
		t.Fatalf("expected cap after 2 rounds, got %s %d", res.Status, res.Iterations)
	}
	if !slices.Equal(res.Executed, []string{"init", "define-requirements"}) {
		t.Fatalf("unexpected executions %v", res.Executed)
	}
}

func TestRunManual(t *testing.T) {
	h := newHarness(t, "demo")
	var progress bytes.Buffer
	o := h.orchestrator(service.OrchestratorConfig{Mode: service.ModeManual, Progress: &progress})

	choices := []string{"bogus", "init", "quit"}
	var offered [][]string
	res, err := o.RunManual(context.Background(), func(_ context.Context, ready []string) (string, error) {
		offered = append(offered, ready)
		next := choices[0]
		choices = choices[1:]
		return next, nil
	})
	if err != nil {
		t.Fatalf("manual run: %v", err)
	}
	if res.Status != service.RunQuit || !slices.Equal(res.Executed, []string{"init"}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(progress.String(), "Task 'bogus' is not ready or doesn't exist.") {
		t.Errorf("missing invalid choice line:\n%s", progress.String())
	}
	if !slices.Equal(offered[2], []string{"define-requirements"}) {
		t.Errorf("expected define-requirements offered after init, got %v", offered[2])
	}
}

func TestStep(t *testing.T) {
	h := newHarness(t, "demo")
	o := h.orchestrator(service.OrchestratorConfig{})
	ctx := context.Background()

	if _, err := o.Step(ctx, "design-l1"); !errors.Is(err, service.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	res, err := o.Step(ctx, "init")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Status != service.RunStepped {
		t.Fatalf("expected stepped, got %s", res.Status)
	}
	if s := mustTask(t, mustGraph(t, h.store), "init").Status; s != workflow.StatusCompleted {
		t.Fatalf("init should be COMPLETED, got %s", s)
	}
}

func TestSupervisedModeReportsMilestones(t *testing.T) {
	h := newHarness(t, "demo")
	var progress bytes.Buffer
	if _, err := h.orchestrator(service.OrchestratorConfig{Mode: service.ModeSupervised, Progress: &progress}).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, m := range workflow.Phases {
		if !strings.Contains(progress.String(), "Milestone: "+m+" completed") {
			t.Errorf("missing milestone %s", m)
		}
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]service.Mode{"": service.ModeAutonomous, "Manual": service.ModeManual, "supervised": service.ModeSupervised} {
		got, err := service.ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := service.ParseMode("turbo"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
