package service_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Strob0t/sddflow/internal/adapter/filestore"
	"github.com/Strob0t/sddflow/internal/config"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/policygate"
	"github.com/Strob0t/sddflow/internal/domain/review"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/port/queuestore"
	"github.com/Strob0t/sddflow/internal/service"
)

func TestRouteRejectsNonRoutingTask(t *testing.T) {
	h := newHarness(t, "demo")
	g := mustGraph(t, h.store)

	for _, id := range []string{"design-l1", "route-review-", "init"} {
		if _, err := h.router.Route(context.Background(), g, id); err == nil {
			t.Errorf("Route(%q) should fail", id)
		}
	}
	if h.store.has(review.RoutePath("design-l1")) {
		t.Fatal("no route artifact should be written for a rejected task")
	}
}

func TestRouteLegacyPolicyFallsBackToAutoReview(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, func(c *feature.Context) { c.PolicyGate = nil })
	hub := &recordingHub{}
	h.router.SetEvents(service.NewEvents(hub, nil, nil))
	g := mustGraph(t, h.store)

	out, err := h.router.Route(context.Background(), g, "route-review-l1")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !out.Success || out.Halt || out.Phase != "design-l1" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Result.Decision != policygate.DecisionAutoReview {
		t.Fatalf("decision = %s, want AUTO_REVIEW", out.Result.Decision)
	}

	var rec review.RouteRecord
	decode(t, h.store, review.RoutePath("design-l1"), &rec)
	if rec.Route != string(policygate.DecisionAutoReview) || rec.RouteTask != "route-review-l1" {
		t.Fatalf("route record = %+v", rec)
	}
	if len(rec.Warnings) == 0 {
		t.Fatal("legacy fallback should carry a warning")
	}

	st, ok := mustContext(t, h.store).ReviewRouting["design-l1"]
	if !ok || st.Route != rec.Route || st.RouteTask != "route-review-l1" {
		t.Fatalf("review_routing = %+v", st)
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if !slices.Contains(hub.events, service.EventRouteEvaluated) {
		t.Fatalf("events = %v, want %s", hub.events, service.EventRouteEvaluated)
	}
}

func TestRouteReusesOpenQueueItem(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, t2Policy)
	ctx := context.Background()
	g := mustGraph(t, h.store)

	first, err := h.router.Route(ctx, g, "route-review-l1")
	if err != nil {
		t.Fatalf("first route: %v", err)
	}
	if first.QueueID == "" || !first.Halt {
		t.Fatalf("first outcome = %+v", first)
	}
	if !strings.Contains(first.HaltReason, first.QueueID) {
		t.Fatalf("halt reason %q should name the queue item", first.HaltReason)
	}
	if !strings.Contains(first.Summary(), "queue "+first.QueueID) {
		t.Fatalf("summary = %q", first.Summary())
	}

	second, err := h.router.Route(ctx, g, "route-review-l1")
	if err != nil {
		t.Fatalf("second route: %v", err)
	}
	if second.QueueID != first.QueueID {
		t.Fatalf("queue id = %s, want reuse of %s", second.QueueID, first.QueueID)
	}

	h.queue.mu.Lock()
	n := len(h.queue.items)
	h.queue.mu.Unlock()
	if n != 1 {
		t.Fatalf("queue has %d items, want 1", n)
	}

	held := 0
	for _, id := range review.TasksForPhase(g, "design-l1") {
		if mustTask(t, g, id).AwaitingHuman {
			held++
		}
	}
	if held == 0 {
		t.Fatal("phase reviews should be held for the human decision")
	}
}

func TestRouteMalformedPolicyWarnsInsteadOfFailing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "feat-1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := filestore.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctxSvc := service.NewContextService(store)
	tmpl, err := config.BuiltinTemplate("demo")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := service.InitFeature(ctx, store, ctxSvc, tmpl, service.InitOptions{}); err != nil {
		t.Fatalf("init: %v", err)
	}

	raw := `{
  "risk_tier": "T1",
  "policy_gate": {
    "auto_review_enabled": "yes",
    "enforce_mandatory_evidence": 1,
    "requirement_coverage": {"enabled": true, "mode": 7},
    "human_queue": "file",
    "evidence": {
      "design-l1": {"acceptance_evidence": "PASS", "verification_results": true},
      "design-l2": "done"
    }
  }
}`
	if err := os.WriteFile(filepath.Join(dir, "context.json"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	queue := service.NewQueueService(store, ctxSvc, service.QueueBackends{
		File: func(p string) queuestore.Store { return filestore.NewQueue(p) },
	})
	router := service.NewRouterService(store, ctxSvc, queue)
	out, err := router.Route(ctx, mustFileGraph(t, store), "route-review-l1")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if out.Result.Decision != policygate.DecisionAutoReview {
		t.Fatalf("decision = %s, want AUTO_REVIEW", out.Result.Decision)
	}
	for _, want := range []string{
		"auto_review_enabled has the wrong type; using the default",
		"enforce_mandatory_evidence has the wrong type; using the default",
		"human_queue has the wrong type; using the default",
		"evidence.design-l2 has the wrong type; using the default",
		"requirement_coverage.mode has the wrong type; using the default",
	} {
		if !slices.Contains(out.Result.Warnings, want) {
			t.Errorf("missing warning %q in %v", want, out.Result.Warnings)
		}
	}

	// The routing update must not rewrite the user's malformed values.
	data, err := os.ReadFile(filepath.Join(dir, "context.json"))
	if err != nil {
		t.Fatal(err)
	}
	var saved struct {
		PolicyGate map[string]json.RawMessage `json:"policy_gate"`
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if got := string(saved.PolicyGate["auto_review_enabled"]); got != `"yes"` {
		t.Errorf("auto_review_enabled saved as %s", got)
	}
	if got := string(saved.PolicyGate["human_queue"]); got != `"file"` {
		t.Errorf("human_queue saved as %s", got)
	}
}

func mustFileGraph(t *testing.T, store *filestore.Feature) *workflow.Graph {
	t.Helper()
	g, err := store.LoadGraph(context.Background())
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	return g
}
