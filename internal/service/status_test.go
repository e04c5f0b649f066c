package service_test

import (
	"context"
	"slices"
	"testing"

	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/service"
)

func TestStatusReport(t *testing.T) {
	h := newHarness(t, "demo")
	h.policy(t, t2Policy)
	if _, err := h.orchestrator(service.OrchestratorConfig{}).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	r, err := service.Status(context.Background(), h.store)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if r.Counts["TOTAL"] != 18 || r.Counts["COMPLETED"] != 4 {
		t.Fatalf("unexpected counts %v", r.Counts)
	}
	if len(r.Ready) != 0 || len(r.Running) != 0 || len(r.Failed) != 0 {
		t.Fatalf("unexpected lists %+v", r)
	}
	if !slices.Equal(r.AwaitingHuman, []string{"review-l1-ba", "review-l1-pe", "review-l1-le"}) {
		t.Fatalf("unexpected held tasks %v", r.AwaitingHuman)
	}
	if r.Agents["review-l1-pe"] != "sdd-pe" {
		t.Errorf("unexpected agent map %v", r.Agents)
	}
}

func TestStatusWithoutWorkflow(t *testing.T) {
	if _, err := service.Status(context.Background(), newMemStore("empty")); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInitFeatureMergesContext(t *testing.T) {
	h := newHarness(t, "demo")
	c := mustContext(t, h.store)
	if c.RiskTier != "T1" || c.PolicyGate.EvidenceFor("design-l2")["acceptance_evidence"] != "PASS" {
		t.Fatalf("template values not applied: %+v", c)
	}

	h.policy(t, func(c *feature.Context) {
		c.RiskTier = "T2"
		c.AppendExecution(feature.ExecutionEntry{TaskID: "init", Status: "COMPLETED"})
	})
	tmpl := mustTemplate(t, "demo")
	if _, err := service.InitFeature(context.Background(), h.store, h.ctxSvc, tmpl, service.InitOptions{}); err == nil {
		t.Fatal("expected conflict without force")
	}
	if _, err := service.InitFeature(context.Background(), h.store, h.ctxSvc, tmpl, service.InitOptions{Force: true}); err != nil {
		t.Fatalf("forced init: %v", err)
	}
	c = mustContext(t, h.store)
	if c.RiskTier != "T2" || len(c.ExecutionLog) != 1 {
		t.Fatalf("re-init must merge, not replace: %+v", c)
	}
}
