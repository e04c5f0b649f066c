package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/review"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
)

// Simulation flags kept in context.sim_state.
const (
	simL1RejectedOnce = "l1_rejected_once"
)

// simDocument is a deterministic design artifact.
type simDocument struct {
	path    string
	content string
}

var simDesignDocs = map[string]simDocument{
	"design-l1": {"design/l1_architecture.md", "# L1 Architecture\n- service boundaries\n- review-safe assumptions\n"},
	"design-l2": {"design/l2_component_design.md", "# L2 Component Design\n- contracts\n- data model\n"},
	"design-l3": {"implementation/l3_plan.md", "# L3 Plan\n- task-001\n- task-002\n"},
}

// requirementsSpec is written as JSON into spec/spec.yaml; JSON is valid YAML.
type requirementsSpec struct {
	Metadata struct {
		FeatureID string `json:"featureId"`
	} `json:"metadata"`
	FunctionalRequirements []requirement `json:"functionalRequirements"`
}

type requirement struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// SimulateTask plays the agent behind taskID for demos: it writes the
// artifacts a real agent would produce. The first review-l1-ba pass rejects
// the L1 design; once the L1 rework ran, every review approves. Unknown tasks
// only persist the simulation state.
func SimulateTask(ctx context.Context, store featurestore.Store, ctxSvc *ContextService, taskID, agent string) error {
	ctx = logger.WithTaskID(logger.WithFeature(ctx, store.Name()), taskID)
	log := logger.FromContext(ctx)

	_, err := ctxSvc.Update(ctx, func(c *feature.Context) error {
		if c.SimState == nil {
			c.SimState = map[string]bool{}
		}
		switch {
		case taskID == "define-requirements":
			if err := store.WriteFile(ctx, "spec/requirements.md",
				[]byte("# Requirements\n- REQ-001: MVP supports review loops.\n")); err != nil {
				return err
			}
			var spec requirementsSpec
			spec.Metadata.FeatureID = store.Name()
			spec.FunctionalRequirements = []requirement{{ID: "REQ-001", Description: "Loop behavior"}}
			return store.WriteJSON(ctx, "spec/spec.yaml", spec)

		case workflow.Categorize(taskID) == workflow.CategoryDesign,
			workflow.Categorize(taskID) == workflow.CategoryDesignRework:
			phase := strings.TrimSuffix(taskID, "-rework")
			doc, ok := simDesignDocs[phase]
			if !ok {
				return nil
			}
			if err := store.WriteFile(ctx, doc.path, []byte(doc.content)); err != nil {
				return err
			}
			if phase != taskID {
				c.SetSimFlag(reworkDoneFlag(phase), true)
			}
			return nil

		case workflow.PhaseOfReview(taskID) != "":
			phase := workflow.PhaseOfReview(taskID)
			art := review.Artifact{
				FeatureID:        store.Name(),
				ArtifactReviewed: workflow.PhaseArtifacts[phase],
				ReviewerRole:     agent,
				Status:           review.StatusApproved,
				Decision:         review.DecisionGo,
				Timestamp:        feature.Now(),
				Summary:          "Approved",
			}
			if phase == "design-l1" {
				art.Summary = "Looks good"
				reject := !c.SimFlag(simL1RejectedOnce) && taskID == "review-l1-ba" && !c.SimFlag(reworkDoneFlag(phase))
				if reject {
					c.SetSimFlag(simL1RejectedOnce, true)
					art.Status = review.StatusRejectedWithFeedback
					art.Decision = review.DecisionNoGo
					art.Summary = "Needs tighter boundaries"
				}
			}
			return store.WriteJSON(ctx, review.ArtifactPath(taskID), art)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("simulate %s: %w", taskID, err)
	}
	log.Debug("simulated task", "agent", agent)
	return nil
}

// reworkDoneFlag returns e.g. "l1_rework_done" for "design-l1".
func reworkDoneFlag(phase string) string {
	return strings.TrimPrefix(phase, "design-") + "_rework_done"
}
