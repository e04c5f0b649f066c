package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/sddflow/internal/adapter/otel"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/policygate"
	"github.com/Strob0t/sddflow/internal/domain/review"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
	"github.com/Strob0t/sddflow/internal/port/messagequeue"
)

// RouteOutcome is the result of evaluating one routing task.
type RouteOutcome struct {
	Phase   string
	Result  policygate.Result
	QueueID string
	// Success is false only for NO_GO.
	Success bool

	// Halt asks the loop to stop after this task.
	Halt       bool
	HaltReason string
}

// Summary renders the outcome for the execution log.
func (o *RouteOutcome) Summary() string {
	s := fmt.Sprintf("route %s for %s", o.Result.Decision, o.Phase)
	if o.QueueID != "" {
		s += " (queue " + o.QueueID + ")"
	}
	return s
}

// RouterService evaluates the policy gate for routing tasks and applies the
// route's side effects to the graph, the queue and the feature context.
type RouterService struct {
	store   featurestore.Store
	ctxSvc  *ContextService
	queue   *QueueService
	events  *Events
	metrics *otel.Metrics
}

// NewRouterService creates a RouterService.
func NewRouterService(store featurestore.Store, ctxSvc *ContextService, queue *QueueService) *RouterService {
	return &RouterService{store: store, ctxSvc: ctxSvc, queue: queue}
}

// SetEvents sets the event fan-out for route evaluations.
func (s *RouterService) SetEvents(e *Events) { s.events = e }

// SetMetrics sets the metric instruments for route evaluations.
func (s *RouterService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Route evaluates the policy gate for routeTaskID and mutates g accordingly.
// The caller persists g and sets the routing task's own status from Success.
func (s *RouterService) Route(ctx context.Context, g *workflow.Graph, routeTaskID string) (*RouteOutcome, error) {
	phase := workflow.PhaseOfRoute(routeTaskID)
	if phase == "" {
		return nil, fmt.Errorf("%s is not a routing task", routeTaskID)
	}
	ctx, span := otel.StartRouteSpan(ctx, s.store.Name(), phase)
	defer span.End()
	log := logger.FromContext(ctx).With("phase", phase)

	fc, err := s.ctxSvc.Load(ctx)
	if err != nil {
		return nil, err
	}
	res := policygate.Evaluate(fc.RiskTier, fc.PolicyGate, fc.PolicyGate.EvidenceFor(phase))
	out := &RouteOutcome{Phase: phase, Result: res, Success: true}

	switch res.Decision {
	case policygate.DecisionAutoApprove:
		done := review.ApplyAutoApprove(g, phase)
		log.Info("policy gate auto-approved phase", "reviews", done)

	case policygate.DecisionHumanQueue:
		if !fc.PolicyGate.QueueEnabled() {
			out.Result.Warnings = append(out.Result.Warnings,
				"human queue disabled; reviews proceed as automated reviews")
			break
		}
		item, _, err := s.queue.Enqueue(ctx, phase, routeTaskID, res)
		if err != nil {
			return nil, err
		}
		out.QueueID = item.QueueID
		held := review.HoldForHuman(g, phase)
		log.Info("phase held for human review", "queue_id", item.QueueID, "held", held)
		if fc.PolicyGate.PauseOnEnqueue() {
			out.Halt = true
			out.HaltReason = fmt.Sprintf("Human review required for %s (queue_id=%s)", phase, item.QueueID)
		}

	case policygate.DecisionNoGo:
		out.Success = false
		log.Warn("policy gate returned NO_GO", "failed_criteria", res.FailedCriteria)
	}

	at := feature.Now()
	rec := review.RouteRecord{
		Phase:           phase,
		Route:           string(res.Decision),
		RiskTier:        res.RiskTier,
		Rationale:       res.Rationale,
		FailedCriteria:  res.FailedCriteria,
		Warnings:        out.Result.Warnings,
		EvidenceSummary: res.EvidenceSummary,
		RouteTask:       routeTaskID,
		EvaluatedAt:     at,
		QueueID:         out.QueueID,
	}
	if err := s.store.WriteJSON(ctx, review.RoutePath(phase), rec); err != nil {
		return nil, fmt.Errorf("write route artifact: %w", err)
	}

	_, err = s.ctxSvc.Update(ctx, func(c *feature.Context) error {
		c.UpdateRouting(phase, feature.RoutingStatus{
			Route:          rec.Route,
			RiskTier:       rec.RiskTier,
			RouteTask:      routeTaskID,
			FailedCriteria: rec.FailedCriteria,
			Warnings:       rec.Warnings,
			EvaluatedAt:    at,
			QueueID:        rec.QueueID,
		})
		if res.Decision == policygate.DecisionNoGo {
			c.SetIntervention(routeTaskID,
				fmt.Sprintf("policy gate NO_GO for %s: %v", phase, res.FailedCriteria))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRoute(ctx, phase, rec.Route)
	s.events.Emit(ctx, EventRouteEvaluated, messagequeue.RouteEventPayload{
		Feature:        s.store.Name(),
		Phase:          phase,
		Route:          rec.Route,
		RiskTier:       rec.RiskTier,
		FailedCriteria: rec.FailedCriteria,
		QueueID:        rec.QueueID,
		Timestamp:      at,
	})
	return out, nil
}
