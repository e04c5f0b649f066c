package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/sddflow/internal/adapter/otel"
	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/domain/policygate"
	"github.com/Strob0t/sddflow/internal/domain/review"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
	"github.com/Strob0t/sddflow/internal/port/messagequeue"
	"github.com/Strob0t/sddflow/internal/port/queuestore"
)

// defaultWaitPoll is the polling interval used when the queue backend
// cannot be watched for changes.
const defaultWaitPoll = 2 * time.Second

// ChangeWatcher blocks until check reports done, re-running check whenever
// the file at path changes. It returns ctx.Err() on cancellation.
type ChangeWatcher func(ctx context.Context, path string, check func() (bool, error)) error

// QueueBackends opens the queue store selected by a feature's policy. File is
// required; Postgres is nil when no database is configured.
type QueueBackends struct {
	File     func(path string) queuestore.Store
	Postgres func(feature string) queuestore.Store
	Watch    ChangeWatcher
}

// QueueService implements the human queue protocol of one feature: enqueue
// on HUMAN_QUEUE routes, list, ack and the terminal resolve that writes back
// into the task graph, the review artifacts and the feature context.
type QueueService struct {
	store    featurestore.Store
	ctxSvc   *ContextService
	backends QueueBackends
	events   *Events
	metrics  *otel.Metrics
	poll     time.Duration
}

// NewQueueService creates a QueueService.
func NewQueueService(store featurestore.Store, ctxSvc *ContextService, backends QueueBackends) *QueueService {
	return &QueueService{store: store, ctxSvc: ctxSvc, backends: backends, poll: defaultWaitPoll}
}

// SetEvents sets the event fan-out for queue transitions.
func (s *QueueService) SetEvents(e *Events) { s.events = e }

// SetMetrics sets the metric instruments for queue transitions.
func (s *QueueService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// SetPollInterval overrides the polling interval of Wait on unwatched backends.
func (s *QueueService) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.poll = d
	}
}

// openQueue returns the configured backend and, for the file backend, the
// absolute queue file path.
func (s *QueueService) openQueue(ctx context.Context) (queuestore.Store, string, string, error) {
	fc, err := s.ctxSvc.Load(ctx)
	if err != nil {
		return nil, "", "", err
	}
	cfg := fc.PolicyGate
	if cfg.QueueBackend() == policygate.BackendPostgres {
		if s.backends.Postgres != nil {
			return s.backends.Postgres(s.store.Name()), "", policygate.BackendPostgres, nil
		}
		logger.FromContext(ctx).Warn("postgres human queue backend requested but no database configured; using file backend")
	}
	if s.backends.File == nil {
		return nil, "", "", fmt.Errorf("human queue file backend not configured: %w", domain.ErrValidation)
	}
	path, err := featurestore.Resolve(s.store.Dir(), cfg.QueueFilePath())
	if err != nil {
		return nil, "", "", fmt.Errorf("human_queue.file_path: %w", err)
	}
	return s.backends.File(path), path, policygate.BackendFile, nil
}

// Location describes the active backend.
func (s *QueueService) Location(ctx context.Context) (string, error) {
	q, _, _, err := s.openQueue(ctx)
	if err != nil {
		return "", err
	}
	return q.Location(), nil
}

// List returns the items whose status matches the filter (empty = all).
func (s *QueueService) List(ctx context.Context, status string) ([]*humanqueue.Item, error) {
	q, _, _, err := s.openQueue(ctx)
	if err != nil {
		return nil, err
	}
	items, err := q.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list human queue: %w", err)
	}
	return humanqueue.Filter(items, status), nil
}

// Get returns one item.
func (s *QueueService) Get(ctx context.Context, queueID string) (*humanqueue.Item, error) {
	items, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	return humanqueue.Find(items, queueID)
}

// Enqueue stores a new PENDING item built from a route decision. An item of
// the same phase still awaiting a decision is returned instead of adding a
// duplicate.
func (s *QueueService) Enqueue(ctx context.Context, phase, routeTask string, res policygate.Result) (*humanqueue.Item, bool, error) {
	q, _, backend, err := s.openQueue(ctx)
	if err != nil {
		return nil, false, err
	}
	items, err := q.List(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list human queue: %w", err)
	}
	if open := humanqueue.Open(items, phase); open != nil {
		return open, false, nil
	}

	item := &humanqueue.Item{
		QueueID:         humanqueue.NewID(),
		Phase:           phase,
		Artifact:        workflow.PhaseArtifacts[phase],
		RouteTask:       routeTask,
		Route:           string(res.Decision),
		RiskTier:        res.RiskTier,
		Backend:         backend,
		Rationale:       res.Rationale,
		FailedCriteria:  res.FailedCriteria,
		Warnings:        res.Warnings,
		EvidenceSummary: res.EvidenceSummary,
		Status:          humanqueue.StatusPending,
		CreatedAt:       feature.Now(),
	}
	if err := q.Append(ctx, item); err != nil {
		return nil, false, fmt.Errorf("enqueue %s: %w", phase, err)
	}

	logger.FromContext(ctx).Info("human review enqueued", "queue_id", item.QueueID, "phase", phase, "backend", backend)
	s.emit(ctx, EventQueueEnqueued, item, "")
	return item, true, nil
}

// RequestReview enqueues a human review of phase outside of routing, for
// example when a reviewer asks for one through the API.
func (s *QueueService) RequestReview(ctx context.Context, phase, reason string) (*humanqueue.Item, bool, error) {
	if workflow.RouteTaskFor(phase) == "" {
		return nil, false, fmt.Errorf("unknown phase %q: %w", phase, domain.ErrValidation)
	}
	fc, err := s.ctxSvc.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	rationale := "Human review requested"
	if reason != "" {
		rationale += ": " + reason
	}
	return s.Enqueue(ctx, phase, workflow.RouteTaskFor(phase), policygate.Result{
		Decision:  policygate.DecisionHumanQueue,
		RiskTier:  fc.RiskTier,
		Rationale: []string{rationale},
	})
}

// Ack assigns a reviewer to an item.
func (s *QueueService) Ack(ctx context.Context, queueID, reviewer string) (*humanqueue.Item, error) {
	ctx, span := otel.StartQueueSpan(ctx, s.store.Name(), queueID, "ack")
	defer span.End()

	q, _, _, err := s.openQueue(ctx)
	if err != nil {
		return nil, err
	}
	item, err := q.Update(ctx, queueID, func(it *humanqueue.Item) error {
		return it.Ack(reviewer, feature.Now())
	})
	if err != nil {
		return nil, fmt.Errorf("ack %s: %w", queueID, err)
	}

	logger.FromContext(ctx).Info("human review acknowledged", "queue_id", queueID, "reviewer", reviewer)
	s.emit(ctx, EventQueueAcked, item, reviewer)
	return item, nil
}

// Resolve records the terminal human decision. The human audit artifact,
// the task graph, the per-review artifacts (GO) and the feature context are
// written before the queue item itself, so a failure leaves the item open
// for a retry. Resolving a terminal item fails with ErrAlreadyResolved and
// writes nothing.
func (s *QueueService) Resolve(ctx context.Context, queueID, decision, reviewer, summary string) (*humanqueue.Item, error) {
	ctx, span := otel.StartQueueSpan(ctx, s.store.Name(), queueID, "resolve")
	defer span.End()

	d, err := humanqueue.NormalizeDecision(decision)
	if err != nil {
		return nil, err
	}
	q, _, _, err := s.openQueue(ctx)
	if err != nil {
		return nil, err
	}

	item, err := q.Update(ctx, queueID, func(it *humanqueue.Item) error {
		at := feature.Now()
		if err := it.Resolve(d, reviewer, summary, at); err != nil {
			return err
		}
		return s.applyDecision(ctx, it, at)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", queueID, err)
	}

	logger.FromContext(ctx).Info("human review resolved",
		"queue_id", queueID, "phase", item.Phase, "decision", d, "reviewer", reviewer)
	s.emit(ctx, EventQueueResolved, item, reviewer)
	return item, nil
}

// applyDecision writes the consequences of a resolved item.
func (s *QueueService) applyDecision(ctx context.Context, it *humanqueue.Item, at string) error {
	phase := it.Phase
	if phase == "" {
		phase = workflow.Phases[0]
	}
	goDecision := it.HumanDecision == humanqueue.DecisionGo

	audit := review.HumanAudit{
		QueueID:      it.QueueID,
		ReviewerRole: review.HumanReviewerRole,
		Reviewer:     it.ResolvedBy,
		Decision:     it.HumanDecision,
		Status:       review.StatusRejectedWithFeedback,
		Summary:      it.ResolutionSummary,
		Timestamp:    at,
	}
	if goDecision {
		audit.Status = review.StatusApproved
	}
	if err := s.store.WriteJSON(ctx, review.HumanAuditPath(phase), audit); err != nil {
		return fmt.Errorf("write human audit: %w", err)
	}

	g, err := s.store.LoadGraph(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		g = workflow.NewGraph()
	case err != nil:
		return err
	}

	if goDecision {
		// Review artifacts are written for every reviewer of the phase, even
		// those missing from the graph, so consumers see a uniform shape.
		done := review.ApplyHumanGo(g, phase, it.ResolvedBy)
		for _, id := range review.TasksForPhase(g, phase) {
			art := review.Artifact{
				FeatureID:        s.store.Name(),
				ArtifactReviewed: it.Artifact,
				ReviewerRole:     review.HumanReviewerRole,
				Status:           review.StatusApproved,
				Route:            string(policygate.DecisionHumanQueue),
				RiskTier:         it.RiskTier,
				Decision:         review.DecisionGo,
				Timestamp:        at,
				Summary:          it.ResolutionSummary,
			}
			if err := s.store.WriteJSON(ctx, review.ArtifactPath(id), art); err != nil {
				return fmt.Errorf("write review artifact %s: %w", id, err)
			}
		}
		logger.FromContext(ctx).Debug("human GO completed reviews", "phase", phase, "tasks", done)
	} else {
		review.ApplyHumanNoGo(g, phase, it.ResolvedBy)
	}

	if g.Len() > 0 {
		if err := s.store.SaveGraph(ctx, g); err != nil {
			return fmt.Errorf("save workflow: %w", err)
		}
	}

	_, err = s.ctxSvc.Update(ctx, func(c *feature.Context) error {
		c.RecordHumanDecision(phase, it.HumanDecision, it.ResolvedBy, at)
		if !goDecision {
			c.SetIntervention(workflow.RouteTaskFor(phase),
				fmt.Sprintf("human NO_GO for %s: %s", phase, it.ResolutionSummary))
		}
		return nil
	})
	return err
}

// Wait blocks until the item leaves PENDING/ACKED and returns it. File
// queues are watched for changes; other backends are polled.
func (s *QueueService) Wait(ctx context.Context, queueID string) (*humanqueue.Item, error) {
	q, path, _, err := s.openQueue(ctx)
	if err != nil {
		return nil, err
	}

	var found *humanqueue.Item
	check := func() (bool, error) {
		items, err := q.List(ctx)
		if err != nil {
			return false, err
		}
		it, err := humanqueue.Find(items, queueID)
		if err != nil {
			return false, err
		}
		found = it
		return it.Status.IsTerminal(), nil
	}

	if path != "" && s.backends.Watch != nil {
		if err := s.backends.Watch(ctx, path, check); err != nil {
			return nil, err
		}
		return found, nil
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return nil, err
		}
		if done {
			return found, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitOpen waits for every item still awaiting a decision.
func (s *QueueService) WaitOpen(ctx context.Context) ([]*humanqueue.Item, error) {
	items, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var resolved []*humanqueue.Item
	for _, it := range items {
		if it.Status.IsTerminal() {
			continue
		}
		logger.FromContext(ctx).Info("waiting for human decision", "queue_id", it.QueueID, "phase", it.Phase)
		done, err := s.Wait(ctx, it.QueueID)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, done)
	}
	return resolved, nil
}

func (s *QueueService) emit(ctx context.Context, eventType string, it *humanqueue.Item, reviewer string) {
	s.metrics.RecordQueue(ctx, string(it.Status))
	s.events.Emit(ctx, eventType, messagequeue.QueueEventPayload{
		Feature:   s.store.Name(),
		QueueID:   it.QueueID,
		Phase:     it.Phase,
		Status:    string(it.Status),
		Reviewer:  reviewer,
		Decision:  it.HumanDecision,
		Timestamp: feature.Now(),
	})
}
