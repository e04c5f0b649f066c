package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/sddflow/internal/domain/policygate"
	"github.com/Strob0t/sddflow/internal/domain/review"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/cache"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
)

// RouteUnknown buckets route artifacts with a missing or unrecognised route.
const RouteUnknown = "UNKNOWN"

// defaultScanLimit bounds the number of features read concurrently.
const defaultScanLimit = 8

// AuditMetrics aggregates routing and audit quality across features.
type AuditMetrics struct {
	FeaturesScanned       int            `json:"features_scanned"`
	RoutesTotal           int            `json:"routes_total"`
	RouteDistribution     map[string]int `json:"route_distribution"`
	ReworkEventsCompleted int            `json:"rework_events_completed"`
	HandoverEvents        int            `json:"handover_events"`
	AuditComparisons      int            `json:"audit_comparisons"`
	AuditDisagreements    int            `json:"audit_disagreements"`
	// AuditDisagreementRate is nil when nothing could be compared.
	AuditDisagreementRate *float64       `json:"audit_disagreement_rate"`
	ComparedItems         []ComparedItem `json:"compared_items"`
}

// ComparedItem is one phase where both an automated and a human decision exist.
type ComparedItem struct {
	Feature       string `json:"feature"`
	Phase         string `json:"phase"`
	Route         string `json:"route"`
	AutoDecision  string `json:"auto_decision"`
	HumanDecision string `json:"human_decision"`
	Disagreement  bool   `json:"disagreement"`
}

// AuditService computes AuditMetrics over feature directories. Artifact
// reads go through an optional cache keyed by path, size and mtime.
type AuditService struct {
	cache cache.Cache
	ttl   time.Duration
	limit int
}

// NewAuditService creates an AuditService. c may be nil.
func NewAuditService(c cache.Cache, ttl time.Duration) *AuditService {
	return &AuditService{cache: c, ttl: ttl, limit: defaultScanLimit}
}

// SetConcurrency bounds how many features are read at once.
func (s *AuditService) SetConcurrency(n int) {
	if n > 0 {
		s.limit = n
	}
}

// DiscoverFeatures returns every directory below root holding workflow.json
// and a review/ directory, sorted and de-duplicated.
func DiscoverFeatures(root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var dirs []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != featurestore.WorkflowFile {
			return nil
		}
		dir := filepath.Dir(path)
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			dir = resolved
		}
		if info, err := os.Stat(filepath.Join(dir, review.Dir)); err != nil || !info.IsDir() {
			return nil
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover features under %s: %w", root, err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ComputeRoot discovers features under root and aggregates them.
func (s *AuditService) ComputeRoot(ctx context.Context, root string) (*AuditMetrics, error) {
	dirs, err := DiscoverFeatures(root)
	if err != nil {
		return nil, err
	}
	return s.Compute(ctx, dirs)
}

// featureAudit is the contribution of one feature.
type featureAudit struct {
	routes     []string
	rework     int
	handovers  int
	comparison []ComparedItem
}

// Compute aggregates the given feature directories. Features are read
// concurrently; the result is combined in input order.
func (s *AuditService) Compute(ctx context.Context, dirs []string) (*AuditMetrics, error) {
	parts := make([]featureAudit, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, dir := range dirs {
		g.Go(func() error {
			part, err := s.scanFeature(gctx, dir)
			if err != nil {
				return err
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &AuditMetrics{
		FeaturesScanned:   len(dirs),
		RouteDistribution: map[string]int{RouteUnknown: 0},
		ComparedItems:     []ComparedItem{},
	}
	for _, d := range policygate.Decisions {
		m.RouteDistribution[string(d)] = 0
	}
	for _, p := range parts {
		for _, r := range p.routes {
			m.RouteDistribution[r]++
			m.RoutesTotal++
		}
		m.ReworkEventsCompleted += p.rework
		m.HandoverEvents += p.handovers
		for _, c := range p.comparison {
			m.AuditComparisons++
			if c.Disagreement {
				m.AuditDisagreements++
			}
			m.ComparedItems = append(m.ComparedItems, c)
		}
	}
	if m.AuditComparisons > 0 {
		rate := float64(m.AuditDisagreements) / float64(m.AuditComparisons)
		m.AuditDisagreementRate = &rate
	}
	logger.FromContext(ctx).Debug("audit metrics computed",
		"features", m.FeaturesScanned, "routes", m.RoutesTotal, "comparisons", m.AuditComparisons)
	return m, nil
}

// auditContext is the tolerant view of context.json the aggregator needs.
type auditContext struct {
	ExecutionLog  []json.RawMessage `json:"execution_log"`
	HandoverNotes json.RawMessage   `json:"handover_notes"`
}

func (s *AuditService) scanFeature(ctx context.Context, dir string) (featureAudit, error) {
	var part featureAudit
	name := filepath.Base(dir)

	var fc auditContext
	if s.loadJSON(ctx, filepath.Join(dir, featurestore.ContextFile), &fc) {
		for _, raw := range fc.ExecutionLog {
			var e struct {
				TaskID any `json:"task_id"`
				Status any `json:"status"`
			}
			if json.Unmarshal(raw, &e) != nil {
				continue
			}
			id, status := asString(e.TaskID), asString(e.Status)
			if strings.HasPrefix(id, "design-") && strings.Contains(id, "rework") &&
				strings.ToUpper(status) == string(workflow.StatusCompleted) {
				part.rework++
			}
		}
		var notes struct {
			History []json.RawMessage `json:"history"`
		}
		if json.Unmarshal(fc.HandoverNotes, &notes) == nil {
			part.handovers = len(notes.History)
		}
	}

	reviewDir := filepath.Join(dir, review.Dir)
	routeFiles, err := filepath.Glob(filepath.Join(reviewDir, "review_routing_*.json"))
	if err != nil {
		return part, err
	}
	sort.Strings(routeFiles)

	for _, file := range routeFiles {
		if err := ctx.Err(); err != nil {
			return part, err
		}
		var payload map[string]any
		s.loadJSON(ctx, file, &payload)

		route := RouteUnknown
		if v, ok := payload["route"]; ok {
			route = strings.ToUpper(fmt.Sprint(v))
		}
		if !knownRoute(route) {
			route = RouteUnknown
		}
		part.routes = append(part.routes, route)

		phase := review.PhaseFromRouteFile(file)
		if p, ok := payload["phase"].(string); ok {
			phase = p
		}
		if phase == "" {
			continue
		}

		auto := s.automatedDecision(ctx, reviewDir, phase, route)
		human := s.loadDecision(ctx, filepath.Join(dir, filepath.FromSlash(review.HumanAuditPath(phase))))
		if auto == "" || human == "" {
			continue
		}
		part.comparison = append(part.comparison, ComparedItem{
			Feature:       name,
			Phase:         phase,
			Route:         route,
			AutoDecision:  auto,
			HumanDecision: human,
			Disagreement:  auto != human,
		})
	}
	return part, nil
}

// automatedDecision is the decision the automated path reached for a phase:
// GO for AUTO_APPROVE, the combined reviewer verdict for AUTO_REVIEW, and
// nothing for other routes or when no reviewer recorded a decision.
func (s *AuditService) automatedDecision(ctx context.Context, reviewDir, phase, route string) string {
	switch route {
	case string(policygate.DecisionAutoApprove):
		return review.DecisionGo
	case string(policygate.DecisionAutoReview):
	default:
		return ""
	}
	var decisions []string
	for _, id := range workflow.PhaseReviewTasks[phase] {
		if d := s.loadDecision(ctx, filepath.Join(reviewDir, id+".json")); d != "" {
			decisions = append(decisions, d)
		}
	}
	if len(decisions) == 0 {
		return ""
	}
	if slices.Contains(decisions, review.DecisionNoGo) {
		return review.DecisionNoGo
	}
	return review.DecisionGo
}

func (s *AuditService) loadDecision(ctx context.Context, path string) string {
	var payload map[string]any
	if !s.loadJSON(ctx, path, &payload) {
		return ""
	}
	decision, _ := payload["decision"].(string)
	status, _ := payload["status"].(string)
	return review.NormalizeDecision(decision, status)
}

// loadJSON decodes path into v. Missing and malformed files report false.
func (s *AuditService) loadJSON(ctx context.Context, path string, v any) bool {
	data, err := s.readFile(ctx, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.FromContext(ctx).Debug("audit read failed", "path", path, "error", err)
		}
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *AuditService) readFile(ctx context.Context, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return os.ReadFile(path)
	}
	key := cache.FileKey(path, info.Size(), info.ModTime())
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		logger.FromContext(ctx).Debug("audit cache set failed", "path", path, "error", err)
	}
	return data, nil
}

func knownRoute(route string) bool {
	for _, d := range policygate.Decisions {
		if string(d) == route {
			return true
		}
	}
	return false
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
