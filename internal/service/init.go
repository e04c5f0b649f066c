package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Strob0t/sddflow/internal/config"
	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/policygate"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
)

// InitOptions controls feature initialization.
type InitOptions struct {
	// Force replaces an existing workflow.json.
	Force bool
	// Runtime is stored as the feature's runtime selection when the context
	// has none.
	Runtime feature.Runtime
}

// InitFeature writes the template's task graph and merges the template's
// risk tier and evidence into the feature context. Existing context values,
// logs and foreign keys are kept.
func InitFeature(ctx context.Context, store featurestore.Store, ctxSvc *ContextService, tmpl *config.WorkflowTemplate, opts InitOptions) (*feature.Context, error) {
	_, err := store.LoadGraph(ctx)
	switch {
	case err == nil && !opts.Force:
		return nil, fmt.Errorf("%s already exists in %s: %w", featurestore.WorkflowFile, store.Dir(), domain.ErrConflict)
	case err != nil && !errors.Is(err, domain.ErrNotFound) && !opts.Force:
		return nil, err
	}

	g, err := tmpl.Graph()
	if err != nil {
		return nil, err
	}
	if err := store.SaveGraph(ctx, g); err != nil {
		return nil, err
	}

	defaults := feature.Default()
	if tmpl.RiskTier != "" {
		defaults.RiskTier = policygate.NormalizeTier(tmpl.RiskTier)
	}
	if len(tmpl.Evidence) > 0 {
		defaults.PolicyGate.Evidence = tmpl.Evidence
	}
	defaults.Runtime = opts.Runtime

	fc, err := ctxSvc.Init(ctx, defaults)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("feature initialized",
		"feature", store.Name(), "template", tmpl.Name, "tasks", g.Len(), "risk_tier", fc.RiskTier)
	return fc, nil
}
