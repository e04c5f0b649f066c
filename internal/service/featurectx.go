package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
)

// ContextService owns the context.json of one feature. Every mutation reads
// the whole document from the store, applies the change and writes it back,
// so values written by task commands between mutations are never lost.
type ContextService struct {
	store featurestore.Store
	mu    sync.Mutex
}

// NewContextService creates a ContextService for the feature behind store.
func NewContextService(store featurestore.Store) *ContextService {
	return &ContextService{store: store}
}

// Load returns the persisted context, or the defaults when none exists yet.
// A present document is returned as is: a missing policy_gate stays missing.
func (s *ContextService) Load(ctx context.Context) (*feature.Context, error) {
	c, err := s.store.LoadContext(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return feature.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load feature context: %w", err)
	}
	return c, nil
}

// Ensure writes the default context when the feature has none and returns
// the current document.
func (s *ContextService) Ensure(ctx context.Context) (*feature.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.LoadContext(ctx)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load feature context: %w", err)
	}
	c = feature.Default()
	if err := s.store.SaveContext(ctx, c); err != nil {
		return nil, fmt.Errorf("create feature context: %w", err)
	}
	return c, nil
}

// Init merges defaults into the persisted context without replacing present
// values, logs or foreign keys, and saves the result.
func (s *ContextService) Init(ctx context.Context, defaults *feature.Context) (*feature.Context, error) {
	if defaults == nil {
		defaults = feature.Default()
	}
	return s.Update(ctx, func(c *feature.Context) error {
		c.Merge(defaults)
		return nil
	})
}

// Update applies fn to the current context and persists it when fn succeeds.
func (s *ContextService) Update(ctx context.Context, fn func(*feature.Context) error) (*feature.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.store.SaveContext(ctx, c); err != nil {
		return nil, fmt.Errorf("save feature context: %w", err)
	}
	return c, nil
}
