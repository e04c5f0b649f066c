package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/sddflow/internal/adapter/otel"
	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
)

// FeatureOpener opens the store of one feature directory.
type FeatureOpener func(dir string) (featurestore.Store, error)

// Feature bundles the services bound to one feature directory.
type Feature struct {
	Store   featurestore.Store
	Context *ContextService
	Queue   *QueueService
}

// Workspace opens features below a root directory with shared queue
// backends, events and metrics.
type Workspace struct {
	root     string
	open     FeatureOpener
	backends QueueBackends
	events   *Events
	metrics  *otel.Metrics
}

// NewWorkspace creates a workspace rooted at root.
func NewWorkspace(root string, open FeatureOpener, backends QueueBackends) *Workspace {
	return &Workspace{root: root, open: open, backends: backends}
}

// SetEvents attaches the event emitter handed to every opened feature.
func (w *Workspace) SetEvents(e *Events) { w.events = e }

// SetMetrics attaches the metrics handed to every opened feature.
func (w *Workspace) SetMetrics(m *otel.Metrics) { w.metrics = m }

// Root returns the workspace root.
func (w *Workspace) Root() string { return w.root }

// Features returns the names of every feature below the root, relative to
// it and slash separated.
func (w *Workspace) Features() ([]string, error) {
	dirs, err := DiscoverFeatures(w.root)
	if err != nil {
		return nil, err
	}
	root, err := filepath.EvalSymlinks(w.root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", w.root, err)
	}
	names := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		rel, err := filepath.Rel(root, dir)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return names, nil
}

// Feature opens the feature called name. Names must stay inside the root
// and the directory must hold a workflow.json.
func (w *Workspace) Feature(_ context.Context, name string) (*Feature, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if name == "" || clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("invalid feature name %q: %w", name, domain.ErrValidation)
	}
	dir := filepath.Join(w.root, clean)
	if _, err := os.Stat(filepath.Join(dir, featurestore.WorkflowFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("feature %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("feature %s: %w", name, err)
	}
	store, err := w.open(dir)
	if err != nil {
		return nil, err
	}
	return w.Bind(store), nil
}

// Bind wires the services of an already opened store.
func (w *Workspace) Bind(store featurestore.Store) *Feature {
	ctxSvc := NewContextService(store)
	q := NewQueueService(store, ctxSvc, w.backends)
	q.SetEvents(w.events)
	q.SetMetrics(w.metrics)
	return &Feature{Store: store, Context: ctxSvc, Queue: q}
}
