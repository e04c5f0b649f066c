// Package featurestore defines the persistence port of one feature
// directory: its task graph, its context and its artifacts.
package featurestore

import (
	"context"

	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
)

// Well-known document names inside a feature directory.
const (
	WorkflowFile = "workflow.json"
	ContextFile  = "context.json"
)

// Store persists one feature. Every save rewrites the whole document; a
// reader never observes a partially written file. Paths are relative to
// the feature directory. Missing documents are reported with an error
// wrapping domain.ErrNotFound.
type Store interface {
	// Dir returns the feature directory.
	Dir() string

	// Name returns the feature id (the directory's base name).
	Name() string

	LoadGraph(ctx context.Context) (*workflow.Graph, error)
	SaveGraph(ctx context.Context, g *workflow.Graph) error

	LoadContext(ctx context.Context) (*feature.Context, error)
	SaveContext(ctx context.Context, c *feature.Context) error

	// ReadArtifact returns the raw bytes of a feature file.
	ReadArtifact(ctx context.Context, rel string) ([]byte, error)

	// WriteJSON writes v as indented JSON.
	WriteJSON(ctx context.Context, rel string, v any) error

	// WriteFile writes raw bytes.
	WriteFile(ctx context.Context, rel string, data []byte) error
}
