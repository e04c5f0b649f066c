// Package filestore persists feature directories on the local filesystem:
// the workflow graph, the feature context, review artifacts and the file
// backed human queue.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
)

// Feature is a featurestore.Store rooted at one directory.
type Feature struct {
	dir string
}

var _ featurestore.Store = (*Feature)(nil)

// Open returns the store of the feature at dir. The directory is not
// created until the first write.
func Open(dir string) (*Feature, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve feature dir %s: %w", dir, err)
	}
	return &Feature{dir: abs}, nil
}

// Dir returns the absolute feature directory.
func (f *Feature) Dir() string { return f.dir }

// Name returns the feature id.
func (f *Feature) Name() string { return filepath.Base(f.dir) }

// Path resolves a feature-relative path. Paths escaping the feature
// directory are rejected.
func (f *Feature) Path(rel string) (string, error) {
	return featurestore.Resolve(f.dir, rel)
}

// Exists reports whether a feature file is present.
func (f *Feature) Exists(rel string) bool {
	p, err := f.Path(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// LoadGraph reads workflow.json and validates the graph.
func (f *Feature) LoadGraph(_ context.Context) (*workflow.Graph, error) {
	data, err := f.read(featurestore.WorkflowFile)
	if err != nil {
		return nil, err
	}
	g := workflow.NewGraph()
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decode %s: %w", featurestore.WorkflowFile, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", featurestore.WorkflowFile, err)
	}
	return g, nil
}

// SaveGraph rewrites workflow.json.
func (f *Feature) SaveGraph(_ context.Context, g *workflow.Graph) error {
	return f.writeJSON(featurestore.WorkflowFile, g)
}

// LoadContext reads context.json.
func (f *Feature) LoadContext(_ context.Context) (*feature.Context, error) {
	data, err := f.read(featurestore.ContextFile)
	if err != nil {
		return nil, err
	}
	var c feature.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", featurestore.ContextFile, err)
	}
	return &c, nil
}

// SaveContext rewrites context.json.
func (f *Feature) SaveContext(_ context.Context, c *feature.Context) error {
	return f.writeJSON(featurestore.ContextFile, c)
}

// ReadArtifact returns the bytes of a feature file.
func (f *Feature) ReadArtifact(_ context.Context, rel string) ([]byte, error) {
	return f.read(rel)
}

// WriteJSON writes v as indented JSON.
func (f *Feature) WriteJSON(_ context.Context, rel string, v any) error {
	return f.writeJSON(rel, v)
}

// WriteFile writes raw bytes.
func (f *Feature) WriteFile(_ context.Context, rel string, data []byte) error {
	p, err := f.Path(rel)
	if err != nil {
		return err
	}
	if err := AtomicWrite(p, data); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

func (f *Feature) read(rel string) ([]byte, error) {
	p, err := f.Path(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // G304: path confined to the feature dir
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

func (f *Feature) writeJSON(rel string, v any) error {
	p, err := f.Path(rel)
	if err != nil {
		return err
	}
	if err := AtomicWriteJSON(p, v); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
