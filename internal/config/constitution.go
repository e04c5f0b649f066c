package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConstitutionFile is the file name looked up in every directory between the
// project root and a task's working directory.
const ConstitutionFile = "constitution.yaml"

// LoadConstitution merges every constitution.yaml from projectRoot down to
// workdir (relative to projectRoot). Deeper files win key by key. A workdir
// outside the project root yields an empty map.
func LoadConstitution(projectRoot, workdir string) (map[string]any, error) {
	merged := map[string]any{}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("constitution root: %w", err)
	}
	target := workdir
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, workdir)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return merged, nil
	}

	chain := []string{root}
	if rel != "." {
		dir := root
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			dir = filepath.Join(dir, part)
			chain = append(chain, dir)
		}
	}

	for _, dir := range chain {
		doc, err := readYAMLMap(filepath.Join(dir, ConstitutionFile))
		if err != nil {
			return nil, err
		}
		merged = DeepMerge(merged, doc)
	}
	return merged, nil
}

// DeepMerge returns base overlaid with override. Nested maps merge
// recursively; every other value in override replaces the base value.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		ov, okOverride := v.(map[string]any)
		bv, okBase := out[k].(map[string]any)
		if okOverride && okBase {
			out[k] = DeepMerge(bv, ov)
			continue
		}
		out[k] = v
	}
	return out
}

// readYAMLMap reads a YAML mapping. A missing file or a non-mapping document
// yields an empty map.
func readYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from the project tree
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return m, nil
}
