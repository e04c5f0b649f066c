package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConstitutionMergesDownTheTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConstitutionFile), `
principles:
  testing: required
  style: gofmt
owner: platform
`)
	writeFile(t, filepath.Join(root, "services", "billing", ConstitutionFile), `
principles:
  style: house
owner: billing
`)

	got, err := LoadConstitution(root, "services/billing")
	if err != nil {
		t.Fatalf("LoadConstitution: %v", err)
	}
	if got["owner"] != "billing" {
		t.Errorf("deeper file should win, got %v", got["owner"])
	}
	principles, ok := got["principles"].(map[string]any)
	if !ok {
		t.Fatalf("principles not merged as a map: %#v", got["principles"])
	}
	if principles["testing"] != "required" || principles["style"] != "house" {
		t.Errorf("unexpected principles %v", principles)
	}
}

func TestLoadConstitutionOutsideRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConstitutionFile), "owner: platform\n")

	got, err := LoadConstitution(filepath.Join(root, "a"), "../..")
	if err != nil {
		t.Fatalf("LoadConstitution: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map outside the root, got %v", got)
	}
}

func TestLoadConstitutionIgnoresNonMapping(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConstitutionFile), "- just\n- a list\n")

	got, err := LoadConstitution(root, ".")
	if err != nil {
		t.Fatalf("LoadConstitution: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestDeepMergeReplacesScalars(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": []any{1}}
	over := map[string]any{"a": map[string]any{"y": 3}, "b": "flat"}

	got := DeepMerge(base, over)
	a := got["a"].(map[string]any)
	if a["x"] != 1 || a["y"] != 3 {
		t.Errorf("unexpected nested merge %v", a)
	}
	if got["b"] != "flat" {
		t.Errorf("expected scalar override, got %v", got["b"])
	}
	if base["a"].(map[string]any)["y"] != 2 {
		t.Error("base must not be mutated")
	}
}
