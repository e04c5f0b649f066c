package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/sddflow/internal/domain"
	"github.com/Strob0t/sddflow/internal/domain/policygate"
	"github.com/Strob0t/sddflow/internal/domain/workflow"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// DefaultTemplate is the built-in template used by "sddflow init".
const DefaultTemplate = "default"

// WorkflowTemplate is a YAML workflow definition from which a feature's
// workflow.json and initial context are created.
type WorkflowTemplate struct {
	Name     string                         `yaml:"name"`
	RiskTier string                         `yaml:"risk_tier"`
	Evidence map[string]policygate.Evidence `yaml:"evidence"`
	Tasks    []TemplateTask                 `yaml:"tasks"`
}

// TemplateTask is one task declaration of a template.
type TemplateTask struct {
	ID           string   `yaml:"id"`
	Command      string   `yaml:"command"`
	Dependencies []string `yaml:"dependencies"`
}

// ErrInvalidTemplate reports a structurally broken workflow template.
var ErrInvalidTemplate = fmt.Errorf("invalid workflow template: %w", domain.ErrValidation)

// ParseWorkflowTemplate decodes and validates a YAML workflow template.
func ParseWorkflowTemplate(data []byte) (*WorkflowTemplate, error) {
	var t WorkflowTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse workflow template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadWorkflowTemplate reads a template file from disk.
func LoadWorkflowTemplate(path string) (*WorkflowTemplate, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("read workflow template: %w", err)
	}
	t, err := ParseWorkflowTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// BuiltinTemplate returns one of the embedded templates by name.
func BuiltinTemplate(name string) (*WorkflowTemplate, error) {
	data, err := templateFS.ReadFile(path.Join("templates", name+".yaml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workflow template %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("workflow template %q: %w", name, err)
	}
	return ParseWorkflowTemplate(data)
}

// BuiltinTemplates lists the names of the embedded templates.
func BuiltinTemplates() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Validate checks for a non-empty task list, present and unique ids, and
// dependencies that name declared tasks.
func (t *WorkflowTemplate) Validate() error {
	if len(t.Tasks) == 0 {
		return fmt.Errorf("tasks list must not be empty: %w", ErrInvalidTemplate)
	}
	ids := make(map[string]bool, len(t.Tasks))
	for i, task := range t.Tasks {
		if strings.TrimSpace(task.ID) == "" {
			return fmt.Errorf("task #%d has no id: %w", i+1, ErrInvalidTemplate)
		}
		if ids[task.ID] {
			return fmt.Errorf("duplicate task id %s: %w", task.ID, ErrInvalidTemplate)
		}
		ids[task.ID] = true
	}
	for _, task := range t.Tasks {
		for _, dep := range task.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("task %s has unknown dependency %s: %w", task.ID, dep, ErrInvalidTemplate)
			}
		}
	}
	return nil
}

// Graph builds the initial task graph: every task PENDING, in template order.
func (t *WorkflowTemplate) Graph() (*workflow.Graph, error) {
	g := workflow.NewGraph()
	for _, task := range t.Tasks {
		g.Add(&workflow.Task{
			ID:           task.ID,
			Status:       workflow.StatusPending,
			Command:      task.Command,
			Dependencies: append([]string(nil), task.Dependencies...),
		})
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("workflow template %s: %w", t.Name, err)
	}
	return g, nil
}
