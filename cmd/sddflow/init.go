package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Strob0t/sddflow/internal/config"
	"github.com/Strob0t/sddflow/internal/domain/feature"
	"github.com/Strob0t/sddflow/internal/service"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		template     string
		templateFile string
		force        bool
		adapter      string
		strict       bool
		timeout      int
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create workflow.json and context.json for a feature",
		Long: `Write the task graph of a workflow template to workflow.json and merge the
template's risk tier and evidence into context.json. Existing context values,
logs and keys owned by other tools are kept.

Built-in templates: ` + strings.Join(config.BuiltinTemplates(), ", ") + `

Examples:
  sddflow init --feature-dir features/checkout
  sddflow init -f features/demo --template demo
  sddflow init -f features/api --template-file workflows/api.yaml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tmpl, err := loadTemplate(template, templateFile)
			if err != nil {
				return err
			}
			store, err := a.store()
			if err != nil {
				return err
			}

			rt := feature.Runtime{Adapter: adapter, TimeoutSeconds: timeout}
			if cmd.Flags().Changed("strict") {
				rt.Strict = &strict
			}
			fc, err := service.InitFeature(cmd.Context(), store, service.NewContextService(store), tmpl,
				service.InitOptions{Force: force, Runtime: rt})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s from template %q (%d tasks, risk tier %s)\n",
				store.Dir(), tmpl.Name, len(tmpl.Tasks), fc.RiskTier)
			return nil
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", config.DefaultTemplate, "built-in workflow template")
	cmd.Flags().StringVar(&templateFile, "template-file", "", "YAML workflow template file (overrides --template)")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing workflow.json")
	cmd.Flags().StringVar(&adapter, "adapter", "", "runtime adapter stored in the feature context")
	cmd.Flags().BoolVar(&strict, "strict", false, "store strict command execution in the feature context")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "task timeout in seconds stored in the feature context")
	return cmd
}

func loadTemplate(name, file string) (*config.WorkflowTemplate, error) {
	if file != "" {
		return config.LoadWorkflowTemplate(file)
	}
	return config.BuiltinTemplate(name)
}
