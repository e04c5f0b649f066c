package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Strob0t/sddflow/internal/config"
)

func newConstitutionCmd(_ *app) *cobra.Command {
	var (
		projectRoot string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "constitution [workdir]",
		Short: "Print the merged constitution for a working directory",
		Long: `Merge every ` + config.ConstitutionFile + ` from the project root down to the
working directory (default ".") and print the result. Deeper files override
shallower ones key by key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workdir := "."
			if len(args) == 1 {
				workdir = args[0]
			}
			merged, err := config.LoadConstitution(projectRoot, workdir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), merged)
			}
			out, err := yaml.Marshal(merged)
			if err != nil {
				return fmt.Errorf("encode constitution: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&projectRoot, "project-root", ".", "directory holding the top-level constitution")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
