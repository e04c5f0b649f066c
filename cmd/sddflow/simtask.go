package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/service"
)

func newSimTaskCmd(a *app) *cobra.Command {
	var taskID, agent string
	cmd := &cobra.Command{
		Use:   "sim-task",
		Short: "Play a simulated agent for one task",
		Long: `Write the artifacts an agent would produce for a task: requirements,
designs and review verdicts. The first review-l1-ba rejects the L1 design;
after the L1 rework every review approves. Used by the demo template.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			if agent == "" {
				agent = workflow.AgentFor(taskID)
			}
			if err := service.SimulateTask(cmd.Context(), store, service.NewContextService(store), taskID, agent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[SIMULATED] %s completed %s\n", agent, taskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "task to simulate")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name (default: the task's agent)")
	_ = cmd.MarkFlagRequired("task-id")
	return cmd
}
