package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sddnats "github.com/Strob0t/sddflow/internal/adapter/nats"
	"github.com/Strob0t/sddflow/internal/port/runtime"
	"github.com/Strob0t/sddflow/internal/service"
)

func newWorkerCmd(a *app) *cobra.Command {
	var (
		agents  []string
		adapter string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Execute task commands for remote orchestrators over NATS",
		Long: `Answer invocations sent by orchestrators whose runtime adapter is "nats".
Each command runs with a local adapter under the timeout and strict-mode
settings carried by the request. Workers sharing an agent subject form a
queue group, so every invocation runs once.

Examples:
  NATS_URL=nats://localhost:4222 sddflow worker
  sddflow worker --agent sdd-coder --agent sdd-le`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.NATS.URL == "" {
				return errors.New("worker needs nats.url or NATS_URL")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in, err := a.connect(ctx, nil)
			if err != nil {
				return err
			}
			defer in.close()

			local, warnings := runtime.Resolve(adapter, nil)
			for _, w := range warnings {
				slog.Warn(w)
			}
			if local.Name() == sddnats.RuntimeName {
				return fmt.Errorf("worker cannot forward to the %q adapter", adapter)
			}
			slog.Info("worker started", "adapter", local.Name(), "agents", agents)
			return service.NewWorkerService(in.queue, sddnats.InvokeHandler(local)).Serve(ctx, agents)
		},
	}
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "serve only these agents (default: all)")
	cmd.Flags().StringVar(&adapter, "adapter", runtime.FallbackName, "local runtime adapter")
	return cmd
}
