package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sddnats "github.com/Strob0t/sddflow/internal/adapter/nats"
	"github.com/Strob0t/sddflow/internal/port/runtime"
	"github.com/Strob0t/sddflow/internal/service"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		mode          string
		maxIterations int
		taskID        string
		wait          bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the feature's task graph",
		Long: `Execute ready tasks until the graph completes, a human review decision is
required, a halt is requested or the iteration cap is reached. State lives in
workflow.json and context.json, so an interrupted run resumes by running again.

Modes:
  autonomous  run every ready task, round by round
  supervised  as autonomous, logging each design milestone
  manual      pick one ready task at a time ("quit" stops)

With --wait, a run that stops for human review blocks until every open queue
item is resolved and then continues.

Examples:
  sddflow run -f features/checkout
  sddflow run -f features/checkout --mode manual
  sddflow run -f features/checkout --task design-l1
  sddflow run -f features/checkout --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if mode == "" {
				mode = a.cfg.Orchestrator.Mode
			}
			m, err := service.ParseMode(mode)
			if err != nil {
				return err
			}
			if maxIterations <= 0 {
				maxIterations = a.cfg.Orchestrator.MaxIterations
			}

			in, err := a.connect(ctx, nil)
			if err != nil {
				return err
			}
			defer in.close()
			f, err := a.feature(in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			orch := a.orchestrator(f, in, m, maxIterations, out)

			if taskID != "" {
				res, err := orch.Step(ctx, taskID)
				if err != nil {
					return err
				}
				printRunResult(out, res)
				return nil
			}

			for {
				var res *service.RunResult
				if m == service.ModeManual {
					res, err = orch.RunManual(ctx, taskPicker(cmd.InOrStdin(), out))
				} else {
					res, err = orch.Run(ctx)
				}
				if err != nil {
					return err
				}
				printRunResult(out, res)

				if !wait || (res.Status != service.RunHalted && res.Status != service.RunAwaitingHuman) {
					return nil
				}
				resumed, err := waitForReviews(ctx, f.Queue, out)
				if err != nil || !resumed {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "autonomous, supervised or manual (default: orchestrator.mode)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "cap on scheduling rounds (default: orchestrator.max_iterations)")
	cmd.Flags().StringVar(&taskID, "task", "", "execute this single ready task and stop")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for human review decisions and resume")
	return cmd
}

// orchestrator wires the loop of one feature.
func (a *app) orchestrator(f *service.Feature, in *infra, m service.Mode, maxIterations int, progress io.Writer) *service.OrchestratorService {
	router := service.NewRouterService(f.Store, f.Context, f.Queue)
	router.SetEvents(in.events)
	router.SetMetrics(in.metrics)

	orch := service.NewOrchestratorService(f.Store, f.Context, router, service.OrchestratorConfig{
		MaxIterations: maxIterations,
		Mode:          m,
		Defaults: runtime.Settings{
			Adapter: a.cfg.Runtime.Adapter,
			Strict:  a.cfg.Runtime.Strict,
			Timeout: a.cfg.Runtime.Timeout,
		},
		AdapterConfig: map[string]string{
			sddnats.ConfigURL:    a.cfg.NATS.URL,
			sddnats.ConfigStream: a.cfg.NATS.Stream,
		},
		Getenv:   os.Getenv,
		Progress: progress,
	})
	orch.SetEvents(in.events)
	orch.SetMetrics(in.metrics)
	return orch
}

// waitForReviews blocks until the open queue items are decided. It reports
// false when nothing was open, so the caller does not loop on a halt that no
// reviewer can clear.
func waitForReviews(ctx context.Context, q *service.QueueService, out io.Writer) (bool, error) {
	items, err := q.List(ctx, "")
	if err != nil {
		return false, err
	}
	open := 0
	for _, it := range items {
		if !it.Status.IsTerminal() {
			open++
		}
	}
	if open == 0 {
		return false, nil
	}
	loc, err := q.Location(ctx)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(out, "\nWaiting for %d human review decision(s) in %s\n", open, loc)
	done, err := q.WaitOpen(ctx)
	if err != nil {
		return false, err
	}
	for _, it := range done {
		fmt.Fprintf(out, "Queue item %s (%s): %s by %s\n", it.QueueID, it.Phase, it.HumanDecision, it.ResolvedBy)
	}
	return true, nil
}

// printRunResult prints the closing line of a run. Adapter warnings were
// already printed as progress.
func printRunResult(w io.Writer, res *service.RunResult) {
	fmt.Fprintf(w, "\nRun %s after %d iteration(s), %d task(s) executed", res.Status, res.Iterations, len(res.Executed))
	if res.Reason != "" {
		fmt.Fprintf(w, ": %s", res.Reason)
	}
	fmt.Fprintln(w)
}
