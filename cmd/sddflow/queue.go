package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/service"
)

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the human review queue of a feature",
		Long: `List, acknowledge and resolve the human review items of a feature. The
queue lives in review/human_review_queue.json unless the feature's policy
selects the postgres backend.`,
	}
	cmd.AddCommand(
		newQueueListCmd(a),
		newQueueAckCmd(a),
		newQueueResolveCmd(a),
		newQueueWaitCmd(a),
		newQueueEnqueueCmd(a),
	)
	return cmd
}

// withQueue runs fn against the queue service of --feature-dir.
func (a *app) withQueue(ctx context.Context, fn func(q *service.QueueService) error) error {
	in, err := a.connect(ctx, nil)
	if err != nil {
		return err
	}
	defer in.close()
	f, err := a.feature(in)
	if err != nil {
		return err
	}
	return fn(f.Queue)
}

func newQueueListCmd(a *app) *cobra.Command {
	var (
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withQueue(cmd.Context(), func(q *service.QueueService) error {
				items, err := q.List(cmd.Context(), status)
				if err != nil {
					return err
				}
				summaries := make([]humanqueue.Summary, 0, len(items))
				for _, it := range items {
					summaries = append(summaries, it.Summary())
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), summaries)
				}
				return renderQueue(cmd.OutOrStdout(), summaries)
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "only items with this status (PENDING, ACKED, RESOLVED, REJECTED)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the items as JSON")
	return cmd
}

func renderQueue(out io.Writer, items []humanqueue.Summary) error {
	if len(items) == 0 {
		fmt.Fprintln(out, "No queue items.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE ID\tPHASE\tRISK\tROUTE\tSTATUS\tREVIEWER\tCREATED")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.QueueID, it.Phase, it.RiskTier, it.Route, it.Status, orDash(it.AssignedReviewer), it.CreatedAt)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newQueueAckCmd(a *app) *cobra.Command {
	var reviewer string
	cmd := &cobra.Command{
		Use:   "ack <queue-id>",
		Short: "Assign a reviewer to a queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQueue(cmd.Context(), func(q *service.QueueService) error {
				it, err := q.Ack(cmd.Context(), args[0], reviewer)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged %s (%s) for %s\n", it.QueueID, it.Phase, it.AssignedReviewer)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", "", "reviewer taking the item")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func newQueueResolveCmd(a *app) *cobra.Command {
	var decision, reviewer, summary string
	cmd := &cobra.Command{
		Use:   "resolve <queue-id>",
		Short: "Record the human decision of a queue item",
		Long: `Record GO or NO_GO for a queue item. GO completes the held review tasks of
the phase and writes their review artifacts; NO_GO fails the phase's routing
task and flags the feature for intervention. A resolved item cannot be
resolved again.

Example:
  sddflow queue resolve hq-1b2c... --decision GO --reviewer alice --summary "LGTM"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQueue(cmd.Context(), func(q *service.QueueService) error {
				it, err := q.Resolve(cmd.Context(), args[0], decision, reviewer, summary)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s (%s): %s by %s, status %s\n",
					it.QueueID, it.Phase, it.HumanDecision, it.ResolvedBy, it.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&decision, "decision", "d", "", "GO or NO_GO")
	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", "", "reviewer making the decision")
	cmd.Flags().StringVar(&summary, "summary", "", "resolution summary")
	_ = cmd.MarkFlagRequired("decision")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func newQueueWaitCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait [queue-id]",
		Short: "Block until queue items are decided",
		Long: `Block until the given item, or every open item when none is given, leaves
PENDING/ACKED. File queues are watched for changes; other backends are polled.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return a.withQueue(ctx, func(q *service.QueueService) error {
				var done []*humanqueue.Item
				if len(args) == 1 {
					it, err := q.Wait(ctx, args[0])
					if err != nil {
						return err
					}
					done = append(done, it)
				} else {
					var err error
					if done, err = q.WaitOpen(ctx); err != nil {
						return err
					}
				}
				for _, it := range done {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", it.QueueID, it.Phase, it.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: wait forever)")
	return cmd
}

func newQueueEnqueueCmd(a *app) *cobra.Command {
	var phase, reason string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Request a human review of a design phase",
		Long: `Queue a human review of a design phase outside the policy gate. An item
still awaiting a decision for the phase is reused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withQueue(cmd.Context(), func(q *service.QueueService) error {
				it, created, err := q.RequestReview(cmd.Context(), phase, reason)
				if err != nil {
					return err
				}
				verb := "Queued"
				if !created {
					verb = "Already queued"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %s (risk tier %s)\n", verb, it.QueueID, it.Phase, it.RiskTier)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&phase, "phase", "p", "", "design phase, e.g. design-l1")
	cmd.Flags().StringVar(&reason, "reason", "", "why a human review is needed")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}
