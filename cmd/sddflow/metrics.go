package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Strob0t/sddflow/internal/adapter/filestore"
	"github.com/Strob0t/sddflow/internal/service"
)

func newMetricsCmd(a *app) *cobra.Command {
	var (
		root   string
		output string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute audit metrics across feature directories",
		Long: `Scan every feature below --root (a directory with workflow.json and a
review/ directory) and report the route distribution, rework and handover
counts, and how often a human decision disagreed with the automated one.

Examples:
  sddflow metrics --root features
  sddflow metrics --root features --output audit.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root == "" {
				root = a.cfg.Server.FeaturesRoot
			}
			m, err := service.NewAuditService(nil, 0).ComputeRoot(cmd.Context(), root)
			if err != nil {
				return err
			}
			if output != "" {
				if err := filestore.AtomicWriteJSON(output, m); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			renderMetrics(cmd.OutOrStdout(), m)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "features root (default: server.features_root)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the metrics as JSON to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the metrics as JSON")
	return cmd
}

func renderMetrics(w io.Writer, m *service.AuditMetrics) {
	fmt.Fprintln(w, headingStyle.Render("Audit metrics"))
	row := func(label string, value any) {
		fmt.Fprintf(w, "%s %v\n", labelStyle.Render(fmt.Sprintf("%-24s", label)), value)
	}
	row("Features scanned", m.FeaturesScanned)
	row("Routes", m.RoutesTotal)

	routes := make([]string, 0, len(m.RouteDistribution))
	for r := range m.RouteDistribution {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	for _, r := range routes {
		fmt.Fprintf(w, "  %-22s %d\n", r, m.RouteDistribution[r])
	}

	row("Rework events completed", m.ReworkEventsCompleted)
	row("Handover events", m.HandoverEvents)
	row("Audit comparisons", m.AuditComparisons)
	row("Audit disagreements", m.AuditDisagreements)
	rate := dimStyle.Render("n/a")
	if m.AuditDisagreementRate != nil {
		rate = fmt.Sprintf("%.2f", *m.AuditDisagreementRate)
	}
	row("Disagreement rate", rate)

	for _, it := range m.ComparedItems {
		if !it.Disagreement {
			continue
		}
		fmt.Fprintf(w, "  %s %s: %s auto %s, human %s\n",
			it.Feature, it.Phase, it.Route, it.AutoDecision, it.HumanDecision)
	}
}
