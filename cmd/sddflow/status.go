package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/service"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	countStyles = map[string]lipgloss.Style{
		string(workflow.StatusCompleted): lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		string(workflow.StatusFailed):    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		string(workflow.StatusRunning):   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
)

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the feature's task graph",
		Long: `Print task counts per status and the running, ready, failed and
awaiting-human tasks of the feature, each with its agent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			report, err := service.Status(cmd.Context(), store)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			renderStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func renderStatus(w io.Writer, r *service.StatusReport) {
	fmt.Fprintln(w, headingStyle.Render("Feature: "+r.Feature))
	fmt.Fprintln(w, dimStyle.Render(r.Path))
	fmt.Fprintln(w)

	keys := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		if k != workflow.CountTotal {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		part := fmt.Sprintf("%s=%d", k, r.Counts[k])
		if st, ok := countStyles[k]; ok {
			part = st.Render(part)
		}
		parts = append(parts, part)
	}
	parts = append(parts, headingStyle.Render(fmt.Sprintf("%s=%d", workflow.CountTotal, r.Counts[workflow.CountTotal])))
	fmt.Fprintln(w, labelStyle.Render("Counts:")+" "+strings.Join(parts, "  "))

	sections := []struct {
		title string
		ids   []string
	}{
		{"Running", r.Running},
		{"Ready", r.Ready},
		{"Failed", r.Failed},
		{"Awaiting human", r.AwaitingHuman},
	}
	for _, s := range sections {
		fmt.Fprintln(w, labelStyle.Render(s.title+":"))
		if len(s.ids) == 0 {
			fmt.Fprintln(w, dimStyle.Render("  (none)"))
			continue
		}
		for _, id := range s.ids {
			fmt.Fprintf(w, "  - %s (%s)\n", id, r.Agents[id])
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
