package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Strob0t/sddflow/internal/adapter/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve workflow tools to agents over MCP stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the tools
workflow_status, queue_list, queue_ack, queue_resolve and audit_metrics for
every feature below the features root. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root == "" {
				root = a.cfg.Server.FeaturesRoot
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in, err := a.connect(ctx, nil)
			if err != nil {
				return err
			}
			defer in.close()
			audit, closeCache, err := a.auditService(ctx, in)
			if err != nil {
				return err
			}
			defer closeCache()

			srv := mcp.NewServer(mcp.ServerConfig{Name: "sddflow", Version: version}, in.workspace(root), audit)
			return srv.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "features root (default: server.features_root)")
	return cmd
}
