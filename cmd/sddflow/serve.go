package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	sddhttp "github.com/Strob0t/sddflow/internal/adapter/http"
	"github.com/Strob0t/sddflow/internal/adapter/metrics"
	"github.com/Strob0t/sddflow/internal/adapter/natskv"
	"github.com/Strob0t/sddflow/internal/adapter/ristretto"
	"github.com/Strob0t/sddflow/internal/adapter/tiered"
	"github.com/Strob0t/sddflow/internal/adapter/ws"
	"github.com/Strob0t/sddflow/internal/port/cache"
	"github.com/Strob0t/sddflow/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	var port, root string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, WebSocket events and Prometheus metrics",
		Long: `Serve every feature below the features root over HTTP:

  GET  /api/v1/features
  GET  /api/v1/features/{feature}/status
  GET  /api/v1/features/{feature}/queue
  POST /api/v1/features/{feature}/queue
  GET  /api/v1/features/{feature}/queue/{id}
  POST /api/v1/features/{feature}/queue/{id}/ack
  POST /api/v1/features/{feature}/queue/{id}/resolve
  GET  /api/v1/metrics
  GET  /ws       queue and task events (?feature=name, ?types=queue.,task.)
  GET  /metrics  Prometheus audit metrics
  GET  /health

Nested feature names are path-escaped: features/a/b is "a%2Fb".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == "" {
				port = a.cfg.Server.Port
			}
			if root == "" {
				root = a.cfg.Server.FeaturesRoot
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := ws.NewHub()
			defer hub.Close()
			in, err := a.connect(ctx, hub)
			if err != nil {
				return err
			}
			defer in.close()

			audit, closeCache, err := a.auditService(ctx, in)
			if err != nil {
				return err
			}
			defer closeCache()

			workspace := in.workspace(root)
			reg := metrics.NewRegistry(func(ctx context.Context) (*service.AuditMetrics, error) {
				return audit.ComputeRoot(ctx, workspace.Root())
			})
			handler := sddhttp.NewRouter(&sddhttp.Handlers{Workspace: workspace, Audit: audit}, sddhttp.RouterOptions{
				CORSOrigin: a.cfg.Server.CORSOrigin,
				Events:     hub.HandleWS,
				Metrics:    metrics.Handler(reg),
			})

			addr := ":" + port
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				slog.Info("starting server", "addr", addr, "features_root", root)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			slog.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default: server.port)")
	cmd.Flags().StringVar(&root, "root", "", "features root (default: server.features_root)")
	return cmd
}

// auditService builds the audit aggregator. Artifact reads are cached in
// process, layered over the shared NATS KV bucket when NATS is connected.
func (a *app) auditService(ctx context.Context, in *infra) (*service.AuditService, func(), error) {
	l1, err := ristretto.NewMB(a.cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("audit cache: %w", err)
	}
	var c cache.Cache = l1
	if in.queue != nil {
		l2, err := natskv.Open(ctx, in.queue.JetStream(), natskv.DefaultBucket, a.cfg.Cache.TTL)
		if err != nil {
			slog.Warn("shared audit cache unavailable", "error", err)
		} else {
			c = tiered.New(l1, l2, a.cfg.Cache.TTL)
		}
	}
	closeCache := func() {
		slog.Debug("audit cache closed", "hit_ratio", l1.HitRatio())
		l1.Close()
	}
	return service.NewAuditService(c, a.cfg.Cache.TTL), closeCache, nil
}
