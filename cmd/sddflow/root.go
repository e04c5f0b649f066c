package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Strob0t/sddflow/internal/adapter/filestore"
	sddnats "github.com/Strob0t/sddflow/internal/adapter/nats"
	"github.com/Strob0t/sddflow/internal/adapter/otel"
	"github.com/Strob0t/sddflow/internal/adapter/postgres"
	"github.com/Strob0t/sddflow/internal/config"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/port/broadcast"
	"github.com/Strob0t/sddflow/internal/port/featurestore"
	"github.com/Strob0t/sddflow/internal/port/messagequeue"
	"github.com/Strob0t/sddflow/internal/port/queuestore"
	"github.com/Strob0t/sddflow/internal/resilience"
	"github.com/Strob0t/sddflow/internal/service"
)

// app carries the global flags and the state built before every command.
type app struct {
	configPath string
	featureDir string
	logLevel   string

	cfg      *config.Config
	log      *slog.Logger
	closeLog logger.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "sddflow",
		Short: "Spec-driven development workflow orchestrator",
		Long: `sddflow runs the task graph of a feature directory (workflow.json),
routes design reviews through a risk-tiered policy gate and manages the
human review queue that pauses a workflow until a reviewer decides.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.closeLog != nil {
				a.closeLog.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to sddflow.yaml (default: ./sddflow.yaml when present)")
	cmd.PersistentFlags().StringVarP(&a.featureDir, "feature-dir", "f", ".", "feature directory holding workflow.json and context.json")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCmd(a),
		newRunCmd(a),
		newStatusCmd(a),
		newQueueCmd(a),
		newMetricsCmd(a),
		newSimTaskCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newWorkerCmd(a),
		newConstitutionCmd(a),
	)
	return cmd
}

// setup loads the configuration and installs the logger. Logs go to stderr
// so stdout stays free for progress lines and command output.
func (a *app) setup(cmd *cobra.Command) error {
	path := config.DefaultConfigFile
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		path = a.configPath
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	a.log, a.closeLog = logger.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(a.log)
	return nil
}

// store opens the feature directory given by --feature-dir.
func (a *app) store() (*filestore.Feature, error) {
	return filestore.Open(a.featureDir)
}

func openStore(dir string) (featurestore.Store, error) {
	return filestore.Open(dir)
}

// infra is the optional infrastructure of one command. Every field stays
// nil unless its section is configured.
type infra struct {
	queue   *sddnats.Queue
	pool    *pgxpool.Pool
	metrics *otel.Metrics
	events  *service.Events
	closers []func()
}

// connect brings up telemetry, NATS and Postgres as configured. hub, when
// non-nil, receives every workflow event as well.
func (a *app) connect(ctx context.Context, hub broadcast.Broadcaster) (*infra, error) {
	in := &infra{}

	shutdown, err := otel.Setup(ctx, a.cfg.Telemetry, a.cfg.Logging.Service)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	in.closers = append(in.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	})

	if in.metrics, err = otel.NewMetrics(); err != nil {
		in.close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if a.cfg.NATS.URL != "" {
		q, err := sddnats.Connect(ctx, a.cfg.NATS.URL, a.cfg.NATS.Stream)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		in.queue = q
		in.closers = append(in.closers, func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		})
		slog.Info("nats connected", "url", a.cfg.NATS.URL)
	}

	if a.cfg.Postgres.DSN != "" {
		pool, err := postgres.Open(ctx, a.cfg.Postgres)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		in.pool = pool
		in.closers = append(in.closers, pool.Close)
		slog.Info("postgres connected, migrations applied")
	}

	var mq messagequeue.Queue
	if in.queue != nil {
		mq = in.queue
	}
	if hub != nil || mq != nil {
		breaker := resilience.NewBreaker("events", a.cfg.Breaker.MaxFailures, a.cfg.Breaker.Timeout)
		in.events = service.NewEvents(hub, mq, breaker)
	}
	return in, nil
}

// backends selects the human queue stores available to this process.
func (in *infra) backends() service.QueueBackends {
	b := service.QueueBackends{
		File:  func(path string) queuestore.Store { return filestore.NewQueue(path) },
		Watch: filestore.Watch,
	}
	if in.pool != nil {
		pool := in.pool
		b.Postgres = func(feature string) queuestore.Store { return postgres.NewQueueStore(pool, feature) }
	}
	return b
}

// workspace returns a workspace over root wired to this infrastructure.
func (in *infra) workspace(root string) *service.Workspace {
	ws := service.NewWorkspace(root, openStore, in.backends())
	ws.SetEvents(in.events)
	ws.SetMetrics(in.metrics)
	return ws
}

// feature binds the services of the feature directory selected by
// --feature-dir.
func (a *app) feature(in *infra) (*service.Feature, error) {
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	return in.workspace(filepath.Dir(store.Dir())).Bind(store), nil
}

// close releases the infrastructure in reverse order of acquisition.
func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}
