// Command moleqd is the MoleQueue broker daemon: a single long-lived
// process that owns every job and queue, accepts JSON-RPC connections over
// a local IPC endpoint, and serves an optional local admin HTTP surface.
// Grounded on arkeep/server/cmd/server/main.go's startup shape (cobra root
// command, buildLogger, envOrDefault, signal.NotifyContext, sequential
// component construction with deferred cleanup).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/adminhttp"
	"github.com/molequeue-io/molequeue/internal/clock"
	"github.com/molequeue-io/molequeue/internal/config"
	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/logging"
	"github.com/molequeue-io/molequeue/internal/maintenance"
	"github.com/molequeue-io/molequeue/internal/metrics"
	"github.com/molequeue-io/molequeue/internal/queue"
	"github.com/molequeue-io/molequeue/internal/queue/local"
	"github.com/molequeue-io/molequeue/internal/queue/remotessh"
	"github.com/molequeue-io/molequeue/internal/runner"
	"github.com/molequeue-io/molequeue/internal/server"
	"github.com/molequeue-io/molequeue/internal/store"
	"github.com/molequeue-io/molequeue/internal/transport"
	"github.com/molequeue-io/molequeue/internal/webhook"
)

var (
	version = "dev"
	commit  = "none"
)

type cliConfig struct {
	socketName    string
	dataDir       string
	settingsFile  string
	logLevel      string
	adminAddr     string
	dbDSN         string
	webhookURL    string
	webhookSecret string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "moleqd",
		Short: "moleqd is the MoleQueue broker daemon",
		Long: `moleqd accepts computational-chemistry job submissions over a local
IPC channel, routes them to local or remote-SSH queues, and tracks every
job through to completion.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	defaultSocket := filepath.Join(os.TempDir(), "MoleQueue")
	root.PersistentFlags().StringVar(&cfg.socketName, "socket", envOrDefault("MOLEQUEUE_SOCKET", defaultSocket), "IPC endpoint path (Unix domain socket)")
	root.PersistentFlags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("MOLEQUEUE_DATA_DIR", "./data"), "Directory for job working directories")
	root.PersistentFlags().StringVar(&cfg.settingsFile, "settings", envOrDefault("MOLEQUEUE_SETTINGS", "./molequeue-settings.json"), "Path to the queues settings file")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("MOLEQUEUE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.adminAddr, "admin-addr", envOrDefault("MOLEQUEUE_ADMIN_ADDR", ""), "Admin HTTP listen address (empty disables the admin surface)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "history-db", envOrDefault("MOLEQUEUE_HISTORY_DB", "./molequeue-history.db"), "SQLite DSN for the job-history store")
	root.PersistentFlags().StringVar(&cfg.webhookURL, "webhook-url", envOrDefault("MOLEQUEUE_WEBHOOK_URL", ""), "Optional webhook URL notified on every job state change")
	root.PersistentFlags().StringVar(&cfg.webhookSecret, "webhook-secret", envOrDefault("MOLEQUEUE_WEBHOOK_SECRET", ""), "HMAC-SHA256 secret for signing webhook requests")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("moleqd %s (commit: %s)\n", version, commit)
		},
	}
}

func run(ctx context.Context, cfg *cliConfig) error {
	zapLogger, err := logging.BuildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	instanceID := uuid.NewString()
	logger := zapLogger.With(zap.String("instance", instanceID))
	logger.Info("starting moleqd", zap.String("version", version), zap.String("socket", cfg.socketName))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// --- 1. Job manager, restored from the settings blob if present ---
	jobManager := jobs.NewManager(logger)
	if blob, err := os.ReadFile(jobSettingsPath(cfg.dataDir)); err == nil {
		if err := jobManager.ReadSettings(blob); err != nil {
			logger.Warn("failed to restore job settings, starting empty", zap.Error(err))
		}
	}

	// --- 2. Queue configuration ---
	settings, err := config.Load(cfg.settingsFile)
	if err != nil {
		return fmt.Errorf("failed to load queue settings: %w", err)
	}

	queueManager := queue.NewManager(logger)
	clk := clock.Real{}
	run1 := runner.NewExecRunner()
	for name, qs := range settings {
		q, err := buildQueue(name, qs, jobManager, run1, clk, logger)
		if err != nil {
			return fmt.Errorf("failed to build queue %q: %w", name, err)
		}
		if err := queueManager.Add(q); err != nil {
			return fmt.Errorf("failed to register queue %q: %w", name, err)
		}
		q.Start(ctx)
	}

	// --- 3. Durable job-history store ---
	st, err := store.Open(store.Config{DSN: cfg.dbDSN, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer st.Close()

	// --- 4. Logging ring + metrics + webhook observers ---
	logRing := logging.New(logger, 1000)
	metricsReg := metrics.New()
	webhookSender := webhook.New(webhook.Config{
		URL:     cfg.webhookURL,
		Secret:  cfg.webhookSecret,
		Enabled: cfg.webhookURL != "",
	}, logger)
	hub := adminhttp.NewHub()

	jobManager.Subscribe(store.NewObserverAdapter(st, jobManager, logger))
	jobManager.Subscribe(logging.NewObserverAdapter(logRing))
	jobManager.Subscribe(metrics.NewObserverAdapter(metricsReg))
	jobManager.Subscribe(webhook.NewObserverAdapter(webhookSender, jobManager, logger))
	jobManager.Subscribe(adminhttp.NewObserverAdapter(hub))

	go hub.Run(ctx)

	// --- 5. IPC listener + server ---
	listener, err := transport.Listen(cfg.socketName, logger)
	if err != nil {
		return fmt.Errorf("failed to bind IPC endpoint: %w", err)
	}

	srv := server.New(listener, jobManager, queueManager, cfg.dataDir, logger)
	srv.SetMetrics(metricsReg)

	go func() {
		if err := srv.Run(ctx); err != nil {
			logger.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	// --- 6. Maintenance sweep ---
	sweeper, err := maintenance.New(maintenance.DefaultConfig(cfg.dataDir), jobManager, st, logger)
	if err != nil {
		return fmt.Errorf("failed to create maintenance sweeper: %w", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start maintenance sweeper: %w", err)
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Warn("maintenance shutdown error", zap.Error(err))
		}
	}()

	// --- 7. Optional admin HTTP surface ---
	var adminSrv *http.Server
	if cfg.adminAddr != "" {
		router := adminhttp.NewRouter(adminhttp.RouterConfig{
			JobManager:   jobManager,
			QueueManager: queueManager,
			Store:        st,
			Logging:      logRing,
			Metrics:      metricsReg,
			Hub:          hub,
			Logger:       logger,
		})
		adminSrv = &http.Server{
			Addr:         cfg.adminAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("admin http listening", zap.String("addr", cfg.adminAddr))
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin http server error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down moleqd")

	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin http graceful shutdown error", zap.Error(err))
		}
	}

	if err := srv.Stop(); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	for _, name := range queueManager.Names() {
		if q, ok := queueManager.Lookup(name); ok {
			q.Stop()
		}
	}

	if blob, err := jobManager.WriteSettings(); err != nil {
		logger.Warn("failed to serialize job settings on shutdown", zap.Error(err))
	} else if err := os.WriteFile(jobSettingsPath(cfg.dataDir), blob, 0o600); err != nil {
		logger.Warn("failed to write job settings on shutdown", zap.Error(err))
	}

	logger.Info("moleqd stopped")
	return nil
}

func buildQueue(name string, qs config.QueueSettings, jobManager *jobs.Manager, run runner.Runner, clk clock.Clock, logger *zap.Logger) (queue.Queue, error) {
	switch qs.Type {
	case "local":
		lcfg, err := config.ToLocalConfig(name, qs)
		if err != nil {
			return nil, err
		}
		return local.New(lcfg, jobManager, run, clk, logger), nil
	default:
		rcfg, programs, _, err := config.ToRemoteConfig(name, qs)
		if err != nil {
			return nil, err
		}
		remoteRun := run
		if rcfg.IdentityFile != "" {
			remoteRun = runner.NewSSHRunner(runner.SSHConfig{
				Host:              rcfg.HostName,
				Port:              rcfg.SSHPort,
				User:              rcfg.UserName,
				IdentityFile:      rcfg.IdentityFile,
				SSHExecutableName: rcfg.SSHExecutable,
			})
		}
		return remotessh.New(rcfg, name, programs, jobManager, remoteRun, clk, logger), nil
	}
}

func jobSettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "molequeue-jobs.json")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
