package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/cleanup"
	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/execution"
	"github.com/wardenhq/warden/logger"
	"github.com/wardenhq/warden/metrics"
	"github.com/wardenhq/warden/monitor"
	"github.com/wardenhq/warden/runtime"
)

// UpCmd runs the warden daemon
var UpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run the warden daemon",
	Long: `Run the warden daemon in foreground mode.

The daemon will:
- Start the dispatch worker pool processing queued tasks
- Start the scheduler enqueuing monitor passes and cleanup sweeps
- Serve prometheus metrics (if enabled)
- Watch the user config file for live reloads
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: runUp,
}

func init() {
	UpCmd.Flags().Int("workers", 0, "Override the configured worker count")
	UpCmd.Flags().String("db", "", "Override the configured database path")
}

func runUp(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Config may raise the baseline verbosity; flags only ever add to it
	if cfg.Logging.Verbosity > verbosity {
		verbosity = cfg.Logging.Verbosity
		logger.SetLevel(logger.VerbosityToLevel(verbosity))
	}

	dbPath, _ := cmd.Flags().GetString("db")
	database, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	client, err := runtime.NewDockerClient(cfg.Runtime.Host, cfg.Runtime.RemoveOpsPerSec)
	if err != nil {
		return fmt.Errorf("failed to create runtime client: %w", err)
	}

	// Stores and state machine
	store := execution.NewStore(database)
	logStore := execution.NewLogStore(database)
	statusLog := execution.NewStatusLogStore(database)
	lifecycle := execution.NewLifecycle(store, logStore, statusLog, logger.Logger)

	// Dispatch queue and handlers
	dispatcher := dispatch.NewDispatcher(dispatch.NewStore(database))

	registry := dispatch.NewRegistry()
	registry.Register(monitor.NewHandler(monitor.New(store, lifecycle, client, monitor.Config{
		Window:     cfg.Monitor.Window(),
		BatchLimit: cfg.Monitor.BatchLimit,
	}, logger.Logger)))
	for _, h := range cleanup.Handlers(cleanup.NewSweeper(store, lifecycle, client, cleanup.Config{
		StaleAfter:     cfg.Cleanup.StaleAfter(),
		FinishedWithin: cfg.Cleanup.FinishedWithin(),
		FailedAfter:    cfg.Cleanup.FailedAfter(),
	}, logger.Logger)) {
		registry.Register(h)
	}
	registry.Register(runtime.NewStopHandler(client, logger.Logger))
	registry.Register(dispatch.NewPruneHandler(dispatcher.Store(), dispatch.DefaultPruneRetention, logger.Logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolCfg := dispatch.WorkerPoolConfig{
		Workers:          cfg.Dispatch.Workers,
		PollInterval:     cfg.Dispatch.PollInterval(),
		ShutdownTimeout:  time.Duration(cfg.Dispatch.ShutdownTimeoutSeconds) * time.Second,
		MaxMemoryPercent: cfg.Dispatch.MaxMemoryPercent,
		MaxRetries:       cfg.Dispatch.MaxRetries,
		RetryBackoff:     cfg.Dispatch.RetryBackoff(),
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		poolCfg.Workers = workers
	}

	pool := dispatch.NewWorkerPool(ctx, dispatcher, registry, poolCfg, logger.Logger)
	pool.Start()

	scheduler := dispatch.NewScheduler(ctx, dispatcher, []dispatch.Schedule{
		{Kind: dispatch.KindMonitorPass, Period: cfg.Monitor.Interval()},
		{Kind: dispatch.KindCleanupStale, Period: time.Duration(cfg.Cleanup.StaleIntervalMinutes) * time.Minute},
		{Kind: dispatch.KindCleanupFinished, Period: time.Duration(cfg.Cleanup.FinishedIntervalMinutes) * time.Minute},
		{Kind: dispatch.KindCleanupFailed, Period: time.Duration(cfg.Cleanup.FailedIntervalHours) * time.Hour},
		{Kind: dispatch.KindQueuePrune, Period: 24 * time.Hour},
	}, logger.Logger)
	scheduler.Start()

	// Metrics listener
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorw("Metrics listener failed", "addr", cfg.Metrics.ListenAddr, "error", err)
			}
		}()
	}

	// Live config reload from the user config file
	watcher := startConfigWatcher()

	printStartupBanner(verbosity, cfg.GetDatabasePath())
	if logger.ShouldOutput(verbosity, logger.OutputConfig) {
		fmt.Printf("  Workers:        %d\n", poolCfg.Workers)
		fmt.Printf("  Monitor pass:   every %v\n", cfg.Monitor.Interval())
		fmt.Printf("  Stale cleanup:  every %dm (cutoff %v)\n", cfg.Cleanup.StaleIntervalMinutes, cfg.Cleanup.StaleAfter())
		if cfg.Metrics.Enabled {
			fmt.Printf("  Metrics:        http://%s/metrics\n", cfg.Metrics.ListenAddr)
		}
	}
	fmt.Printf("\n  Press Ctrl+C for graceful shutdown\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")

	// Reverse order of startup
	if watcher != nil {
		watcher.Stop()
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("Metrics listener shutdown failed", "error", err)
		}
		shutdownCancel()
	}
	scheduler.Stop()
	pool.Stop()
	cancel()

	fmt.Println("warden stopped")
	return nil
}

// startConfigWatcher watches the user config file and applies verbosity
// changes live. Returns nil when there is no user config to watch.
func startConfigWatcher() *config.ConfigWatcher {
	path := config.UserConfigPath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	watcher, err := config.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Failed to watch config file", "path", path, "error", err)
		return nil
	}

	watcher.OnReload(func(cfg *config.Config) error {
		logger.SetLevel(logger.VerbosityToLevel(cfg.Logging.Verbosity))
		logger.Infow("Configuration reloaded", "path", path, "verbosity", cfg.Logging.Verbosity)
		return nil
	})
	watcher.Start()
	return watcher
}
