package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/cancel"
	"github.com/wardenhq/warden/compute"
	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/execution"
	"github.com/wardenhq/warden/logger"
	"github.com/wardenhq/warden/runtime"
)

// CancelCmd cancels an execution
var CancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "Cancel an execution",
	Long: `Cancel an execution: stop its runtime service and container, cancel its
remote compute tasks, and mark it CANCELLED.

Teardown is best effort - the execution is marked CANCELLED even when parts
of the teardown fail; failures are reported in the outcome.

Examples:
  warden cancel 4f1c... --user alice
  warden cancel 4f1c... --user ops --admin   # bypass the ownership check`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	CancelCmd.Flags().String("user", "", "Acting user ID (required)")
	CancelCmd.Flags().Bool("admin", false, "Cancel regardless of ownership")
	CancelCmd.MarkFlagRequired("user")
}

func runCancel(cmd *cobra.Command, args []string) error {
	executionID := args[0]
	userID, _ := cmd.Flags().GetString("user")
	admin, _ := cmd.Flags().GetBool("admin")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	client, err := runtime.NewDockerClient(cfg.Runtime.Host, cfg.Runtime.RemoveOpsPerSec)
	if err != nil {
		return fmt.Errorf("failed to create runtime client: %w", err)
	}

	store := execution.NewStore(database)
	logStore := execution.NewLogStore(database)
	statusLog := execution.NewStatusLogStore(database)
	lifecycle := execution.NewLifecycle(store, logStore, statusLog, logger.Logger)

	// One-shot worker pool so the runtime stop round-trip has someone to
	// service it even when no daemon is running
	dispatcher := dispatch.NewDispatcher(dispatch.NewStore(database))
	registry := dispatch.NewRegistry()
	registry.Register(runtime.NewStopHandler(client, logger.Logger))

	poolCfg := dispatch.DefaultWorkerPoolConfig()
	poolCfg.Workers = 1
	poolCfg.PollInterval = 100 * time.Millisecond
	// A daemon may be running against the same queue; leave its in-flight
	// tasks alone
	poolCfg.SkipRecovery = true

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	pool := dispatch.NewWorkerPool(ctx, dispatcher, registry, poolCfg, logger.Logger)
	pool.Start()
	defer pool.Stop()

	var canceller compute.Canceller = compute.NopCanceller{}
	if cfg.Compute.BaseURL != "" {
		canceller = compute.NewHTTPCanceller(cfg.Compute.BaseURL, cfg.Compute.APIToken,
			time.Duration(cfg.Compute.TimeoutSeconds)*time.Second)
	}

	coordinator := cancel.NewCoordinator(store, lifecycle, logStore, dispatcher, canceller,
		cfg.Cancellation.StopTimeout(), logger.Logger)

	outcome, err := coordinator.Cancel(ctx, executionID, cancel.Principal{UserID: userID, Admin: admin})
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(outcome.Details, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format outcome: %w", err)
	}

	fmt.Printf("Execution %s cancelled (was %s)\n", executionID, outcome.Details.PreviousStatus)
	fmt.Println(string(output))
	return nil
}
