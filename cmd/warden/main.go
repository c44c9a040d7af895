package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/cmd/warden/commands"
	"github.com/wardenhq/warden/logger"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "warden - execution lifecycle daemon",
	Long: `warden - async execution lifecycle core.

Warden owns the lifecycle of container-backed executions: the status state
machine, the health monitor that fails executions whose services die, the
cleanup sweeps that reclaim stale runs and leftover resources, and the
cancellation coordinator.

Available commands:
  up      - Run the warden daemon (workers + scheduler + metrics)
  cancel  - Cancel an execution
  db      - Database status and migrations
  config  - Inspect and change configuration
  version - Show version information

Examples:
  warden up                     # Run the daemon in foreground
  warden cancel <execution-id> --user alice
  warden db status              # Show schema and execution counts
  warden config where           # Show configuration with sources`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetLevel(logger.VerbosityToLevel(verbosity))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Structured JSON log output")

	rootCmd.AddCommand(commands.UpCmd)
	rootCmd.AddCommand(commands.CancelCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
