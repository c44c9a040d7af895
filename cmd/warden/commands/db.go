package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/execution"
)

// DbCmd groups database operations
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the warden database",
	Long: `Manage database operations.

Examples:
  warden db status    # Show schema version and execution counts
  warden db migrate   # Apply pending migrations`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema version and execution counts",
	RunE:  runDbStatus,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbStatusCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()

	fmt.Println("Database Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Path: %s\n\n", cfg.GetDatabasePath())

	// Applied migrations
	rows, err := database.Query(`SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return fmt.Errorf("failed to query schema versions: %w", err)
	}
	defer rows.Close()

	fmt.Println("Applied migrations:")
	for rows.Next() {
		var version, appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return fmt.Errorf("failed to scan migration row: %w", err)
		}
		fmt.Printf("  %s  (applied %s)\n", version, appliedAt)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate migrations: %w", err)
	}
	fmt.Println()

	// Execution counts
	counts, err := execution.NewStore(database).CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count executions: %w", err)
	}

	fmt.Println("Executions:")
	fmt.Printf("  %-10s %d\n", execution.StatusPending, counts.Pending)
	fmt.Printf("  %-10s %d\n", execution.StatusReady, counts.Ready)
	fmt.Printf("  %-10s %d\n", execution.StatusRunning, counts.Running)
	fmt.Printf("  %-10s %d\n", execution.StatusFinished, counts.Finished)
	fmt.Printf("  %-10s %d\n", execution.StatusFailed, counts.Failed)
	fmt.Printf("  %-10s %d\n", execution.StatusCancelled, counts.Cancelled)
	fmt.Printf("  %-10s %d\n\n", "total", counts.Total())

	// Dispatch queue
	taskCounts, err := dispatch.NewStore(database).CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count dispatch tasks: %w", err)
	}

	fmt.Println("Dispatch tasks:")
	for _, status := range []dispatch.TaskStatus{
		dispatch.TaskStatusQueued, dispatch.TaskStatusRunning,
		dispatch.TaskStatusSucceeded, dispatch.TaskStatusFailed,
	} {
		fmt.Printf("  %-10s %d\n", status, taskCounts[status])
	}

	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as part of opening
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Println("✓ Database schema is up to date")
	return nil
}
