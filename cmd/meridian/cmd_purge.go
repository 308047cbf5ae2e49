package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// purgeCmd implements 'meridian purge'
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run the retention job once",
	Long: `Delete expired covariance cache entries and backtest runs older than
RETENTION_RUN_DAYS, exactly as the scheduled retention job does.`,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	container, jobs, _, _, err := openContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	if err := container.Scheduler.RunNow(jobs.Retention); err != nil {
		return fmt.Errorf("retention failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Retention completed")
	return nil
}
