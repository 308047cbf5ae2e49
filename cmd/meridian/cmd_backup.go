package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// backupCmd implements 'meridian backup'
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a database backup to the configured bucket",
	Long: `Snapshot the history, runs and cache databases, upload the archive to
BACKUP_S3_BUCKET and rotate archives older than BACKUP_RETENTION_DAYS.`,
	RunE: runBackup,
}

// backupListCmd implements 'meridian backup list'
var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backup archives",
	RunE:  runBackupList,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupListCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	container, jobs, _, _, err := openContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	if jobs.Backup == nil {
		return fmt.Errorf("backups are not configured: set BACKUP_S3_BUCKET")
	}
	if err := container.Scheduler.RunNow(jobs.Backup); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Backup completed")
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	if err := validateFormat(); err != nil {
		return err
	}

	container, _, _, _, err := openContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	if container.BackupService == nil {
		return fmt.Errorf("backups are not configured: set BACKUP_S3_BUCKET")
	}
	backups, err := container.BackupService.ListBackups(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, backups)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVE\tSIZE (KB)\tAGE (H)")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%d\t%d\n", b.Filename, b.SizeBytes/1024, b.AgeHours)
	}
	return w.Flush()
}
