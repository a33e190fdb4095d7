package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/output"
)

func newBackupsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List metadata backups, newest first",
		Long: `Every index run that changes something first snapshots the ledger, link
graph and statistics files into <data_dir>/backup/YYYYMMDD_HHMMSS.
index.max_backups snapshots are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(cmd, func(_ context.Context, a *app.App) error {
				return runBackupsList(cmd, a, jsonOutput)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newBackupsPruneCmd())
	return cmd
}

func runBackupsList(cmd *cobra.Command, a *app.App, jsonOutput bool) error {
	backups, err := a.Indexer.Backups().List()
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), backups)
	}

	out := output.New(cmd.OutOrStdout())
	if len(backups) == 0 {
		out.Status(output.IconNone, "No backups in "+a.Indexer.Backups().Root())
		return nil
	}
	items := make([]string, len(backups))
	for i, b := range backups {
		items[i] = fmt.Sprintf("%s  %s  (%s)", b.Name, formatTime(b.Time), plural(len(b.Files), "file"))
	}
	out.List(items, "")
	return nil
}

func newBackupsPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(cmd, func(_ context.Context, a *app.App) error {
				n := keep
				if n <= 0 {
					n = a.Config.Index.MaxBackups
				}
				removed, err := a.Indexer.Backups().Prune(n)
				if err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Removed %s, kept the newest %d", plural(len(removed), "backup"), n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Backups to keep (default index.max_backups)")
	return cmd
}
