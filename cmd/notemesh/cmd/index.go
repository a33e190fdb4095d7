package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/index"
	"github.com/Aman-CERP/notemesh/internal/output"
)

func newIndexCmd() *cobra.Command {
	var (
		dryRun     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Bring every store up to date with the vault",
		Long: `Scan the vault, compare it with the ledger of indexed notes and apply
new, modified and deleted notes to the vector index, link graph and
statistics in one transaction.

The metadata files are backed up before anything is written and restored
if a store fails. Notes that fail to parse are skipped and retried on the
next run.

Use --dry-run to list pending changes without writing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(cmd, func(ctx context.Context, a *app.App) error {
				if dryRun {
					return runIndexDryRun(ctx, cmd, a, jsonOutput)
				}
				return runIndex(ctx, cmd, a, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List pending changes without indexing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app.App, jsonOutput bool) error {
	res, err := a.Indexer.UpdateIndex(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	out := output.New(cmd.OutOrStdout())
	if res.NoOp {
		out.Success("No changes. The index is up to date.")
		return nil
	}
	printChanges(out, res.Changes)
	out.Successf("Indexed %s in %s", plural(res.Indexed, "note"), res.Duration.Round(time.Millisecond))
	if len(res.Skipped) > 0 {
		out.Warningf("%s failed to parse and stay pending:", plural(len(res.Skipped), "note"))
		out.List(res.Skipped, "")
	}
	if res.Backup != "" {
		out.Statusf(output.IconInfo, "Backup: %s", res.Backup)
	}
	return nil
}

func runIndexDryRun(ctx context.Context, cmd *cobra.Command, a *app.App, jsonOutput bool) error {
	changes, err := a.Indexer.Pending(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), changes)
	}

	out := output.New(cmd.OutOrStdout())
	if changes.Empty() {
		out.Success("No pending changes.")
		return nil
	}
	printChanges(out, changes)
	for _, group := range []struct {
		label string
		paths []string
	}{
		{"New", changes.New},
		{"Modified", changes.Modified},
		{"Deleted", changes.Deleted},
	} {
		if len(group.paths) == 0 {
			continue
		}
		out.Newline()
		out.Status(output.IconNone, group.label+":")
		rel := make([]string, len(group.paths))
		for i, p := range group.paths {
			rel[i] = a.Rules.Rel(p)
		}
		out.List(rel, "")
	}
	return nil
}

func printChanges(out *output.Writer, c index.ChangeSet) {
	out.Statusf(output.IconIndex, "%s pending", plural(c.Total(), "change"))
	out.KeyValues([]output.KV{
		{Key: "New", Value: len(c.New)},
		{Key: "Modified", Value: len(c.Modified)},
		{Key: "Deleted", Value: len(c.Deleted)},
	})
}
