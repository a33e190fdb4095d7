package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/index"
	"github.com/Aman-CERP/notemesh/internal/output"
)

func newCheckCmd() *cobra.Command {
	var (
		repair     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that every store holds the same notes",
		Long: `Compare the notes in the vector index, link graph and statistics with
the ledger. With --repair, orphaned entries are deleted and notes missing
from a store are forgotten so the next index run adds them again.

Exits non-zero when inconsistencies remain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(cmd, func(ctx context.Context, a *app.App) error {
				return runCheck(ctx, cmd, a, repair, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Fix inconsistencies")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, a *app.App, repair, jsonOutput bool) error {
	var (
		res *index.CheckResult
		err error
	)
	if repair {
		res, err = a.Indexer.Repair(ctx)
		if err != nil {
			return err
		}
	} else {
		res = a.Indexer.Check()
	}

	if jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		printCheck(output.New(cmd.OutOrStdout()), a, res, repair)
	}

	if !res.Consistent() && !repair {
		return fmt.Errorf("%s found", plural(len(res.Inconsistencies), "inconsistency"))
	}
	return nil
}

func printCheck(out *output.Writer, a *app.App, res *index.CheckResult, repaired bool) {
	if res.Consistent() {
		out.Successf("All stores agree on %s", plural(res.Checked, "note"))
		return
	}
	if repaired {
		out.Successf("Repaired %s. Run 'notemesh index' to re-add missing notes.", plural(len(res.Inconsistencies), "issue"))
	} else {
		out.Warningf("%s across %s", plural(len(res.Inconsistencies), "issue"), plural(res.Checked, "note"))
	}
	items := make([]string, len(res.Inconsistencies))
	for i, issue := range res.Inconsistencies {
		items[i] = fmt.Sprintf("%-6s %s: %s", issue.Store, issue.Type, a.Rules.Rel(issue.Path))
	}
	out.List(items, "")
}
