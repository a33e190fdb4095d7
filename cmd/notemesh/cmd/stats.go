package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/linkgraph"
	"github.com/Aman-CERP/notemesh/internal/output"
	"github.com/Aman-CERP/notemesh/internal/stats"
)

// StatsOutput is the JSON output of the stats command.
type StatsOutput struct {
	Vault      string                 `json:"vault"`
	DataDir    string                 `json:"data_dir"`
	Notes      int                    `json:"notes"`
	LastUpdate *time.Time             `json:"last_update,omitempty"`
	Chunks     int                    `json:"chunks"`
	Embedder   string                 `json:"embedder"`
	Totals     stats.Totals           `json:"totals"`
	Network    linkgraph.NetworkStats `json:"network"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Show the size of the index: notes, words and estimated tokens per
folder, link network totals and the most used tags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(cmd, func(_ context.Context, a *app.App) error {
				return runStats(cmd, a, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func collectStats(a *app.App) StatsOutput {
	so := StatsOutput{
		Vault:    a.Rules.Root(),
		DataDir:  a.DataDir(),
		Notes:    a.Ledger.Len(),
		Chunks:   a.Notes.ChunkCount(),
		Embedder: a.Embedder.ModelName(),
		Totals:   a.Stats.Totals(),
		Network:  a.Graph.Stats(),
	}
	if t := a.Ledger.LastUpdate(); !t.IsZero() {
		so.LastUpdate = &t
	}
	return so
}

func runStats(cmd *cobra.Command, a *app.App, jsonOutput bool) error {
	so := collectStats(a)
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), so)
	}

	out := output.New(cmd.OutOrStdout())
	last := "never"
	if so.LastUpdate != nil {
		last = formatTime(*so.LastUpdate)
	}
	out.Header("Vault")
	out.KeyValues([]output.KV{
		{Key: "Path", Value: so.Vault},
		{Key: "Data dir", Value: so.DataDir},
		{Key: "Indexed notes", Value: so.Notes},
		{Key: "Last update", Value: last},
		{Key: "Chunks", Value: so.Chunks},
		{Key: "Embedder", Value: so.Embedder},
		{Key: "Words", Value: so.Totals.TotalWords},
		{Key: "Tokens (est.)", Value: so.Totals.TotalTokensEstimated},
	})

	out.Newline()
	out.Header("Link network")
	out.KeyValues([]output.KV{
		{Key: "Notes", Value: so.Network.TotalFiles},
		{Key: "Backlinks", Value: so.Network.TotalBacklinks},
		{Key: "Orphans", Value: so.Network.OrphanedNotes},
	})

	if len(so.Totals.ByFolder) > 0 {
		out.Newline()
		out.Header("Folders")
		pairs := make([]output.KV, 0, len(so.Totals.ByFolder))
		for _, name := range slices.Sorted(maps.Keys(so.Totals.ByFolder)) {
			fs := so.Totals.ByFolder[name]
			pairs = append(pairs, output.KV{
				Key:   name,
				Value: fmt.Sprintf("%s, %d words, ~%d tokens", plural(fs.Files, "note"), fs.Words, fs.Tokens),
			})
		}
		out.KeyValues(pairs)
	}

	if len(so.Totals.TopTags) > 0 {
		out.Newline()
		out.Header("Top tags")
		pairs := make([]output.KV, 0, len(so.Totals.TopTags))
		for _, tc := range so.Totals.TopTags {
			pairs = append(pairs, output.KV{Key: "#" + tc.Tag, Value: tc.Count})
		}
		out.KeyValues(pairs)
	}
	return nil
}
