package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/assemble"
	"github.com/Aman-CERP/notemesh/internal/output"
)

type packFlags struct {
	maxTokens    int
	noBacklinks  bool
	noForward    bool
	noSemantic   bool
	tags         bool
	maxBacklinks int
	maxForward   int
	maxSemantic  int
	maxTags      int
	jsonOutput   bool
	plain        bool
}

func newPackCmd() *cobra.Command {
	var f packFlags

	cmd := &cobra.Command{
		Use:   "pack <title>",
		Short: "Pack a note and its neighbourhood into a token budget",
		Long: `Collect a note, its backlinks, forward links, semantically similar notes
and (with --tags) notes sharing its first tag, then pack them by priority
into --max-tokens. Entries that no longer fit are trimmed or dropped.

Output is markdown ready to paste into a prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, func(ctx context.Context, a *app.App) error {
				return runPack(ctx, cmd, a, args[0], f)
			})
		},
	}

	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "Token budget (default context.max_tokens)")
	cmd.Flags().BoolVar(&f.noBacklinks, "no-backlinks", false, "Skip notes linking to the note")
	cmd.Flags().BoolVar(&f.noForward, "no-forward", false, "Skip notes the note links to")
	cmd.Flags().BoolVar(&f.noSemantic, "no-semantic", false, "Skip semantically related notes")
	cmd.Flags().BoolVar(&f.tags, "tags", false, "Include notes sharing the note's first tag")
	cmd.Flags().IntVar(&f.maxBacklinks, "max-backlinks", 0, "Backlink limit (default from config)")
	cmd.Flags().IntVar(&f.maxForward, "max-forward", 0, "Forward link limit (default from config)")
	cmd.Flags().IntVar(&f.maxSemantic, "max-semantic", 0, "Related note limit (default from config)")
	cmd.Flags().IntVar(&f.maxTags, "max-tags", 0, "Tag related limit (default from config)")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Output the packed bundle as JSON")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Omit metadata and link lines")

	return cmd
}

func (f packFlags) apply(opts assemble.Options) assemble.Options {
	opts.IncludeBacklinks = opts.IncludeBacklinks && !f.noBacklinks
	opts.IncludeForwardLinks = opts.IncludeForwardLinks && !f.noForward
	opts.IncludeSemantic = opts.IncludeSemantic && !f.noSemantic
	opts.IncludeTagRelated = opts.IncludeTagRelated || f.tags
	for _, o := range []struct {
		dst *int
		v   int
	}{
		{&opts.MaxBacklinks, f.maxBacklinks},
		{&opts.MaxForwardLinks, f.maxForward},
		{&opts.MaxSemantic, f.maxSemantic},
		{&opts.MaxTagRelated, f.maxTags},
	} {
		if o.v > 0 {
			*o.dst = o.v
		}
	}
	return opts
}

func runPack(ctx context.Context, cmd *cobra.Command, a *app.App, title string, f packFlags) error {
	bundle, err := a.PackContext(ctx, title, f.apply(a.ContextOptions()), f.maxTokens)
	if err != nil {
		return err
	}
	if f.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), bundle)
	}
	md := assemble.Markdown(bundle, assemble.RenderOptions{Metadata: !f.plain, Links: !f.plain})
	output.New(cmd.OutOrStdout()).Raw(md)
	return nil
}
