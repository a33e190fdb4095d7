package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/mcp"
	"github.com/Aman-CERP/notemesh/internal/output"
)

// withTools opens the vault and prints the markdown returned by fn. The
// CLI shares the formatting of the MCP tools.
func withTools(cmd *cobra.Command, fn func(ctx context.Context, srv *mcp.Server) (string, error)) error {
	return withVault(cmd, func(ctx context.Context, a *app.App) error {
		srv, err := mcp.NewServer(a)
		if err != nil {
			return err
		}
		text, err := fn(ctx, srv)
		if err != nil {
			return err
		}
		output.New(cmd.OutOrStdout()).Markdown(text)
		return nil
	})
}

func newBacklinksCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "backlinks <title>",
		Short: "List notes linking to a note",
		Long: `List the notes that link to <title>. With --depth > 1 the backlinks of
those notes are followed too, breadth first; each note appears once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := args[0]
			if depth <= 1 {
				return withTools(cmd, func(ctx context.Context, srv *mcp.Server) (string, error) {
					return srv.GetBacklinks(ctx, mcp.NoteTitleInput{NoteTitle: title})
				})
			}
			return withVault(cmd, func(_ context.Context, a *app.App) error {
				return runBacklinkTree(cmd, a, title, depth)
			})
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 1, "Follow backlinks this many hops")
	return cmd
}

func runBacklinkTree(cmd *cobra.Command, a *app.App, title string, depth int) error {
	entries := a.Stats.ByBacklinks(title, depth)
	if len(entries) == 0 {
		return nerrors.NotFoundError(title)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf(output.IconSearch, "Notes reaching %q within %d hops", title, depth)
	items := make([]string, 0, len(entries)-1)
	for _, e := range entries[1:] {
		items = append(items, fmt.Sprintf("%s (%s)  %s", e.Title, e.Folder, e.RelativePath))
	}
	out.List(items, "No backlinks")
	return nil
}

func newLinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links <title>",
		Short: "List the notes a note links to",
		Long:  `List the wiki links of <title>. Targets without a note are marked as not created yet.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTools(cmd, func(ctx context.Context, srv *mcp.Server) (string, error) {
				return srv.GetForwardLinks(ctx, mcp.NoteTitleInput{NoteTitle: args[0]})
			})
		},
	}
}

func newTagsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "tags [tag]",
		Short: "List tags, or the notes carrying one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return withTools(cmd, func(ctx context.Context, srv *mcp.Server) (string, error) {
					return srv.SearchByTag(ctx, mcp.SearchByTagInput{Tag: args[0]})
				})
			}
			return withVault(cmd, func(_ context.Context, a *app.App) error {
				tags := a.Graph.AllTags()
				if limit > 0 && len(tags) > limit {
					tags = tags[:limit]
				}
				out := output.New(cmd.OutOrStdout())
				if len(tags) == 0 {
					out.Status(output.IconNone, "No tags")
					return nil
				}
				pairs := make([]output.KV, len(tags))
				for i, tc := range tags {
					pairs[i] = output.KV{Key: "#" + tc.Tag, Value: tc.Count}
				}
				out.KeyValues(pairs)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many tags (0 = all)")
	return cmd
}

func newOrphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List notes with no links in or out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTools(cmd, func(ctx context.Context, srv *mcp.Server) (string, error) {
				return srv.GetOrphans(ctx, mcp.EmptyInput{})
			})
		},
	}
}

func newRecentCmd() *cobra.Command {
	var in mcp.QueryRecentInput

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List notes modified recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTools(cmd, func(ctx context.Context, srv *mcp.Server) (string, error) {
				return srv.QueryRecent(ctx, in)
			})
		},
	}

	cmd.Flags().IntVar(&in.Days, "days", 7, "Look back this many days")
	cmd.Flags().StringVar(&in.Folder, "folder", "", "Only notes in this top-level folder")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		in      mcp.SearchNotesInput
		related bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over note chunks",
		Long: `Search the vector index. With --related the argument is a note path
relative to the vault and the notes most similar to it are listed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withTools(cmd, func(ctx context.Context, srv *mcp.Server) (string, error) {
				if related {
					return srv.FindRelated(ctx, mcp.FindRelatedInput{NotePath: query, TopK: in.TopK})
				}
				in.Query = query
				return srv.SearchNotes(ctx, in)
			})
		},
	}

	cmd.Flags().IntVarP(&in.TopK, "top-k", "k", 5, "Number of results")
	cmd.Flags().StringVar(&in.Folder, "folder", "", "Only notes in this top-level folder")
	cmd.Flags().BoolVar(&related, "related", false, "Find notes related to a note path")
	return cmd
}
