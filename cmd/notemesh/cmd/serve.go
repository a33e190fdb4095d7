package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/logging"
	"github.com/Aman-CERP/notemesh/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		watch     bool
		initial   bool
		wf        watchFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Serve the vault to MCP clients. Tools: search_notes, get_note,
find_related, search_by_tag, get_backlinks, get_forward_links,
get_orphaned_notes, get_vault_stats, update_index, pack_note_context and
query_recent.

stdout carries JSON-RPC only; logs go to ~/.notemesh/logs/notemesh.log.
With --watch the vault is re-indexed in the background as notes change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf.initial = initial
			return runServe(cmd, transport, watch, wf)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport (stdio); defaults to server.transport")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index in the background while serving")
	cmd.Flags().BoolVar(&initial, "initial", false, "With --watch, index once at startup")
	cmd.Flags().BoolVar(&wf.poll, "poll", false, "With --watch, poll instead of using filesystem notifications")
	cmd.Flags().StringVar(&wf.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runServe(cmd *cobra.Command, transport string, watch bool, wf watchFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(level, "")
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("failed to open vault", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = a.Close() }()

	if watch {
		s, err := startScheduler(ctx, a, wf)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Stop(); err != nil {
				slog.Warn("scheduler stop", slog.String("error", err.Error()))
			}
		}()
	}

	srv, err := mcp.NewServer(a)
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.Server.Transport
	}
	return srv.Serve(ctx, transport)
}
