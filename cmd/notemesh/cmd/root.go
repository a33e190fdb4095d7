// Package cmd provides the CLI commands for notemesh.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/config"
	"github.com/Aman-CERP/notemesh/internal/logging"
	"github.com/Aman-CERP/notemesh/internal/profiling"
	"github.com/Aman-CERP/notemesh/pkg/version"
)

// Global flags, bound by NewRootCmd.
var (
	vaultFlag   string
	debugMode   bool
	profileOpts profiling.Options

	profileSession *profiling.Session
	loggingCleanup func()
)

// NewRootCmd creates the root command for the notemesh CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notemesh",
		Short: "Incremental indexer and context packer for markdown vaults",
		Long: `notemesh keeps a link graph, per-note statistics and a semantic vector
index of a markdown vault in sync with the files on disk.

Every update runs as one transaction over all stores, so a failed run
rolls back instead of leaving the stores disagreeing.

The vault is --vault, then $OBSIDIAN_VAULT_PATH, then $NOTEMESH_VAULT_PATH,
then the working directory.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("notemesh version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Vault directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.notemesh/logs/")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newBacklinksCmd())
	cmd.AddCommand(newLinksCmd())
	cmd.AddCommand(newTagsCmd())
	cmd.AddCommand(newOrphansCmd())
	cmd.AddCommand(newRecentCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPackCmd())
	cmd.AddCommand(newBackupsCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the CLI logger and starts requested
// profiles. Without --debug only warnings reach stderr.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.Config{Level: "warn", Format: "text"}
	if debugMode {
		cfg = logging.DefaultConfig()
		cfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Debug("debug logging enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Version))
	}

	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = s
	}
	return nil
}

// stopProfilingAndLogging stops profiles, writes the heap profile if
// requested and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profileSession.Stop()
	profileSession = nil
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command until it returns or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig resolves the vault and loads its layered configuration.
func loadConfig() (*config.Config, error) {
	root, err := config.ResolveVaultPath(vaultFlag)
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}

// openVault loads the configuration and opens every store.
func openVault(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, app.Options{})
}

// withVault opens the vault, runs fn and closes it.
func withVault(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openVault(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to close vault", slog.String("error", err.Error()))
		}
	}()
	return fn(ctx, a)
}
