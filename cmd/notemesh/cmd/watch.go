package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/output"
	"github.com/Aman-CERP/notemesh/internal/telemetry"
	"github.com/Aman-CERP/notemesh/internal/watcher"
)

type watchFlags struct {
	metricsAddr string
	initial     bool
	poll        bool
}

func newWatchCmd() *cobra.Command {
	var f watchFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-index the vault whenever notes change",
		Long: `Watch the vault for note changes and run an index transaction once the
vault has been quiet for the debounce period (watch.debounce, default 5s).

Falls back to polling when filesystem notifications are unavailable.
Stops on Ctrl+C, letting a running transaction finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(cmd, func(ctx context.Context, a *app.App) error {
				return runWatch(ctx, cmd, a, f)
			})
		},
	}

	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().BoolVar(&f.initial, "initial", false, "Index once at startup before waiting for changes")
	cmd.Flags().BoolVar(&f.poll, "poll", false, "Poll the vault instead of using filesystem notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, a *app.App, f watchFlags) error {
	out := output.New(cmd.OutOrStdout())

	s, err := startScheduler(ctx, a, f)
	if err != nil {
		return err
	}
	out.Statusf(output.IconWatch, "Watching %s (debounce %s)", a.Rules.Root(), a.WatchOptions().Debounce)

	<-ctx.Done()
	out.Status(output.IconNone, "Stopping...")
	if err := s.Stop(); err != nil {
		return err
	}

	st := s.Stats()
	out.KeyValues([]output.KV{
		{Key: "Events", Value: st.Events},
		{Key: "Index runs", Value: st.Batches},
		{Key: "Failures", Value: st.Failures},
		{Key: "Last run", Value: formatTime(st.LastRun)},
	})
	if st.LastError != "" {
		out.Warningf("Last error: %s", st.LastError)
	}
	return nil
}

// startScheduler starts the change-watch scheduler and, when an address is
// configured, the metrics endpoint. Both stop with ctx.
func startScheduler(ctx context.Context, a *app.App, f watchFlags) (*watcher.Scheduler, error) {
	s, err := a.NewScheduler(f.poll)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("start scheduler: %w", err)
	}

	addr := f.metricsAddr
	if addr == "" {
		addr = a.Config.Server.MetricsAddr
	}
	if addr != "" {
		go func() {
			if err := telemetry.Serve(ctx, addr, a.Registry); err != nil {
				slog.Error("metrics endpoint failed", slog.String("addr", addr), slog.String("error", err.Error()))
			}
		}()
	}

	if f.initial {
		s.Trigger()
	}
	return s, nil
}
