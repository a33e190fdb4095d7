// Package app opens the stores of a vault and wires them into the indexer,
// the context builder and the query log. CLI commands and the MCP server
// share it so every entry point sees the same data directory layout.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/notemesh/internal/assemble"
	"github.com/Aman-CERP/notemesh/internal/config"
	"github.com/Aman-CERP/notemesh/internal/document"
	"github.com/Aman-CERP/notemesh/internal/embed"
	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/index"
	"github.com/Aman-CERP/notemesh/internal/linkgraph"
	"github.com/Aman-CERP/notemesh/internal/stats"
	"github.com/Aman-CERP/notemesh/internal/store"
	"github.com/Aman-CERP/notemesh/internal/telemetry"
	"github.com/Aman-CERP/notemesh/internal/tokenize"
	"github.com/Aman-CERP/notemesh/internal/vault"
	"github.com/Aman-CERP/notemesh/internal/watcher"
)

// App is an opened vault.
type App struct {
	Config   *config.Config
	Rules    *vault.Rules
	Parser   *document.Parser
	Counter  tokenize.Counter
	Embedder embed.Embedder

	Notes  *store.NoteStore
	Graph  *linkgraph.Store
	Stats  *stats.Store
	Ledger *index.Ledger

	Indexer *index.Indexer
	Builder *assemble.Builder

	Registry *prometheus.Registry
	Metrics  *telemetry.Metrics
	Queries  *telemetry.QueryLog
}

// Options tunes Open.
type Options struct {
	// Registry receives the metrics. Nil creates a private one.
	Registry *prometheus.Registry
	// Embedder overrides the configured embedder.
	Embedder embed.Embedder
}

// Open loads every store under cfg.Index.DataDir, creating the directory
// when needed. Corrupt metadata files load as empty stores.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	dataDir := cfg.Index.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(cfg.Vault.Path, ".notemesh")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nerrors.New(nerrors.ErrCodeFilePermission, "cannot create data directory", err).
			WithDetail("data_dir", dataDir)
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	a := &App{
		Config:   cfg,
		Rules:    vault.NewRules(cfg.Vault.Path, cfg.Vault.Extensions, cfg.Vault.Exclude),
		Parser:   document.NewParser(cfg.Vault.Path),
		Counter:  tokenize.New(cfg.Tokenizer.Provider, cfg.Tokenizer.Encoding),
		Registry: reg,
		Metrics:  telemetry.New(reg),
	}
	a.Queries = telemetry.NewQueryLog(a.Metrics, telemetry.DefaultQueryLogConfig())

	a.Embedder = opts.Embedder
	if a.Embedder == nil {
		e, err := embed.New(ctx, embed.Options{
			Provider:   cfg.Embeddings.Provider,
			Model:      cfg.Embeddings.Model,
			OllamaHost: cfg.Embeddings.OllamaHost,
			CacheSize:  cfg.Embeddings.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		a.Embedder = e
	}

	a.Notes = store.NewNoteStore(a.Embedder, store.NoteStoreOptions{Dir: dataDir, ChunkSize: cfg.Embeddings.ChunkSize})
	if err := a.Notes.Load(); err != nil {
		_ = a.Embedder.Close()
		return nil, nerrors.New(nerrors.ErrCodeDimensionMismatch, "vector index was built with another embedder", err).
			WithSuggestion("Delete the vectors.* files in the data directory and run 'notemesh index'.")
	}

	a.Graph = linkgraph.Open(filepath.Join(dataDir, index.GraphFileName))
	a.Stats = stats.Open(filepath.Join(dataDir, index.StatsFileName), a.Counter)
	a.Ledger = index.OpenLedger(filepath.Join(dataDir, index.LedgerFileName))

	ix, err := index.New(index.Options{
		Rules:        a.Rules,
		Parser:       a.Parser,
		Vector:       a.Notes,
		Graph:        a.Graph,
		Stats:        a.Stats,
		Ledger:       a.Ledger,
		DataDir:      dataDir,
		MaxBackups:   cfg.Index.MaxBackups,
		ParseWorkers: cfg.Index.ParseWorkers,
		Metrics:      a.Metrics,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Indexer = ix
	a.Builder = assemble.NewBuilder(a.Graph, a.Stats, a.Notes, a.Parser)

	slog.Debug("vault opened",
		slog.String("vault", cfg.Vault.Path),
		slog.String("data_dir", dataDir),
		slog.Int("notes", a.Ledger.Len()),
		slog.String("embedder", a.Embedder.ModelName()))
	return a, nil
}

// DataDir returns the directory holding the stores.
func (a *App) DataDir() string {
	if a.Config.Index.DataDir != "" {
		return a.Config.Index.DataDir
	}
	return filepath.Join(a.Config.Vault.Path, ".notemesh")
}

// ContextOptions returns the configured context collection defaults.
func (a *App) ContextOptions() assemble.Options {
	opts := assemble.DefaultOptions()
	c := a.Config.Context
	opts.MaxBacklinks = c.MaxBacklinks
	opts.MaxForwardLinks = c.MaxForwardLinks
	opts.MaxSemantic = c.MaxSemanticRelated
	opts.MaxTagRelated = c.MaxTagRelated
	return opts
}

// Packer returns a packer for maxTokens, falling back to the configured
// budget when maxTokens is not positive.
func (a *App) Packer(maxTokens int) *assemble.Packer {
	if maxTokens <= 0 {
		maxTokens = a.Config.Context.MaxTokens
	}
	return assemble.NewPacker(maxTokens, a.Counter)
}

// PackContext collects and packs the bundle for title.
func (a *App) PackContext(ctx context.Context, title string, opts assemble.Options, maxTokens int) (*assemble.Bundle, error) {
	bundle, err := a.Builder.Build(ctx, title, opts)
	if err != nil {
		return nil, err
	}
	return a.Packer(maxTokens).Pack(bundle), nil
}

// WatchOptions converts the watch section of the config.
func (a *App) WatchOptions() watcher.Options {
	w := a.Config.Watch
	return watcher.Options{
		Debounce:     a.Config.DebounceDuration(),
		StopTimeout:  a.Config.StopTimeoutDuration(),
		PollInterval: a.Config.PollIntervalDuration(),
		EventBuffer:  w.EventBuffer,
	}.WithDefaults()
}

// NewScheduler builds a change-watch scheduler over an fsnotify watcher,
// which itself falls back to polling when fsnotify is unavailable.
func (a *App) NewScheduler(forcePolling bool) (*watcher.Scheduler, error) {
	opts := a.WatchOptions()
	opts.ForcePolling = forcePolling
	src, err := watcher.NewFSWatcher(a.Rules, opts)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return watcher.NewScheduler(a.Indexer, src, opts, a.Metrics), nil
}

// Close releases the vector index and the embedder.
func (a *App) Close() error {
	var first error
	if a.Notes != nil {
		first = a.Notes.Close()
	}
	if a.Embedder != nil {
		if err := a.Embedder.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
