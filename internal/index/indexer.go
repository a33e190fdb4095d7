// Package index keeps the vector store, the link graph and the stats index
// in step with the vault. UpdateIndex applies every pending change as one
// transaction: metadata files are backed up first and restored if any
// write fails.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/notemesh/internal/document"
	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/linkgraph"
	"github.com/Aman-CERP/notemesh/internal/telemetry"
	"github.com/Aman-CERP/notemesh/internal/vault"
)

// Metadata file names inside the data directory.
const (
	LedgerFileName = "index_metadata.json"
	GraphFileName  = "network_metadata.json"
	StatsFileName  = "stats_index.json"
)

const (
	// DefaultMaxBackups is how many snapshots survive pruning.
	DefaultMaxBackups = 5
	// DefaultLockTimeout bounds the wait for the cross-process lock.
	DefaultLockTimeout = 5 * time.Second
)

// Parser turns a note file into a Document.
type Parser interface {
	Parse(path string) (*document.Document, error)
}

// VectorStore is the semantic index. It has no backup primitive, so its
// writes survive a rolled back transaction.
type VectorStore interface {
	AddDocument(ctx context.Context, doc *document.Document) error
	UpdateDocument(ctx context.Context, doc *document.Document) error
	DeleteDocument(ctx context.Context, path string) error
	Paths() []string
	Save() error
}

// GraphStore is the link and tag graph.
type GraphStore interface {
	UpdateMany(docs []*document.Document)
	DeleteMany(paths []string)
	Get(path string) (linkgraph.Entry, bool)
	Paths() []string
	Path() string
	Save() error
	Reload()
}

// StatsStore is the per-note statistics index.
type StatsStore interface {
	Update(doc *document.Document)
	Delete(path string)
	SyncLinks(path string, tags, backlinks, forward []string)
	Paths() []string
	Path() string
	Save() error
	Reload()
}

// Options wires an Indexer. Rules, Parser, Vector, Graph, Stats and
// Ledger are required.
type Options struct {
	Rules  *vault.Rules
	Parser Parser
	Vector VectorStore
	Graph  GraphStore
	Stats  StatsStore
	Ledger *Ledger

	// DataDir holds the backups and the lock file.
	DataDir      string
	MaxBackups   int
	ParseWorkers int
	LockTimeout  time.Duration

	Metrics *telemetry.Metrics
	Now     func() time.Time
}

// Result describes one UpdateIndex call.
type Result struct {
	Changes ChangeSet `json:"changes"`
	// Indexed is the number of new and modified notes written.
	Indexed int `json:"indexed"`
	// Skipped lists notes that failed to parse and stay pending.
	Skipped  []string      `json:"skipped,omitempty"`
	Backup   string        `json:"backup,omitempty"`
	NoOp     bool          `json:"noop"`
	Duration time.Duration `json:"duration"`
}

// Indexer runs index transactions. Calls are single-flight: concurrent
// callers in one process share the running transaction, and a file lock
// keeps other processes out.
type Indexer struct {
	rules    *vault.Rules
	detector *ChangeDetector
	parser   Parser
	vector   VectorStore
	graph    GraphStore
	stats    StatsStore
	ledger   *Ledger
	backups  *BackupManager
	lock     *ProcessLock

	maxBackups   int
	parseWorkers int
	lockTimeout  time.Duration
	metrics      *telemetry.Metrics
	now          func() time.Time

	mu    sync.Mutex
	group singleflight.Group
}

// New creates an Indexer.
func New(opts Options) (*Indexer, error) {
	switch {
	case opts.Rules == nil:
		return nil, fmt.Errorf("vault rules are required")
	case opts.Parser == nil:
		return nil, fmt.Errorf("parser is required")
	case opts.Vector == nil:
		return nil, fmt.Errorf("vector store is required")
	case opts.Graph == nil:
		return nil, fmt.Errorf("link graph store is required")
	case opts.Stats == nil:
		return nil, fmt.Errorf("stats store is required")
	case opts.Ledger == nil:
		return nil, fmt.Errorf("ledger is required")
	case opts.DataDir == "":
		return nil, fmt.Errorf("data directory is required")
	}

	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.ParseWorkers <= 0 {
		opts.ParseWorkers = runtime.NumCPU()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	backups := NewBackupManager(opts.DataDir, []string{
		opts.Ledger.Path(),
		opts.Graph.Path(),
		opts.Stats.Path(),
	})
	backups.now = opts.Now

	return &Indexer{
		rules:        opts.Rules,
		detector:     NewChangeDetector(opts.Rules),
		parser:       opts.Parser,
		vector:       opts.Vector,
		graph:        opts.Graph,
		stats:        opts.Stats,
		ledger:       opts.Ledger,
		backups:      backups,
		lock:         NewProcessLock(opts.DataDir),
		maxBackups:   opts.MaxBackups,
		parseWorkers: opts.ParseWorkers,
		lockTimeout:  opts.LockTimeout,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}, nil
}

// Backups returns the snapshot manager.
func (ix *Indexer) Backups() *BackupManager { return ix.backups }

// Ledger returns the ledger.
func (ix *Indexer) Ledger() *Ledger { return ix.ledger }

// Pending scans the vault without changing anything.
func (ix *Indexer) Pending(ctx context.Context) (ChangeSet, error) {
	res, err := ix.detector.Scan(ctx, ix.ledger.Snapshot())
	if err != nil {
		return ChangeSet{}, err
	}
	return res.Changes, nil
}

// UpdateIndex applies every pending change to the three stores and the
// ledger. On a write failure the metadata files are restored from the
// backup taken at the start and the error is returned as
// ERR_505_INDEX_FAILED. Vector store writes are not undone.
func (ix *Indexer) UpdateIndex(ctx context.Context) (*Result, error) {
	v, err, _ := ix.group.Do("update", func() (any, error) {
		return ix.run(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (ix *Indexer) run(ctx context.Context) (*Result, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()

	if err := ix.lock.Acquire(ctx, ix.lockTimeout); err != nil {
		if nerrors.HasCode(err, nerrors.ErrCodeIndexBusy) {
			ix.metrics.ObserveTransaction(telemetry.OutcomeBusy, time.Since(start))
		}
		return nil, err
	}
	defer func() {
		if err := ix.lock.Release(); err != nil {
			slog.Warn("failed to release index lock", slog.String("error", err.Error()))
		}
	}()

	slog.Debug("index phase", slog.String("phase", "scanning"))
	scan, err := ix.detector.Scan(ctx, ix.ledger.Snapshot())
	if err != nil {
		return nil, err
	}
	changes := scan.Changes

	if changes.Empty() {
		d := time.Since(start)
		ix.metrics.ObserveTransaction(telemetry.OutcomeNoop, d)
		slog.Debug("index up to date", slog.Duration("duration", d))
		return &Result{Changes: changes, NoOp: true, Duration: d}, nil
	}

	slog.Info("index transaction started",
		slog.Int("new", len(changes.New)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("deleted", len(changes.Deleted)))

	slog.Debug("index phase", slog.String("phase", "backing_up"))
	backupDir, err := ix.backups.Create()
	if err != nil {
		return nil, err
	}

	res := &Result{Changes: changes, Backup: backupDir}
	if err := ix.apply(ctx, scan, res); err != nil {
		return nil, ix.rollback(backupDir, err, start)
	}

	slog.Debug("index phase", slog.String("phase", "cleaning_up"))
	removed, err := ix.backups.Prune(ix.maxBackups)
	if err != nil {
		slog.Warn("failed to prune backups", slog.String("error", err.Error()))
	}
	ix.metrics.AddPrunedBackups(len(removed))

	res.Duration = time.Since(start)
	ix.metrics.ObserveTransaction(telemetry.OutcomeSuccess, res.Duration)
	ix.metrics.AddChanges("new", len(changes.New))
	ix.metrics.AddChanges("modified", len(changes.Modified))
	ix.metrics.AddChanges("deleted", len(changes.Deleted))
	ix.metrics.AddParseFailures(len(res.Skipped))
	ix.metrics.SetStoreSize("vector", len(ix.vector.Paths()))
	ix.metrics.SetStoreSize("graph", len(ix.graph.Paths()))
	ix.metrics.SetStoreSize("stats", len(ix.stats.Paths()))
	ix.metrics.SetStoreSize("ledger", ix.ledger.Len())

	slog.Info("index transaction committed",
		slog.Int("indexed", res.Indexed),
		slog.Int("deleted", len(changes.Deleted)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// apply runs the parse, write and persist phases.
func (ix *Indexer) apply(ctx context.Context, scan *ScanResult, res *Result) error {
	changes := scan.Changes

	slog.Debug("index phase", slog.String("phase", "applying"))
	// Modified notes come before new ones.
	toParse := slices.Concat(changes.Modified, changes.New)
	docs, skipped, err := ix.parseAll(ctx, toParse)
	if err != nil {
		return err
	}
	res.Skipped = skipped
	modified := make(map[string]bool, len(changes.Modified))
	for _, p := range changes.Modified {
		modified[p] = true
	}

	for _, p := range changes.Deleted {
		if err := ix.vector.DeleteDocument(ctx, p); err != nil {
			return storeWriteError("vector", "delete", err).WithDetail("path", p)
		}
	}
	ix.graph.DeleteMany(changes.Deleted)
	for _, p := range changes.Deleted {
		ix.stats.Delete(p)
		ix.ledger.Remove(p)
	}

	for _, doc := range docs {
		var err error
		if modified[doc.Path] {
			err = ix.vector.UpdateDocument(ctx, doc)
		} else {
			err = ix.vector.AddDocument(ctx, doc)
		}
		if err != nil {
			return storeWriteError("vector", "write", err).WithDetail("path", doc.Path)
		}
	}
	ix.graph.UpdateMany(docs)
	for _, doc := range docs {
		ix.stats.Update(doc)
		ix.ledger.Set(doc.Path, scan.Current[doc.Path])
	}
	res.Indexed = len(docs)

	ix.syncLinks()
	if err := ix.dropVectorOrphans(ctx); err != nil {
		return err
	}

	slog.Debug("index phase", slog.String("phase", "persisting"))
	if err := ix.vector.Save(); err != nil {
		return storeWriteError("vector", "save", err)
	}
	if err := ix.ledger.Save(ix.now()); err != nil {
		return storeWriteError("ledger", "save", err)
	}
	if err := ix.graph.Save(); err != nil {
		return storeWriteError("link graph", "save", err)
	}
	if err := ix.stats.Save(); err != nil {
		return storeWriteError("stats", "save", err)
	}
	return nil
}

// parseAll parses paths with bounded parallelism, keeping input order.
// A note that fails to parse is logged and skipped; only cancellation
// aborts the batch.
func (ix *Indexer) parseAll(ctx context.Context, paths []string) ([]*document.Document, []string, error) {
	parsed := make([]*document.Document, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.parseWorkers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := ix.parser.Parse(p)
			if err != nil {
				ne := nerrors.New(nerrors.ErrCodeParseFailed, "failed to parse note, leaving it pending", err).
					WithDetail("path", p)
				slog.Warn("note skipped", nerrors.LogAttrs(ne)...)
				return nil
			}
			parsed[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	docs := make([]*document.Document, 0, len(paths))
	var skipped []string
	for i, doc := range parsed {
		if doc == nil {
			skipped = append(skipped, paths[i])
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped, nil
}

// syncLinks copies the rebuilt link view of every note into the stats index.
func (ix *Indexer) syncLinks() {
	for _, p := range ix.graph.Paths() {
		if e, ok := ix.graph.Get(p); ok {
			ix.stats.SyncLinks(p, e.Tags, e.Backlinks, e.ForwardLinks)
		}
	}
}

// dropVectorOrphans removes vector entries the ledger no longer tracks.
// They are left behind when an earlier transaction rolled back after
// writing to the vector store.
func (ix *Indexer) dropVectorOrphans(ctx context.Context) error {
	for _, p := range ix.vector.Paths() {
		if ix.ledger.Has(p) {
			continue
		}
		slog.Debug("dropping orphaned vector entry", slog.String("path", p))
		if err := ix.vector.DeleteDocument(ctx, p); err != nil {
			return storeWriteError("vector", "delete", err).WithDetail("path", p)
		}
	}
	return nil
}

// rollback restores the metadata files, reloads the stores and wraps cause.
func (ix *Indexer) rollback(backupDir string, cause error, start time.Time) error {
	slog.Debug("index phase", slog.String("phase", "rolling_back"))
	slog.Error("index transaction failed, rolling back", nerrors.LogAttrs(cause)...)

	failed := nerrors.New(nerrors.ErrCodeIndexFailed, "index transaction failed and was rolled back", cause).
		WithDetail("backup", filepath.Base(backupDir))

	if err := ix.backups.Restore(backupDir); err != nil {
		slog.Error("rollback could not restore metadata", nerrors.LogAttrs(err)...)
		ix.metrics.ObserveTransaction(telemetry.OutcomeRolledBack, time.Since(start))
		return nerrors.New(nerrors.ErrCodeRestoreFailed, "index transaction failed and rollback did not complete",
			fmt.Errorf("%w; restore: %w", cause, err))
	}

	ix.ledger.Reload()
	ix.graph.Reload()
	ix.stats.Reload()
	ix.metrics.ObserveTransaction(telemetry.OutcomeRolledBack, time.Since(start))
	return failed
}

func storeWriteError(store, op string, err error) *nerrors.NoteError {
	return nerrors.New(nerrors.ErrCodeStoreWriteFailed, fmt.Sprintf("%s store %s failed", store, op), err)
}

// Check compares the note paths held by every store.
func (ix *Indexer) Check() *CheckResult {
	return CheckConsistency(map[string][]string{
		"vector": ix.vector.Paths(),
		"graph":  ix.graph.Paths(),
		"stats":  ix.stats.Paths(),
		"ledger": ix.ledger.Paths(),
	})
}
