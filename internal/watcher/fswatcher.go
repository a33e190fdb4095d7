package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/notemesh/internal/vault"
)

// FSWatcher is a Source backed by fsnotify. When fsnotify cannot be
// initialised it delegates to a PollingWatcher.
type FSWatcher struct {
	rules       *vault.Rules
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	events      chan FileEvent
	errors      chan error
	stopCh      chan struct{}
	done        chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool

	dropped atomic.Uint64
}

var _ Source = (*FSWatcher)(nil)
var _ Source = (*PollingWatcher)(nil)

// NewFSWatcher creates a watcher for the notes rules accepts.
func NewFSWatcher(rules *vault.Rules, opts Options) (*FSWatcher, error) {
	opts = opts.WithDefaults()
	if rules == nil {
		return nil, fmt.Errorf("vault rules are required")
	}

	w := &FSWatcher{
		rules:  rules,
		events: make(chan FileEvent, opts.EventBuffer),
		errors: make(chan error, 10),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		slog.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
	}
	w.pollWatcher = NewPollingWatcher(rules, opts.PollInterval, opts.EventBuffer)
	return w, nil
}

// Start adds every watchable directory and begins delivering events.
func (w *FSWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if w.pollWatcher != nil {
		if err := w.pollWatcher.Start(ctx); err != nil {
			w.unstart()
			return err
		}
		go w.forwardPolling(ctx)
		return nil
	}

	if err := w.addRecursive(w.rules.Root()); err != nil {
		w.unstart()
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	go w.run(ctx)
	return nil
}

func (w *FSWatcher) unstart() {
	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
}

func (w *FSWatcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

func (w *FSWatcher) forwardPolling(ctx context.Context) {
	defer close(w.done)
	events, errs := w.pollWatcher.Events(), w.pollWatcher.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			w.emit(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts and filters fsnotify events. A rename is
// reported by fsnotify on the old name, with a separate create on the new
// one, so it becomes a delete here.
func (w *FSWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name

	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		// chmod
		return
	}

	if !w.relevant(path, isDir, op) {
		return
	}

	if isDir && op == OpCreate {
		if err := w.addRecursive(path); err != nil {
			w.emitError(fmt.Errorf("watch new directory %s: %w", path, err))
		}
	}

	w.emit(FileEvent{Path: path, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// relevant reports whether an event can change the index. Directory
// removals are kept because fsnotify reports nothing for the notes inside.
func (w *FSWatcher) relevant(path string, isDir bool, op Operation) bool {
	if path == w.rules.Root() {
		return false
	}
	if isDir {
		return !w.rules.SkipDir(path) && !w.rules.Excluded(path)
	}
	if op == OpDelete && filepath.Ext(path) == "" {
		// A removed path can no longer be stat'ed; treat an extensionless
		// one as a directory.
		return !w.rules.SkipDir(path) && !w.rules.Excluded(path)
	}
	return w.rules.Eligible(path)
}

// addRecursive adds root and every directory below it that is not pruned.
func (w *FSWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip directories we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.rules.Root() && w.rules.SkipDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// emit sends an event without blocking. A dropped event is harmless while
// others are queued, because every index run rescans the whole vault.
func (w *FSWatcher) emit(event FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- event:
	default:
		count := w.dropped.Add(1)
		slog.Warn("event buffer full, dropping event",
			slog.String("path", event.Path),
			slog.Uint64("total_dropped", count),
		)
	}
}

func (w *FSWatcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	close(w.stopCh)
	w.mu.Unlock()

	var err error
	if w.fsWatcher != nil {
		err = w.fsWatcher.Close()
	}
	if w.pollWatcher != nil {
		_ = w.pollWatcher.Stop()
	}
	if started {
		<-w.done
	}

	close(w.events)
	close(w.errors)
	return err
}

// Events returns the channel of file events.
func (w *FSWatcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// DroppedEvents returns the number of events dropped due to buffer overflow.
func (w *FSWatcher) DroppedEvents() uint64 {
	return w.dropped.Load()
}

// Mode returns "fsnotify" or "polling".
func (w *FSWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}
