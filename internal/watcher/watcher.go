// Package watcher turns filesystem activity under a vault into debounced
// index runs.
//
// The pipeline is: an event Source (fsnotify, or polling where fsnotify is
// unavailable) feeds a bounded channel; the Scheduler folds events into a
// pending queue keyed by path and, once no event has arrived for the
// debounce interval, calls UpdateIndex exactly once for the whole batch.
//
// Usage:
//
//	src, err := watcher.NewFSWatcher(rules, opts)
//	if err != nil {
//	    return err
//	}
//	s := watcher.NewScheduler(indexer, src, opts, metrics)
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Stop()
package watcher

import (
	"context"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is absolute.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Source produces filtered file events for one vault.
type Source interface {
	// Start begins watching and returns once the watch set is established.
	Start(ctx context.Context) error
	// Stop releases resources and closes both channels. Safe to call
	// multiple times.
	Stop() error
	Events() <-chan FileEvent
	// Errors carries non-fatal watcher errors.
	Errors() <-chan error
}

// Options configures the watcher and the scheduler.
type Options struct {
	// Debounce is the quiet period after the last event before an index run.
	// Default: 5s
	Debounce time.Duration

	// StopTimeout bounds how long Stop waits for the worker.
	// Default: 10s
	StopTimeout time.Duration

	// PollInterval is the interval for polling mode (fallback).
	// Default: 5s
	PollInterval time.Duration

	// EventBuffer is the size of the event channel buffer.
	// Default: 1000
	EventBuffer int

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:     5 * time.Second,
		StopTimeout:  10 * time.Second,
		PollInterval: 5 * time.Second,
		EventBuffer:  1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaults.StopTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaults.EventBuffer
	}
	return o
}
