package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/index"
	"github.com/Aman-CERP/notemesh/internal/telemetry"
)

// Indexer is the transaction the scheduler drives.
type Indexer interface {
	UpdateIndex(ctx context.Context) (*index.Result, error)
}

// SchedulerStats is a point-in-time view of the scheduler.
type SchedulerStats struct {
	Running   bool      `json:"running"`
	Events    int64     `json:"events"`
	Batches   int64     `json:"batches"`
	Failures  int64     `json:"failures"`
	Pending   int       `json:"pending"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler folds source events into a pending queue and runs the indexer
// once per quiet period. Each new event restarts the wait.
type Scheduler struct {
	indexer     Indexer
	source      Source
	queue       *Queue
	debounce    time.Duration
	stopTimeout time.Duration
	metrics     *telemetry.Metrics

	kick    chan struct{}
	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
	stats   SchedulerStats
}

// NewScheduler wires indexer to source. metrics may be nil.
func NewScheduler(indexer Indexer, source Source, opts Options, metrics *telemetry.Metrics) *Scheduler {
	opts = opts.WithDefaults()
	return &Scheduler{
		indexer:     indexer,
		source:      source,
		queue:       NewQueue(),
		debounce:    opts.Debounce,
		stopTimeout: opts.StopTimeout,
		metrics:     metrics,
		kick:        make(chan struct{}, 1),
		trigger:     make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the source and the background workers. Calling Start on a
// running scheduler is a no-op; a stopped scheduler cannot be restarted.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.stopped {
		return fmt.Errorf("scheduler already stopped")
	}
	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	s.running = true
	s.wg.Add(2)
	go s.pump()
	go s.work(context.WithoutCancel(ctx))

	slog.Info("watch scheduler started", slog.Duration("debounce", s.debounce))
	return nil
}

// Stop stops the source and waits up to the stop timeout for the workers.
// An index run in progress is allowed to finish. Safe to call multiple times.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	if err := s.source.Stop(); err != nil {
		slog.Warn("failed to stop watcher", slog.String("error", err.Error()))
	}
	if !wasRunning {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("watch scheduler stopped")
		return nil
	case <-time.After(s.stopTimeout):
		return fmt.Errorf("scheduler did not stop within %s", s.stopTimeout)
	}
}

// Trigger requests an index run now, without waiting for the debounce.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stats returns counters for the scheduler.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Running = s.running
	st.Pending = s.queue.Len()
	return st
}

// pump moves source events into the queue and wakes the worker.
func (s *Scheduler) pump() {
	defer s.wg.Done()

	events, errs := s.source.Events(), s.source.Errors()
	for events != nil || errs != nil {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.queue.Add(ev)
			s.metrics.SchedulerEvent(ev.Operation.String())
			s.mu.Lock()
			s.stats.Events++
			s.mu.Unlock()
			select {
			case s.kick <- struct{}{}:
			default:
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// work waits for a quiet period after the latest event, then runs the
// indexer once for everything queued.
func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.kick:
			timer.Reset(s.debounce)
		case <-timer.C:
			s.flush(ctx)
		case <-s.trigger:
			timer.Stop()
			s.flush(ctx)
		}
	}
}

// flush drains the queue and runs the indexer. Failures are logged and
// counted; the worker keeps going.
func (s *Scheduler) flush(ctx context.Context) {
	changes := s.queue.Drain()
	slog.Debug("debounce elapsed, running index", slog.Int("pending", len(changes)))

	res, err := s.indexer.UpdateIndex(ctx)
	s.metrics.SchedulerRun(err)

	s.mu.Lock()
	s.stats.Batches++
	s.stats.LastRun = time.Now()
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("scheduled index run failed", nerrors.LogAttrs(err)...)
		return
	}
	if !res.NoOp {
		slog.Info("scheduled index run complete",
			slog.Int("new", len(res.Changes.New)),
			slog.Int("modified", len(res.Changes.Modified)),
			slog.Int("deleted", len(res.Changes.Deleted)),
			slog.Duration("duration", res.Duration))
	}
}
