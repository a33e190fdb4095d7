// Package telemetry exposes Prometheus metrics for index transactions,
// the watch scheduler and note queries, plus an in-memory query log.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcomes.
const (
	OutcomeNoop       = "noop"
	OutcomeSuccess    = "success"
	OutcomeRolledBack = "rolled_back"
	OutcomeBusy       = "busy"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	ChangesTotal        *prometheus.CounterVec
	ParseFailuresTotal  prometheus.Counter
	StoreDocuments      *prometheus.GaugeVec
	BackupsPruned       prometheus.Counter

	SchedulerBatchesTotal prometheus.Counter
	SchedulerEventsTotal  *prometheus.CounterVec
	SchedulerRunsTotal    *prometheus.CounterVec

	QueriesTotal *prometheus.CounterVec
	QueryLatency *prometheus.HistogramVec
	QueryResults prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg uses
// a fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notemesh_index_transactions_total",
				Help: "Index transactions by outcome (noop, success, rolled_back, busy).",
			},
			[]string{"outcome"},
		),
		TransactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notemesh_index_transaction_duration_seconds",
				Help:    "Index transaction latency in seconds.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		ChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notemesh_index_changes_total",
				Help: "Changed notes applied by kind (new, modified, deleted).",
			},
			[]string{"kind"},
		),
		ParseFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notemesh_index_parse_failures_total",
				Help: "Notes skipped because they could not be parsed.",
			},
		),
		StoreDocuments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notemesh_store_documents",
				Help: "Notes held by each store after the last transaction.",
			},
			[]string{"store"},
		),
		BackupsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notemesh_backups_pruned_total",
				Help: "Backup snapshots removed by retention.",
			},
		),
		SchedulerBatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notemesh_scheduler_batches_total",
				Help: "Debounced batches flushed by the watch scheduler.",
			},
		),
		SchedulerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notemesh_scheduler_events_total",
				Help: "Filesystem events accepted by the watch scheduler by operation.",
			},
			[]string{"op"},
		),
		SchedulerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notemesh_scheduler_runs_total",
				Help: "Index runs triggered by the scheduler by status (ok, error).",
			},
			[]string{"status"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notemesh_queries_total",
				Help: "Note queries by tool and result type (hit, zero_result, error).",
			},
			[]string{"tool", "result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notemesh_query_latency_seconds",
				Help:    "Note query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"tool"},
		),
		QueryResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notemesh_query_results_count",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
	}

	reg.MustRegister(
		m.TransactionsTotal,
		m.TransactionDuration,
		m.ChangesTotal,
		m.ParseFailuresTotal,
		m.StoreDocuments,
		m.BackupsPruned,
		m.SchedulerBatchesTotal,
		m.SchedulerEventsTotal,
		m.SchedulerRunsTotal,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResults,
	)
	return m
}

// ObserveTransaction records one UpdateIndex call.
func (m *Metrics) ObserveTransaction(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
	m.TransactionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AddChanges counts applied changes of kind.
func (m *Metrics) AddChanges(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ChangesTotal.WithLabelValues(kind).Add(float64(n))
}

// AddParseFailures counts skipped notes.
func (m *Metrics) AddParseFailures(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ParseFailuresTotal.Add(float64(n))
}

// SetStoreSize records how many notes store holds.
func (m *Metrics) SetStoreSize(store string, n int) {
	if m == nil {
		return
	}
	m.StoreDocuments.WithLabelValues(store).Set(float64(n))
}

// AddPrunedBackups counts removed snapshots.
func (m *Metrics) AddPrunedBackups(n int) {
	if m == nil || n == 0 {
		return
	}
	m.BackupsPruned.Add(float64(n))
}

// SchedulerEvent counts one accepted filesystem event.
func (m *Metrics) SchedulerEvent(op string) {
	if m == nil {
		return
	}
	m.SchedulerEventsTotal.WithLabelValues(op).Inc()
}

// SchedulerRun records a debounced flush and the outcome of its index run.
func (m *Metrics) SchedulerRun(err error) {
	if m == nil {
		return
	}
	m.SchedulerBatchesTotal.Inc()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SchedulerRunsTotal.WithLabelValues(status).Inc()
}

// ObserveQuery records one note query.
func (m *Metrics) ObserveQuery(tool string, results int, d time.Duration, err error) {
	if m == nil {
		return
	}
	resultType := "hit"
	switch {
	case err != nil:
		resultType = "error"
	case results == 0:
		resultType = "zero_result"
	}
	m.QueriesTotal.WithLabelValues(tool, resultType).Inc()
	m.QueryLatency.WithLabelValues(tool).Observe(d.Seconds())
	if err == nil {
		m.QueryResults.Observe(float64(results))
	}
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics endpoint listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
