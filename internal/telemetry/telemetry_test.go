package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_TransactionAndScheduler(t *testing.T) {
	// Given: metrics on a private registry
	reg := prometheus.NewRegistry()
	m := New(reg)

	// When: recording transactions and scheduler runs
	m.ObserveTransaction(OutcomeSuccess, 20*time.Millisecond)
	m.ObserveTransaction(OutcomeSuccess, 30*time.Millisecond)
	m.ObserveTransaction(OutcomeRolledBack, time.Millisecond)
	m.AddChanges("new", 3)
	m.AddChanges("deleted", 0)
	m.AddParseFailures(1)
	m.SetStoreSize("vector", 7)
	m.SchedulerEvent("modify")
	m.SchedulerRun(nil)
	m.SchedulerRun(errors.New("boom"))

	// Then: counters reflect them
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues(OutcomeRolledBack)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChangesTotal.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseFailuresTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.StoreDocuments.WithLabelValues("vector")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SchedulerBatchesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRunsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerEventsTotal.WithLabelValues("modify")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransaction(OutcomeNoop, time.Second)
		m.AddChanges("new", 1)
		m.SchedulerRun(nil)
		m.ObserveQuery("search_notes", 1, time.Millisecond, nil)
	})
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveTransaction(OutcomeNoop, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `notemesh_index_transactions_total{outcome="noop"} 1`))
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"weekly", "review", "회의록"}, ExtractTerms("Weekly  review of 회의록 a"))
	assert.Nil(t, ExtractTerms("  "))
}

func TestQueryLog_RecordAndSnapshot(t *testing.T) {
	// Given: a query log wired to metrics
	reg := prometheus.NewRegistry()
	m := New(reg)
	log := NewQueryLog(m, QueryLogConfig{})

	// When: recording a hit, a repeat and a zero-result query
	log.Record(QueryEvent{Tool: "search_notes", Query: "project review", ResultCount: 3})
	log.Record(QueryEvent{Tool: "search_notes", Query: "Project Review ", ResultCount: 2})
	log.Record(QueryEvent{Tool: "find_related", Query: "nothing matches", ResultCount: 0})
	log.Record(QueryEvent{Tool: "search_notes", Query: "broken", Err: errors.New("embed failed")})

	// Then: the snapshot aggregates them
	snap := log.Snapshot()
	assert.Equal(t, int64(4), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, int64(3), snap.ByTool["search_notes"])
	assert.Equal(t, []string{"nothing matches"}, snap.ZeroResultQueries)
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "project", Count: 2}, snap.TopTerms[0])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("find_related", "zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("search_notes", "error")))
}

func TestQueryLog_NilSafe(t *testing.T) {
	var log *QueryLog
	log.Record(QueryEvent{Tool: "x"})
	assert.Zero(t, log.Snapshot().TotalQueries)
}
