package telemetry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryEvent is one note query served to a client.
type QueryEvent struct {
	Tool        string
	Query       string
	ResultCount int
	Latency     time.Duration
	Err         error
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps words of three or more runes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QuerySnapshot summarises the query log.
type QuerySnapshot struct {
	TotalQueries      int64            `json:"total_queries"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	ExactRepeatCount  int64            `json:"exact_repeat_count"`
	ByTool            map[string]int64 `json:"by_tool"`
	TopTerms          []TermCount      `json:"top_terms"`
	ZeroResultQueries []string         `json:"zero_result_queries"`
	Since             time.Time        `json:"since"`
}

// QueryLogConfig sizes the query log.
type QueryLogConfig struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
}

// DefaultQueryLogConfig returns the default sizes.
func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   50,
		RecentQueriesCapacity: 500,
	}
}

// QueryLog keeps in-memory query aggregates and forwards each event to
// Prometheus. Nothing leaves the process.
type QueryLog struct {
	mu sync.Mutex

	metrics       *Metrics
	byTool        map[string]int64
	topTerms      *lru.Cache[string, int64]
	zeroResults   *CircularBuffer[string]
	recentQueries *lru.Cache[string, struct{}]

	total       int64
	zeroResult  int64
	exactRepeat int64
	since       time.Time
}

// NewQueryLog creates a query log. metrics may be nil.
func NewQueryLog(metrics *Metrics, cfg QueryLogConfig) *QueryLog {
	def := DefaultQueryLogConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	return &QueryLog{
		metrics:       metrics,
		byTool:        make(map[string]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		recentQueries: recent,
		since:         time.Now(),
	}
}

// Record adds event to the log. A nil log is a no-op.
func (l *QueryLog) Record(event QueryEvent) {
	if l == nil {
		return
	}
	l.metrics.ObserveQuery(event.Tool, event.ResultCount, event.Latency, event.Err)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.byTool[event.Tool]++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := l.topTerms.Get(term)
		l.topTerms.Add(term, count+1)
	}

	if event.Err == nil && event.ResultCount == 0 {
		l.zeroResult++
		l.zeroResults.Add(event.Query)
	}

	key := hashQuery(event.Tool + "\x00" + event.Query)
	if _, seen := l.recentQueries.Get(key); seen {
		l.exactRepeat++
	}
	l.recentQueries.Add(key, struct{}{})
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the current aggregates. Top terms are sorted by count,
// then term, and capped at ten.
func (l *QueryLog) Snapshot() QuerySnapshot {
	if l == nil {
		return QuerySnapshot{ByTool: map[string]int64{}, TopTerms: []TermCount{}, ZeroResultQueries: []string{}}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	terms := make([]TermCount, 0, l.topTerms.Len())
	for _, k := range l.topTerms.Keys() {
		if v, ok := l.topTerms.Peek(k); ok {
			terms = append(terms, TermCount{Term: k, Count: v})
		}
	}
	slices.SortFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})
	if len(terms) > 10 {
		terms = terms[:10]
	}

	byTool := make(map[string]int64, len(l.byTool))
	for k, v := range l.byTool {
		byTool[k] = v
	}

	return QuerySnapshot{
		TotalQueries:      l.total,
		ZeroResultCount:   l.zeroResult,
		ExactRepeatCount:  l.exactRepeat,
		ByTool:            byTool,
		TopTerms:          terms,
		ZeroResultQueries: l.zeroResults.Items(),
		Since:             l.since,
	}
}
