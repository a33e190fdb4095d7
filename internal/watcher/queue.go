package watcher

import (
	"maps"
	"slices"
	"sync"
)

// Change is one coalesced pending change.
type Change struct {
	Path      string
	Operation Operation
}

// Queue holds pending changes keyed by path. It is shared by the event
// pump and the debounce worker.
type Queue struct {
	mu      sync.Mutex
	pending map[string]Operation
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[string]Operation)}
}

// Add records ev. Creates and modifies collapse to a single modify; a
// delete replaces whatever was pending for the path, and a later create or
// modify turns it back into a modify.
func (q *Queue) Add(ev FileEvent) {
	op := ev.Operation
	if op == OpCreate {
		op = OpModify
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[ev.Path] = op
}

// Drain empties the queue and returns its changes sorted by path.
func (q *Queue) Drain() []Change {
	q.mu.Lock()
	defer q.mu.Unlock()

	changes := make([]Change, 0, len(q.pending))
	for _, p := range slices.Sorted(maps.Keys(q.pending)) {
		changes = append(changes, Change{Path: p, Operation: q.pending[p]})
	}
	clear(q.pending)
	return changes
}

// Len returns the number of pending paths.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
