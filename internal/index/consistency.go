package index

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphan is a store entry the ledger does not track.
	InconsistencyOrphan InconsistencyType = iota
	// InconsistencyMissing is a ledger entry absent from a store.
	InconsistencyMissing
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphan:
		return "orphan"
	case InconsistencyMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON output.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inconsistency is one note the stores disagree about.
type Inconsistency struct {
	Type  InconsistencyType `json:"type"`
	Store string            `json:"store"`
	Path  string            `json:"path"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of ledger entries verified.
	Checked         int             `json:"checked"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Consistent reports whether every store holds exactly the ledger's notes.
func (r *CheckResult) Consistent() bool { return len(r.Inconsistencies) == 0 }

// CheckConsistency compares each store's note paths against the "ledger"
// entry of byStore, the source of truth. Results are sorted by store, then
// path.
func CheckConsistency(byStore map[string][]string) *CheckResult {
	start := time.Now()

	ledger := make(map[string]bool, len(byStore["ledger"]))
	for _, p := range byStore["ledger"] {
		ledger[p] = true
	}

	var issues []Inconsistency
	for store, paths := range byStore {
		if store == "ledger" {
			continue
		}
		present := make(map[string]bool, len(paths))
		for _, p := range paths {
			present[p] = true
			if !ledger[p] {
				issues = append(issues, Inconsistency{Type: InconsistencyOrphan, Store: store, Path: p})
			}
		}
		for p := range ledger {
			if !present[p] {
				issues = append(issues, Inconsistency{Type: InconsistencyMissing, Store: store, Path: p})
			}
		}
	}

	slices.SortFunc(issues, func(a, b Inconsistency) int {
		if a.Store != b.Store {
			if a.Store < b.Store {
				return -1
			}
			return 1
		}
		if a.Path != b.Path {
			if a.Path < b.Path {
				return -1
			}
			return 1
		}
		return int(a.Type) - int(b.Type)
	})

	return &CheckResult{
		Checked:         len(ledger),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}
}

// Repair fixes the issues reported by Check. Orphans are deleted from the
// store holding them. A note missing from any store is dropped from the
// ledger so the next UpdateIndex re-indexes it as new.
func (ix *Indexer) Repair(ctx context.Context) (*CheckResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.lock.Acquire(ctx, ix.lockTimeout); err != nil {
		return nil, err
	}
	defer func() {
		if err := ix.lock.Release(); err != nil {
			slog.Warn("failed to release index lock", slog.String("error", err.Error()))
		}
	}()

	res := ix.Check()
	if res.Consistent() {
		return res, nil
	}

	var graphOrphans []string
	forget := map[string]bool{}
	for _, issue := range res.Inconsistencies {
		switch {
		case issue.Type == InconsistencyMissing:
			forget[issue.Path] = true
		case issue.Store == "vector":
			if err := ix.vector.DeleteDocument(ctx, issue.Path); err != nil {
				return nil, storeWriteError("vector", "delete", err).WithDetail("path", issue.Path)
			}
		case issue.Store == "graph":
			graphOrphans = append(graphOrphans, issue.Path)
		case issue.Store == "stats":
			ix.stats.Delete(issue.Path)
		}
	}
	ix.graph.DeleteMany(graphOrphans)
	for p := range forget {
		ix.ledger.Remove(p)
	}
	ix.syncLinks()

	if err := ix.vector.Save(); err != nil {
		return nil, storeWriteError("vector", "save", err)
	}
	if err := ix.ledger.Save(ix.now()); err != nil {
		return nil, storeWriteError("ledger", "save", err)
	}
	if err := ix.graph.Save(); err != nil {
		return nil, storeWriteError("link graph", "save", err)
	}
	if err := ix.stats.Save(); err != nil {
		return nil, storeWriteError("stats", "save", err)
	}

	slog.Info("index repaired",
		slog.Int("issues", len(res.Inconsistencies)),
		slog.Int("requeued", len(forget)))
	return res, nil
}
