package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/fsutil"
)

// LedgerVersion is the schema marker written to the ledger file.
const LedgerVersion = 1

type ledgerFile struct {
	Version      int               `json:"version"`
	LastUpdate   time.Time         `json:"last_update"`
	IndexedFiles map[string]string `json:"indexed_files"`
}

// Ledger records the fingerprint of every indexed note.
type Ledger struct {
	path string

	mu         sync.RWMutex
	files      map[string]string
	lastUpdate time.Time
}

// OpenLedger loads the ledger at path. A missing or corrupt file yields an
// empty ledger, so every note is treated as new.
func OpenLedger(path string) *Ledger {
	l := &Ledger{path: path}
	l.Reload()
	return l
}

// Path returns the persisted file location.
func (l *Ledger) Path() string { return l.path }

// Reload replaces the in-memory ledger with the persisted file.
func (l *Ledger) Reload() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.files = map[string]string{}
	l.lastUpdate = time.Time{}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read ledger, starting empty",
				slog.String("path", l.path), slog.String("error", err.Error()))
		}
		return
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("ledger is corrupt, starting empty",
			nerrors.LogAttrs(nerrors.New(nerrors.ErrCodeCorruptIndex, "ledger is corrupt", err).
				WithDetail("path", l.path))...)
		return
	}
	if f.IndexedFiles != nil {
		l.files = f.IndexedFiles
	}
	l.lastUpdate = f.LastUpdate
}

// Snapshot returns a copy of the path to fingerprint map.
func (l *Ledger) Snapshot() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.files)
}

// Set records the fingerprint of path.
func (l *Ledger) Set(path, fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[path] = fingerprint
}

// Remove forgets path.
func (l *Ledger) Remove(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.files, path)
}

// Has reports whether path is indexed.
func (l *Ledger) Has(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.files[path]
	return ok
}

// Paths returns the sorted indexed paths.
func (l *Ledger) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Sorted(maps.Keys(l.files))
}

// Len returns the number of indexed paths.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}

// LastUpdate returns the time of the last successful save.
func (l *Ledger) LastUpdate() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdate
}

// Save writes the ledger atomically, stamping it with now.
func (l *Ledger) Save(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := ledgerFile{Version: LedgerVersion, LastUpdate: now, IndexedFiles: l.files}
	if err := fsutil.WriteJSON(l.path, f); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	l.lastUpdate = now
	return nil
}
