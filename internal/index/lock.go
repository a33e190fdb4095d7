package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
)

// LockFileName is the cross-process transaction lock inside the data directory.
const LockFileName = ".index.lock"

const lockRetryDelay = 50 * time.Millisecond

// ProcessLock serialises index transactions across processes sharing a
// data directory, e.g. `notemesh watch` and a manual `notemesh index`.
type ProcessLock struct {
	fl *flock.Flock
}

// NewProcessLock creates the lock for dataDir.
func NewProcessLock(dataDir string) *ProcessLock {
	return &ProcessLock{fl: flock.New(filepath.Join(dataDir, LockFileName))}
}

// Path returns the lock file path.
func (l *ProcessLock) Path() string { return l.fl.Path() }

// Acquire takes the lock, retrying until timeout. A timeout yields
// ERR_508_INDEX_BUSY.
func (l *ProcessLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := l.fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || !locked {
		e := nerrors.New(nerrors.ErrCodeIndexBusy, "another index transaction holds the lock", err).
			WithDetail("lock", l.fl.Path()).
			WithSuggestion("wait for the running index or watch process to finish")
		return e
	}
	return nil
}

// Release drops the lock.
func (l *ProcessLock) Release() error {
	return l.fl.Unlock()
}
