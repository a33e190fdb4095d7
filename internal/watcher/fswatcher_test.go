package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notemesh/internal/index"
)

func startFSWatcher(t *testing.T, root string, opts Options) *FSWatcher {
	t.Helper()
	w, err := NewFSWatcher(testRules(root), opts)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

// waitFor reads events until one matches want.
func waitFor(t *testing.T, src Source, want FileEvent) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-src.Events():
			require.True(t, ok, "event channel closed")
			if ev.Path == want.Path && ev.Operation == want.Operation {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s %s", want.Operation, want.Path)
		}
	}
}

func TestFSWatcher_ReportsNoteCreation(t *testing.T) {
	root := t.TempDir()
	w := startFSWatcher(t, root, Options{})
	assert.Equal(t, "fsnotify", w.Mode())

	path := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	waitFor(t, w, FileEvent{Path: path, Operation: OpCreate})
}

func TestFSWatcher_RenameIsDeleteThenCreate(t *testing.T) {
	// Given: an existing note
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.md")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	w := startFSWatcher(t, root, Options{})

	// When
	newPath := filepath.Join(root, "new.md")
	require.NoError(t, os.Rename(oldPath, newPath))

	// Then
	var sawDelete, sawCreate bool
	deadline := time.After(3 * time.Second)
	for !sawDelete || !sawCreate {
		select {
		case ev := <-w.Events():
			if ev.Path == oldPath && ev.Operation == OpDelete {
				sawDelete = true
			}
			if ev.Path == newPath && ev.Operation == OpCreate {
				sawCreate = true
			}
		case <-deadline:
			t.Fatalf("rename not decomposed: delete=%v create=%v", sawDelete, sawCreate)
		}
	}
}

func TestFSWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startFSWatcher(t, root, Options{})

	dir := filepath.Join(root, "projects")
	require.NoError(t, os.Mkdir(dir, 0o755))
	waitFor(t, w, FileEvent{Path: dir, Operation: OpCreate})

	path := filepath.Join(dir, "plan.md")
	require.NoError(t, os.WriteFile(path, []byte("plan"), 0o644))
	waitFor(t, w, FileEvent{Path: path, Operation: OpCreate})
}

func TestFSWatcher_IgnoresHiddenAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".notemesh"), 0o755))
	w := startFSWatcher(t, root, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(root, ".notemesh", "index_metadata.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("t"), 0o644))

	assertNoEvent(t, w, 300*time.Millisecond)
}

func TestFSWatcher_ForcedPolling(t *testing.T) {
	root := t.TempDir()
	w := startFSWatcher(t, root, Options{ForcePolling: true, PollInterval: 30 * time.Millisecond})
	assert.Equal(t, "polling", w.Mode())

	path := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	waitFor(t, w, FileEvent{Path: path, Operation: OpCreate})
}

// resultIndexer records runs and reports one new note per run.
type resultIndexer struct{ runs atomic.Int32 }

func (r *resultIndexer) UpdateIndex(context.Context) (*index.Result, error) {
	r.runs.Add(1)
	return &index.Result{Changes: index.ChangeSet{New: []string{"x"}}}, nil
}

func TestScheduler_WithFSWatcherRunsOncePerBurst(t *testing.T) {
	// Given: a scheduler over a real watcher
	root := t.TempDir()
	w, err := NewFSWatcher(testRules(root), Options{})
	require.NoError(t, err)
	ix := &resultIndexer{}
	s := NewScheduler(ix, w, Options{Debounce: 150 * time.Millisecond, StopTimeout: time.Second}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	// When: a burst of writes to several notes
	for i := range 5 {
		name := filepath.Join(root, string(rune('a'+i))+".md")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(name, []byte("xy"), 0o644))
	}

	// Then: one run for the whole burst
	require.Eventually(t, func() bool { return ix.runs.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.EqualValues(t, 1, ix.runs.Load())
	assert.GreaterOrEqual(t, s.Stats().Events, int64(5))
}
