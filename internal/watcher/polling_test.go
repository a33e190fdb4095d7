package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notemesh/internal/vault"
)

func testRules(root string) *vault.Rules {
	return vault.NewRules(root, nil, []string{vault.HiddenPattern})
}

// nextEvent waits for an event on src.
func nextEvent(t *testing.T, src Source) FileEvent {
	t.Helper()
	select {
	case ev, ok := <-src.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case err := <-src.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return FileEvent{}
}

// assertNoEvent checks that src stays quiet for d.
func assertNoEvent(t *testing.T, src Source, d time.Duration) {
	t.Helper()
	select {
	case ev := <-src.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(d):
	}
}

func startPolling(t *testing.T, root string) *PollingWatcher {
	t.Helper()
	w := NewPollingWatcher(testRules(root), 30*time.Millisecond, 100)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestPollingWatcher_DetectsCreateModifyDelete(t *testing.T) {
	// Given: a vault with one note
	root := t.TempDir()
	existing := filepath.Join(root, "existing.md")
	require.NoError(t, os.WriteFile(existing, []byte("one"), 0o644))
	w := startPolling(t, root)

	// When: a note is created
	created := filepath.Join(root, "new.md")
	require.NoError(t, os.WriteFile(created, []byte("x"), 0o644))

	// Then
	ev := nextEvent(t, w)
	assert.Equal(t, OpCreate, ev.Operation)
	assert.Equal(t, created, ev.Path)

	// When: the existing note grows
	require.NoError(t, os.WriteFile(existing, []byte("one two"), 0o644))
	ev = nextEvent(t, w)
	assert.Equal(t, OpModify, ev.Operation)
	assert.Equal(t, existing, ev.Path)

	// When: it is removed
	require.NoError(t, os.Remove(existing))
	ev = nextEvent(t, w)
	assert.Equal(t, OpDelete, ev.Operation)
	assert.Equal(t, existing, ev.Path)
}

func TestPollingWatcher_IgnoresIneligibleFiles(t *testing.T) {
	root := t.TempDir()
	w := startPolling(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("png"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".notemesh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".notemesh", "x.md"), []byte("x"), 0o644))

	assertNoEvent(t, w, 200*time.Millisecond)
}

func TestPollingWatcher_StopClosesChannels(t *testing.T) {
	w := startPolling(t, t.TempDir())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestPollingWatcher_MissingRootFails(t *testing.T) {
	w := NewPollingWatcher(testRules(filepath.Join(t.TempDir(), "missing")), time.Second, 10)
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
}
