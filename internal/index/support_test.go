package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/vault"
)

func writeNote(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChangeDetector_Scan(t *testing.T) {
	// Given: a ledger that knows a (unchanged), b (stale) and gone
	root := t.TempDir()
	a := writeNote(t, root, "a.md", "a")
	b := writeNote(t, root, "b.md", "b")
	c := writeNote(t, root, "sub/c.md", "c")
	writeNote(t, root, ".hidden/x.md", "x")
	gone := filepath.Join(root, "gone.md")

	d := NewChangeDetector(vault.NewRules(root, nil, []string{vault.HiddenPattern}))
	first, err := d.Scan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, first.Current, 3)

	known := map[string]string{
		a:    first.Current[a],
		b:    "stale",
		gone: "whatever",
	}

	// When
	res, err := d.Scan(context.Background(), known)
	require.NoError(t, err)

	// Then
	assert.Equal(t, []string{c}, res.Changes.New)
	assert.Equal(t, []string{b}, res.Changes.Modified)
	assert.Equal(t, []string{gone}, res.Changes.Deleted)
	assert.Equal(t, 3, res.Changes.Total())
	assert.False(t, res.Changes.Empty())
}

func TestFingerprint_TracksMtimeAndSize(t *testing.T) {
	root := t.TempDir()
	p := writeNote(t, root, "a.md", "abc")
	info1, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(info1), Fingerprint(info1))
	assert.Len(t, Fingerprint(info1), 64)

	later := info1.ModTime().Add(time.Minute)
	require.NoError(t, os.Chtimes(p, later, later))
	info2, err := os.Stat(p)
	require.NoError(t, err)
	assert.NotEqual(t, Fingerprint(info1), Fingerprint(info2))
}

func TestLedger_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), LedgerFileName)
	l := OpenLedger(path)
	assert.Zero(t, l.Len())

	l.Set("/v/b.md", "fp-b")
	l.Set("/v/a.md", "fp-a")
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.Save(now))

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, LedgerVersion, raw["version"])
	assert.Contains(t, raw, "indexed_files")

	again := OpenLedger(path)
	assert.Equal(t, []string{"/v/a.md", "/v/b.md"}, again.Paths())
	assert.True(t, again.LastUpdate().Equal(now))
	assert.True(t, again.Has("/v/a.md"))

	snap := again.Snapshot()
	snap["/v/c.md"] = "x"
	assert.False(t, again.Has("/v/c.md"))

	again.Remove("/v/a.md")
	assert.Equal(t, []string{"/v/b.md"}, again.Paths())
}

func TestLedger_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), LedgerFileName)
	require.NoError(t, os.WriteFile(path, []byte("{{"), 0o644))

	l := OpenLedger(path)

	assert.Zero(t, l.Len())
	assert.True(t, l.LastUpdate().IsZero())
}

func newBackupFixture(t *testing.T) (string, []string, *BackupManager) {
	t.Helper()
	dataDir := t.TempDir()
	files := []string{
		filepath.Join(dataDir, LedgerFileName),
		filepath.Join(dataDir, GraphFileName),
		filepath.Join(dataDir, StatsFileName),
	}
	return dataDir, files, NewBackupManager(dataDir, files)
}

func TestBackupManager_CreateAndRestore(t *testing.T) {
	// Given: two of the three files exist
	_, files, m := newBackupFixture(t)
	require.NoError(t, os.WriteFile(files[0], []byte("ledger-v1"), 0o644))
	require.NoError(t, os.WriteFile(files[1], []byte("graph-v1"), 0o644))

	dir, err := m.Create()
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.FileExists(t, filepath.Join(dir, LedgerFileName))
	assert.NoFileExists(t, filepath.Join(dir, StatsFileName))

	// When: everything is overwritten, including the missing file
	for _, f := range files {
		require.NoError(t, os.WriteFile(f, []byte("v2"), 0o644))
	}
	require.NoError(t, m.Restore(dir))

	// Then: the pre-snapshot state is back
	got, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "ledger-v1", string(got))
	got, err = os.ReadFile(files[1])
	require.NoError(t, err)
	assert.Equal(t, "graph-v1", string(got))
	assert.NoFileExists(t, files[2])
}

func TestBackupManager_SameSecondGetsSuffix(t *testing.T) {
	_, _, m := newBackupFixture(t)
	fixed := time.Date(2025, 1, 2, 15, 4, 5, 0, time.Local)
	m.now = func() time.Time { return fixed }

	var names []string
	for range 3 {
		dir, err := m.Create()
		require.NoError(t, err)
		names = append(names, filepath.Base(dir))
	}
	assert.Equal(t, []string{"20250102_150405", "20250102_150405_1", "20250102_150405_2"}, names)

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "20250102_150405_2", list[0].Name)
	assert.Equal(t, "20250102_150405", list[2].Name)
}

func TestBackupManager_PruneKeepsNewest(t *testing.T) {
	_, _, m := newBackupFixture(t)
	base := time.Date(2025, 1, 2, 15, 0, 0, 0, time.Local)
	for i := range 7 {
		m.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		_, err := m.Create()
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(m.Root(), "stray.txt"), nil, 0o644))

	removed, err := m.Prune(5)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250102_150001", "20250102_150000"}, removed)

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 5)
	assert.Equal(t, "20250102_150006", list[0].Name)
	assert.FileExists(t, filepath.Join(m.Root(), "stray.txt"))
}

func TestBackupManager_ListWithoutRoot(t *testing.T) {
	_, _, m := newBackupFixture(t)
	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCompareBackupNames(t *testing.T) {
	assert.Negative(t, compareBackupNames("20250102_150405", "20250102_150405_1"))
	assert.Negative(t, compareBackupNames("20250102_150405_2", "20250102_150405_10"))
	assert.Positive(t, compareBackupNames("20250102_150406", "20250102_150405_10"))
	assert.Zero(t, compareBackupNames("20250102_150405", "20250102_150405"))
}

func TestProcessLock_SecondHolderIsBusy(t *testing.T) {
	dataDir := t.TempDir()
	first := NewProcessLock(dataDir)
	require.NoError(t, first.Acquire(context.Background(), time.Second))

	second := NewProcessLock(dataDir)
	err := second.Acquire(context.Background(), 100*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, nerrors.ErrCodeIndexBusy, nerrors.GetCode(err))

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire(context.Background(), time.Second))
	require.NoError(t, second.Release())
	assert.Equal(t, filepath.Join(dataDir, LockFileName), second.Path())
}

func TestProcessLock_CancelledContext(t *testing.T) {
	dataDir := t.TempDir()
	first := NewProcessLock(dataDir)
	require.NoError(t, first.Acquire(context.Background(), time.Second))
	defer func() { _ = first.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewProcessLock(dataDir).Acquire(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckConsistency(t *testing.T) {
	res := CheckConsistency(map[string][]string{
		"ledger": {"/a", "/b"},
		"vector": {"/a", "/b", "/x"},
		"graph":  {"/a"},
		"stats":  {"/a", "/b"},
	})

	assert.Equal(t, 2, res.Checked)
	assert.False(t, res.Consistent())
	assert.Equal(t, []Inconsistency{
		{Type: InconsistencyMissing, Store: "graph", Path: "/b"},
		{Type: InconsistencyOrphan, Store: "vector", Path: "/x"},
	}, res.Inconsistencies)

	data, err := json.Marshal(res.Inconsistencies[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"missing","store":"graph","path":"/b"}`, string(data))
}
