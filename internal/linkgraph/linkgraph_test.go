package linkgraph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notemesh/internal/document"
)

func doc(path, title, body string) *document.Document {
	return &document.Document{Path: path, Title: title, Folder: "root", Body: body}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return Open(filepath.Join(t.TempDir(), "network_metadata.json"))
}

func TestUpdate_BacklinksFollowForwardLinks(t *testing.T) {
	// Given: A links to B and C (aliased), B links to C twice
	s := newStore(t)
	s.UpdateMany([]*document.Document{
		doc("/v/A.md", "A", "see [[B]] and [[C|the C]]"),
		doc("/v/B.md", "B", "[[C]] then [[C]] again"),
		doc("/v/C.md", "C", "leaf"),
	})

	// Then: backlinks are derived and de-duplicated
	assert.Equal(t, []string{"A"}, s.Backlinks("B"))
	assert.Equal(t, []string{"A", "B"}, s.Backlinks("C"))
	assert.Empty(t, s.Backlinks("A"))
	assert.Equal(t, []string{"B", "C"}, s.ForwardLinks("A"))

	e, ok := s.Get("/v/A.md")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"the C": "C"}, e.Aliases)
	assert.NotContains(t, e.ForwardLinks, "the C")
}

func TestBacklinkSymmetry(t *testing.T) {
	s := newStore(t)
	s.UpdateMany([]*document.Document{
		doc("/v/A.md", "A", "[[B]] [[C]] [[Missing]]"),
		doc("/v/B.md", "B", "[[A]]"),
		doc("/v/C.md", "C", "[[B]] [[C]]"),
		doc("/v/D.md", "D", "alone"),
	})

	// Y in backlinks(X) iff X in forwardLinks(Y), for resolvable X.
	titles := []string{"A", "B", "C", "D"}
	for _, x := range titles {
		for _, y := range titles {
			inBack := contains(s.Backlinks(x), y)
			inFwd := contains(s.ForwardLinks(y), x)
			assert.Equal(t, inFwd, inBack, "x=%s y=%s", x, y)
		}
	}
}

func TestDelete_RemovesBacklinksFromSurvivors(t *testing.T) {
	// Given: A -> B
	s := newStore(t)
	s.UpdateMany([]*document.Document{
		doc("/v/A.md", "A", "[[B]]"),
		doc("/v/B.md", "B", ""),
	})
	require.Equal(t, []string{"A"}, s.Backlinks("B"))

	// When: A is deleted
	s.Delete("/v/A.md")

	// Then: B no longer lists A and becomes an orphan
	assert.Empty(t, s.Backlinks("B"))
	assert.Equal(t, []string{"B"}, s.Orphans())
	_, ok := s.Get("/v/A.md")
	assert.False(t, ok)
}

func TestTags_InlineAndFrontMatterMerged(t *testing.T) {
	s := newStore(t)
	d := doc("/v/A.md", "A", "body #alpha #한국어-태그 #alpha [[X#Sec]]")
	d.FrontMatter = map[string]any{"tags": []any{"beta", "alpha"}}
	s.Update(d)
	s.Update(&document.Document{Path: "/v/B.md", Title: "B", Body: "#Alpha", FrontMatter: map[string]any{"tags": "beta"}})

	e, _ := s.Get("/v/A.md")
	assert.Equal(t, []string{"alpha", "beta", "한국어-태그"}, e.Tags)

	assert.Equal(t, []string{"A"}, s.NotesByTag("alpha"))
	assert.Equal(t, []string{"B"}, s.NotesByTag("Alpha"))
	assert.Equal(t, []string{"A", "B"}, s.NotesByTag("beta"))

	tags := s.AllTags()
	require.NotEmpty(t, tags)
	assert.Equal(t, TagCount{Tag: "beta", Count: 2}, tags[0])
}

func TestStats_AndOrphans(t *testing.T) {
	s := newStore(t)
	s.UpdateMany([]*document.Document{
		doc("/v/A.md", "A", "[[B]]"),
		doc("/v/B.md", "B", ""),
		doc("/v/C.md", "C", ""),
		doc("/v/D.md", "D", "[[Nowhere]]"),
	})

	assert.Equal(t, NetworkStats{TotalFiles: 4, TotalBacklinks: 1, OrphanedNotes: 1}, s.Stats())
	assert.Equal(t, []string{"C"}, s.Orphans())
}

func TestDuplicateTitles_SmallestPathWins(t *testing.T) {
	s := newStore(t)
	s.UpdateMany([]*document.Document{
		doc("/v/b/Note.md", "Note", ""),
		doc("/v/a/Note.md", "Note", ""),
		doc("/v/Src.md", "Src", "[[Note]]"),
	})

	p, ok := s.ResolveTitle("Note")
	require.True(t, ok)
	assert.Equal(t, "/v/a/Note.md", p)

	a, _ := s.Get("/v/a/Note.md")
	b, _ := s.Get("/v/b/Note.md")
	assert.Equal(t, []string{"Src"}, a.Backlinks)
	assert.Empty(t, b.Backlinks)
}

func TestSaveAndReload_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network_metadata.json")
	s := Open(path)
	s.UpdateMany([]*document.Document{
		doc("/v/A.md", "A", "[[B]] #t"),
		doc("/v/B.md", "B", ""),
	})
	require.NoError(t, s.Save())

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, FileVersion, raw["version"])
	assert.Contains(t, raw, "last_update")
	assert.Contains(t, raw, "stats")

	reopened := Open(path)
	assert.Equal(t, []string{"A"}, reopened.Backlinks("B"))
	assert.Equal(t, []string{"A"}, reopened.NotesByTag("t"))
	assert.Equal(t, 2, reopened.Len())
}

func TestOpen_CorruptFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := Open(path)

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, NetworkStats{}, s.Stats())
	s.Update(doc("/v/A.md", "A", ""))
	assert.Equal(t, 1, s.Len())
}

func TestReload_DiscardsUnsavedChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network_metadata.json")
	s := Open(path)
	s.Update(doc("/v/A.md", "A", ""))
	require.NoError(t, s.Save())

	s.Update(doc("/v/B.md", "B", "[[A]]"))
	s.Reload()

	assert.Equal(t, []string{"/v/A.md"}, s.Paths())
	assert.Empty(t, s.Backlinks("A"))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
