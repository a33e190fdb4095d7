package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notemesh/internal/document"
	"github.com/Aman-CERP/notemesh/internal/embed"
)

func newTestNoteStore(t *testing.T, dir string) *NoteStore {
	t.Helper()
	s := NewNoteStore(embed.NewStaticEmbedder(), NoteStoreOptions{Dir: dir})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func note(path, folder, body string) *document.Document {
	title := strings.TrimSuffix(filepath.Base(path), ".md")
	return &document.Document{Path: path, Title: title, Folder: folder, Body: body, Tags: []string{"t"}, Links: []string{"X"}}
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{"empty", "", 10, []string{}},
		{"blank lines only", "\n  \n", 10, []string{}},
		{"fits in one", "ab\ncd", 10, []string{"ab\ncd"}},
		{"splits on line boundary", "aaaa\nbbbb\ncccc", 9, []string{"aaaa\nbbbb", "cccc"}},
		{"oversize line stands alone", "a\n" + strings.Repeat("x", 12) + "\nb", 5, []string{"a", strings.Repeat("x", 12), "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkText(tt.text, tt.size)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNoteStore_AddChunksWithMetadata(t *testing.T) {
	// Given: a note longer than one chunk
	s := NewNoteStore(embed.NewStaticEmbedder(), NoteStoreOptions{Dir: t.TempDir(), ChunkSize: 20})
	body := "first line here\nsecond line here\nthird"

	// When: adding it
	require.NoError(t, s.AddDocument(context.Background(), note("/v/Projects/A.md", "Projects", body)))

	// Then: chunks carry ids, order and note metadata
	chunks := s.Chunks("/v/Projects/A.md")
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, ChunkID("/v/Projects/A.md", i), c.ID)
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "A", c.Title)
		assert.Equal(t, "Projects", c.Folder)
		assert.Equal(t, []string{"t"}, c.Tags)
		assert.Equal(t, []string{"X"}, c.Links)
	}
	assert.Equal(t, "/v/Projects/A.md#0", chunks[0].ID)
	assert.Equal(t, []string{"/v/Projects/A.md"}, s.Paths())
}

func TestNoteStore_EmptyBodyStillIndexed(t *testing.T) {
	s := newTestNoteStore(t, t.TempDir())
	require.NoError(t, s.AddDocument(context.Background(), note("/v/Empty.md", "root", "")))

	assert.Equal(t, []string{"/v/Empty.md"}, s.Paths())
	chunks := s.Chunks("/v/Empty.md")
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Text, "the title must not stand in for the body")
	assert.Equal(t, "Empty", chunks[0].Title)
}

func TestNoteStore_UpdateReplacesChunks(t *testing.T) {
	// Given: a two-chunk note
	s := NewNoteStore(embed.NewStaticEmbedder(), NoteStoreOptions{Dir: t.TempDir(), ChunkSize: 10})
	ctx := context.Background()
	require.NoError(t, s.AddDocument(ctx, note("/v/A.md", "root", "aaaaaaaa\nbbbbbbbb")))
	require.Equal(t, 2, s.ChunkCount())

	// When: updating it to a single chunk
	require.NoError(t, s.UpdateDocument(ctx, note("/v/A.md", "root", "short")))

	// Then: stale chunks are gone
	assert.Equal(t, 1, s.ChunkCount())
	assert.Equal(t, "short", s.Chunks("/v/A.md")[0].Text)
}

func TestNoteStore_DeleteDocument(t *testing.T) {
	s := newTestNoteStore(t, t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.AddDocument(ctx, note("/v/A.md", "root", "alpha")))
	require.NoError(t, s.AddDocument(ctx, note("/v/B.md", "root", "beta")))

	require.NoError(t, s.DeleteDocument(ctx, "/v/A.md"))
	require.NoError(t, s.DeleteDocument(ctx, "/v/missing.md"))

	assert.Equal(t, []string{"/v/B.md"}, s.Paths())
	assert.Empty(t, s.Chunks("/v/A.md"))

	hits, err := s.Search(ctx, "alpha", 5, "")
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "/v/A.md", h.Chunk.Path)
	}
}

func TestNoteStore_SearchRanksAndFiltersByFolder(t *testing.T) {
	// Given: notes in two folders
	s := newTestNoteStore(t, t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.AddDocument(ctx, note("/v/Garden/Tomatoes.md", "Garden", "planting tomatoes in raised beds")))
	require.NoError(t, s.AddDocument(ctx, note("/v/Work/Taxes.md", "Work", "quarterly tax filing deadline")))
	require.NoError(t, s.AddDocument(ctx, note("/v/Work/Beds.md", "Work", "raised beds for tomatoes at the office")))

	// When: searching without a filter
	hits, err := s.Search(ctx, "planting tomatoes raised beds", 3, "")
	require.NoError(t, err)

	// Then: the closest note ranks first
	require.NotEmpty(t, hits)
	assert.Equal(t, "/v/Garden/Tomatoes.md", hits[0].Chunk.Path)

	// When: restricting to Work
	hits, err = s.Search(ctx, "planting tomatoes raised beds", 3, "Work")
	require.NoError(t, err)

	// Then: only Work notes come back
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "Work", h.Chunk.Folder)
	}
	assert.Equal(t, "/v/Work/Beds.md", hits[0].Chunk.Path)
}

func TestNoteStore_SearchNotesCollapsesChunks(t *testing.T) {
	s := NewNoteStore(embed.NewStaticEmbedder(), NoteStoreOptions{Dir: t.TempDir(), ChunkSize: 12})
	ctx := context.Background()
	require.NoError(t, s.AddDocument(ctx, note("/v/A.md", "root", "apple pie\napple tart\napple cake")))
	require.NoError(t, s.AddDocument(ctx, note("/v/B.md", "root", "banana bread")))

	hits, err := s.SearchNotes(ctx, "apple", 5, "")
	require.NoError(t, err)

	paths := make([]string, 0, len(hits))
	for _, h := range hits {
		paths = append(paths, h.Chunk.Path)
	}
	assert.ElementsMatch(t, []string{"/v/A.md", "/v/B.md"}, paths)
}

func TestNoteStore_SaveAndLoad(t *testing.T) {
	// Given: a saved store
	dir := t.TempDir()
	ctx := context.Background()
	s := newTestNoteStore(t, dir)
	require.NoError(t, s.AddDocument(ctx, note("/v/A.md", "root", "alpha note")))
	require.NoError(t, s.AddDocument(ctx, note("/v/B.md", "root", "beta note")))
	require.NoError(t, s.Save())

	assert.FileExists(t, filepath.Join(dir, IndexFileName))
	assert.FileExists(t, filepath.Join(dir, IndexFileName+".meta"))
	assert.FileExists(t, filepath.Join(dir, ChunksFileName))

	// When: loading into a fresh store
	loaded := newTestNoteStore(t, dir)
	require.NoError(t, loaded.Load())

	// Then: paths, chunks and search survive
	assert.Equal(t, s.Paths(), loaded.Paths())
	assert.Equal(t, s.Chunks("/v/A.md"), loaded.Chunks("/v/A.md"))
	hits, err := loaded.Search(ctx, "alpha note", 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/v/A.md", hits[0].Chunk.Path)
}

func TestNoteStore_LoadMissingOrCorruptStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := newTestNoteStore(t, dir)
	require.NoError(t, s.Load())
	assert.Zero(t, s.Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ChunksFileName), []byte("garbage"), 0o644))
	require.NoError(t, s.Load())
	assert.Zero(t, s.Len())
}
