package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Aman-CERP/notemesh/internal/document"
	"github.com/Aman-CERP/notemesh/internal/embed"
	"github.com/Aman-CERP/notemesh/internal/fsutil"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 1000

	// IndexFileName is the HNSW graph file inside the data directory.
	IndexFileName = "vectors.hnsw"
	// ChunksFileName holds the chunk table (gob).
	ChunksFileName = "vectors.chunks"
)

// NoteStoreOptions configures a NoteStore.
type NoteStoreOptions struct {
	// Dir is the directory holding the index files.
	Dir       string
	ChunkSize int
	Index     IndexConfig
}

// NoteStore embeds notes chunk by chunk and answers similarity queries.
// It is the vector store the indexer keeps in sync with the metadata stores.
type NoteStore struct {
	mu        sync.RWMutex
	embedder  embed.Embedder
	index     *HNSWIndex
	dir       string
	chunkSize int
	indexCfg  IndexConfig

	chunks map[string]Chunk    // chunk id -> chunk
	byPath map[string][]string // note path -> chunk ids in order
}

// NewNoteStore creates an empty store. Call Load to read persisted state.
func NewNoteStore(embedder embed.Embedder, opts NoteStoreOptions) *NoteStore {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Index.Dimensions == 0 {
		opts.Index = DefaultIndexConfig(embedder.Dimensions())
	}
	return &NoteStore{
		embedder:  embedder,
		index:     NewHNSWIndex(opts.Index),
		dir:       opts.Dir,
		chunkSize: opts.ChunkSize,
		indexCfg:  opts.Index,
		chunks:    make(map[string]Chunk),
		byPath:    make(map[string][]string),
	}
}

// ChunkText splits text by lines into chunks of at most size characters.
// A single line longer than size forms its own chunk.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if current.Len() > 0 && current.Len()+1+len(line) > size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	chunks = append(chunks, current.String())

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// ChunkID returns the id of chunk i of path.
func ChunkID(path string, i int) string {
	return fmt.Sprintf("%s#%d", path, i)
}

func (s *NoteStore) chunkDocument(doc *document.Document) []Chunk {
	texts := ChunkText(doc.Body, s.chunkSize)
	if len(texts) == 0 {
		// Empty notes get one empty chunk; it is embedded by title only.
		texts = []string{""}
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ID:     ChunkID(doc.Path, i),
			Path:   doc.Path,
			Title:  doc.Title,
			Folder: doc.Folder,
			Index:  i,
			Text:   text,
			Tags:   slices.Clone(doc.Tags),
			Links:  slices.Clone(doc.Links),
		}
	}
	return chunks
}

// AddDocument chunks, embeds and stores doc.
func (s *NoteStore) AddDocument(ctx context.Context, doc *document.Document) error {
	chunks := s.chunkDocument(doc)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Title + "\n" + c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", doc.Path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteLocked(doc.Path); err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := s.index.Add(ids, vectors); err != nil {
		return fmt.Errorf("index %s: %w", doc.Path, err)
	}
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	s.byPath[doc.Path] = ids
	return nil
}

// UpdateDocument replaces every chunk of doc.
func (s *NoteStore) UpdateDocument(ctx context.Context, doc *document.Document) error {
	if err := s.DeleteDocument(ctx, doc.Path); err != nil {
		return err
	}
	return s.AddDocument(ctx, doc)
}

// DeleteDocument removes every chunk of path. Unknown paths are ignored.
func (s *NoteStore) DeleteDocument(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(path)
}

func (s *NoteStore) deleteLocked(path string) error {
	ids, ok := s.byPath[path]
	if !ok {
		return nil
	}
	if err := s.index.Delete(ids); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	for _, id := range ids {
		delete(s.chunks, id)
	}
	delete(s.byPath, path)
	return nil
}

// Search returns up to topK chunk hits for query, best first.
// A non-empty folder restricts hits to notes in that folder.
func (s *NoteStore) Search(ctx context.Context, query string, topK int, folder string) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	k := topK
	if folder != "" {
		k = len(s.chunks)
	}
	results, err := s.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]Hit, 0, topK)
	for _, r := range results {
		c, ok := s.chunks[r.ID]
		if !ok || (folder != "" && c.Folder != folder) {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Score: r.Score})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// SearchNotes is Search collapsed to the best chunk per note.
func (s *NoteStore) SearchNotes(ctx context.Context, query string, topK int, folder string) ([]Hit, error) {
	hits, err := s.Search(ctx, query, topK*4, folder)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(hits))
	out := make([]Hit, 0, topK)
	for _, h := range hits {
		if seen[h.Chunk.Path] {
			continue
		}
		seen[h.Chunk.Path] = true
		out = append(out, h)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// Paths returns the sorted paths of every stored note.
func (s *NoteStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Chunks returns the chunks of path in order.
func (s *NoteStore) Chunks(path string) []Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byPath[path]
	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.chunks[id])
	}
	return out
}

// Len returns the number of stored notes.
func (s *NoteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPath)
}

// ChunkCount returns the number of stored chunks.
func (s *NoteStore) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// IndexStats exposes the underlying graph statistics.
func (s *NoteStore) IndexStats() IndexStats {
	return s.index.Stats()
}

type chunkTable struct {
	Chunks map[string]Chunk
	ByPath map[string][]string
}

// Save writes the graph, its ID map and the chunk table to Dir.
func (s *NoteStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.index.Save(filepath.Join(s.dir, IndexFileName)); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chunkTable{Chunks: s.chunks, ByPath: s.byPath}); err != nil {
		return fmt.Errorf("encode chunk table: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(s.dir, ChunksFileName), buf.Bytes(), 0o644)
}

// Load reads persisted state from Dir. Missing files leave the store empty.
// Unreadable files are logged and also leave the store empty; the next
// index run re-embeds whatever the ledger says is missing.
func (s *NoteStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := readChunkTable(filepath.Join(s.dir, ChunksFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		slog.Warn("vector chunk table unreadable, starting empty",
			slog.String("dir", s.dir), slog.String("error", err.Error()))
		return nil
	}

	index := NewHNSWIndex(s.indexCfg)
	if err := index.Load(filepath.Join(s.dir, IndexFileName)); err != nil {
		slog.Warn("vector index unreadable, starting empty",
			slog.String("dir", s.dir), slog.String("error", err.Error()))
		return nil
	}
	if want := s.embedder.Dimensions(); want != 0 && index.Dimensions() != 0 && want != index.Dimensions() {
		return ErrDimensionMismatch{Expected: index.Dimensions(), Got: want}
	}

	s.index = index
	s.chunks = table.Chunks
	s.byPath = table.ByPath
	if s.chunks == nil {
		s.chunks = make(map[string]Chunk)
	}
	if s.byPath == nil {
		s.byPath = make(map[string][]string)
	}
	return nil
}

func readChunkTable(path string) (*chunkTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var table chunkTable
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode chunk table: %w", err)
	}
	return &table, nil
}

// Close releases the index.
func (s *NoteStore) Close() error {
	return s.index.Close()
}
