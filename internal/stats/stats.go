// Package stats keeps per-note size, token and timestamp metadata with
// folder and tag aggregates.
package stats

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/notemesh/internal/document"
	"github.com/Aman-CERP/notemesh/internal/fsutil"
	"github.com/Aman-CERP/notemesh/internal/tokenize"
)

// FileVersion is written to the persisted index.
const FileVersion = "1.0.0"

// Size holds the text measures of a note.
type Size struct {
	Bytes           int64 `json:"bytes"`
	Words           int   `json:"words"`
	Characters      int   `json:"characters"`
	Lines           int   `json:"lines"`
	EstimatedTokens int   `json:"estimated_tokens"`
}

// Timestamps records when a note was first seen, changed and indexed.
type Timestamps struct {
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Indexed  time.Time `json:"indexed"`
}

// Links mirrors the note's position in the link graph.
type Links struct {
	Tags             []string `json:"tags"`
	Backlinks        []string `json:"backlinks"`
	ForwardLinks     []string `json:"forward_links"`
	BacklinkCount    int      `json:"backlink_count"`
	ForwardLinkCount int      `json:"forward_link_count"`
}

// Entry is the stats record for one note.
type Entry struct {
	Path         string     `json:"path"`
	Title        string     `json:"title"`
	Folder       string     `json:"folder"`
	RelativePath string     `json:"relative_path"`
	Timestamps   Timestamps `json:"timestamps"`
	Size         Size       `json:"size"`
	Links        Links      `json:"links"`
}

// FolderStats aggregates one folder.
type FolderStats struct {
	Files  int `json:"files"`
	Words  int `json:"words"`
	Tokens int `json:"tokens"`
}

// TagCount is a tag and the number of notes carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Totals is the aggregate block persisted with the index.
type Totals struct {
	TotalFiles           int                    `json:"total_files"`
	TotalWords           int                    `json:"total_words"`
	TotalTokensEstimated int                    `json:"total_tokens_estimated"`
	ByFolder             map[string]FolderStats `json:"by_folder"`
	TopTags              []TagCount             `json:"top_tags"`
}

type fileFormat struct {
	Version    string            `json:"version"`
	LastUpdate time.Time         `json:"last_update"`
	Files      map[string]*Entry `json:"files"`
	Stats      Totals            `json:"stats"`
}

// Store is the stats index, keyed by absolute note path.
type Store struct {
	path    string
	counter tokenize.Counter
	now     func() time.Time

	mu         sync.RWMutex
	files      map[string]*Entry
	lastUpdate time.Time
}

// Open loads the index persisted at path. A missing or corrupt file yields
// an empty index. A nil counter uses the character estimate.
func Open(path string, counter tokenize.Counter) *Store {
	if counter == nil {
		counter = tokenize.EstimateCounter{}
	}
	s := &Store{path: path, counter: counter, now: time.Now}
	s.load()
	return s
}

// Path returns the persisted file location.
func (s *Store) Path() string { return s.path }

// Reload replaces the in-memory index with the persisted file.
func (s *Store) Reload() { s.load() }

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = map[string]*Entry{}
	s.lastUpdate = s.now()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read stats index, starting empty",
				slog.String("path", s.path), slog.String("error", err.Error()))
		}
		return
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("stats index is corrupt, starting empty",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return
	}
	for p, e := range f.Files {
		if e == nil {
			continue
		}
		e.Path = p
		s.files[p] = e
	}
	if !f.LastUpdate.IsZero() {
		s.lastUpdate = f.LastUpdate
	}
}

// Save writes the index and its aggregates atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	s.lastUpdate = s.now()
	f := fileFormat{
		Version:    FileVersion,
		LastUpdate: s.lastUpdate,
		Files:      s.files,
		Stats:      s.totalsLocked(),
	}
	err := fsutil.WriteJSON(s.path, f)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to save stats index: %w", err)
	}
	return nil
}

// Measure computes the size block for body. Token counting never fails.
func Measure(body string, bytes int64, counter tokenize.Counter) Size {
	return Size{
		Bytes:           bytes,
		Words:           len(strings.Fields(body)),
		Characters:      utf8.RuneCountInString(body),
		Lines:           strings.Count(body, "\n") + 1,
		EstimatedTokens: counter.Count(body),
	}
}

// Update computes and stores the entry for doc. The created timestamp of an
// existing entry is kept.
func (s *Store) Update(doc *document.Document) {
	size := Measure(doc.Body, doc.Size, s.counter)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	created := doc.ModTime
	var backlinks []string
	if prev, ok := s.files[doc.Path]; ok {
		if !prev.Timestamps.Created.IsZero() {
			created = prev.Timestamps.Created
		}
		backlinks = prev.Links.Backlinks
	}

	s.files[doc.Path] = &Entry{
		Path:         doc.Path,
		Title:        doc.Title,
		Folder:       doc.Folder,
		RelativePath: doc.RelPath,
		Timestamps: Timestamps{
			Created:  created,
			Modified: doc.ModTime,
			Indexed:  now,
		},
		Size:  size,
		Links: newLinks(doc.Tags, backlinks, doc.Links),
	}
}

// SyncLinks replaces the link block of path with the link graph's view.
// Unknown paths are ignored.
func (s *Store) SyncLinks(path string, tags, backlinks, forward []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.files[path]; ok {
		e.Links = newLinks(tags, backlinks, forward)
	}
}

// Delete removes path.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

func newLinks(tags, backlinks, forward []string) Links {
	return Links{
		Tags:             nonNil(tags),
		Backlinks:        nonNil(backlinks),
		ForwardLinks:     nonNil(forward),
		BacklinkCount:    len(backlinks),
		ForwardLinkCount: len(forward),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func (s *Store) totalsLocked() Totals {
	t := Totals{
		TotalFiles: len(s.files),
		ByFolder:   s.folderStatsLocked(),
		TopTags:    s.tagStatsLocked(),
	}
	for _, e := range s.files {
		t.TotalWords += e.Size.Words
		t.TotalTokensEstimated += e.Size.EstimatedTokens
	}
	return t
}

func (s *Store) folderStatsLocked() map[string]FolderStats {
	out := map[string]FolderStats{}
	for _, e := range s.files {
		fs := out[e.Folder]
		fs.Files++
		fs.Words += e.Size.Words
		fs.Tokens += e.Size.EstimatedTokens
		out[e.Folder] = fs
	}
	return out
}

func (s *Store) tagStatsLocked() []TagCount {
	counts := map[string]int{}
	for _, e := range s.files {
		for _, t := range e.Links.Tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TagCount{Tag: t, Count: c})
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	return out
}

// sortedPathsLocked returns every path in lexicographic order.
func (s *Store) sortedPathsLocked() []string {
	return slices.Sorted(maps.Keys(s.files))
}
