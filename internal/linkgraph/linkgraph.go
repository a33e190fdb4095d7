// Package linkgraph maintains the wiki-link and tag graph of a vault.
//
// Forward links and tags are authoritative per note. Backlinks are derived:
// every mutation clears and recomputes all of them from the forward links,
// so they are always a pure function of the current notes.
package linkgraph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/Aman-CERP/notemesh/internal/document"
	"github.com/Aman-CERP/notemesh/internal/fsutil"
)

// FileVersion is written to the persisted graph.
const FileVersion = "2.0.0"

// tagPattern matches inline tags made of word characters, Hangul and dashes.
var tagPattern = regexp.MustCompile(`#([\w가-힣][\w가-힣-]*)`)

// Entry is the graph record for one note.
type Entry struct {
	Title        string            `json:"title"`
	Folder       string            `json:"folder"`
	Backlinks    []string          `json:"backlinks"`
	ForwardLinks []string          `json:"forward_links"`
	Aliases      map[string]string `json:"aliases,omitempty"`
	Tags         []string          `json:"tags"`
	FrontMatter  map[string]any    `json:"front_matter"`
}

// NetworkStats summarises the graph.
type NetworkStats struct {
	TotalFiles     int `json:"total_files"`
	TotalBacklinks int `json:"total_backlinks"`
	OrphanedNotes  int `json:"orphaned_notes"`
}

// TagCount is a tag and the number of notes carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type fileFormat struct {
	Version    string            `json:"version"`
	LastUpdate time.Time         `json:"last_update"`
	Files      map[string]*Entry `json:"files"`
	Stats      NetworkStats      `json:"stats"`
}

// Store is the link graph, keyed by absolute note path.
type Store struct {
	path string

	mu         sync.RWMutex
	files      map[string]*Entry
	titles     map[string]string // title -> owning path
	lastUpdate time.Time
}

// Open loads the graph persisted at path. A missing or unreadable file
// yields an empty graph.
func Open(path string) *Store {
	s := &Store{path: path}
	s.load()
	return s
}

// Path returns the persisted file location.
func (s *Store) Path() string { return s.path }

// Reload replaces the in-memory graph with the persisted file.
func (s *Store) Reload() {
	s.load()
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = map[string]*Entry{}
	s.titles = map[string]string{}
	s.lastUpdate = time.Now()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read link graph, starting empty",
				slog.String("path", s.path), slog.String("error", err.Error()))
		}
		return
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("link graph is corrupt, starting empty",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return
	}
	for p, e := range f.Files {
		if e == nil {
			continue
		}
		s.files[p] = e
	}
	if !f.LastUpdate.IsZero() {
		s.lastUpdate = f.LastUpdate
	}
	s.rebuildLocked()
}

// Save writes the graph atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	s.lastUpdate = time.Now()
	f := fileFormat{
		Version:    FileVersion,
		LastUpdate: s.lastUpdate,
		Files:      s.files,
		Stats:      s.statsLocked(),
	}
	err := fsutil.WriteJSON(s.path, f)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to save link graph: %w", err)
	}
	return nil
}

// Update writes the entry for doc and rebuilds backlinks.
func (s *Store) Update(doc *document.Document) {
	s.UpdateMany([]*document.Document{doc})
}

// UpdateMany writes entries for every doc, then rebuilds backlinks once.
func (s *Store) UpdateMany(docs []*document.Document) {
	if len(docs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		s.files[doc.Path] = entryFor(doc)
	}
	s.rebuildLocked()
}

// Delete removes path and rebuilds backlinks.
func (s *Store) Delete(path string) {
	s.DeleteMany([]string{path})
}

// DeleteMany removes every path, then rebuilds backlinks once.
func (s *Store) DeleteMany(paths []string) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range paths {
		delete(s.files, p)
	}
	s.rebuildLocked()
}

// RebuildBacklinks recomputes every backlink list from the forward links.
func (s *Store) RebuildBacklinks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildLocked()
}

func entryFor(doc *document.Document) *Entry {
	links, aliases := document.ExtractWikiLinks(doc.Body)

	var inline []string
	for _, m := range tagPattern.FindAllStringSubmatch(document.WikiLinkPattern.ReplaceAllString(doc.Body, " "), -1) {
		inline = append(inline, m[1])
	}

	fm := doc.FrontMatter
	if fm == nil {
		fm = map[string]any{}
	}
	if links == nil {
		links = []string{}
	}
	if len(aliases) == 0 {
		aliases = nil
	}
	tags := document.MergeTags(inline, document.FrontMatterTags(fm))
	if tags == nil {
		tags = []string{}
	}

	return &Entry{
		Title:        doc.Title,
		Folder:       doc.Folder,
		Backlinks:    []string{},
		ForwardLinks: links,
		Aliases:      aliases,
		Tags:         tags,
		FrontMatter:  fm,
	}
}

// rebuildLocked recomputes the title index and all backlinks.
// Sources are visited in path order so backlink order is stable.
// When titles collide the lexicographically smallest path owns the title.
func (s *Store) rebuildLocked() {
	paths := slices.Sorted(maps.Keys(s.files))

	s.titles = make(map[string]string, len(paths))
	for _, p := range paths {
		e := s.files[p]
		e.Backlinks = []string{}
		if _, taken := s.titles[e.Title]; !taken {
			s.titles[e.Title] = p
		}
	}

	seen := make(map[string]map[string]bool)
	for _, src := range paths {
		source := s.files[src]
		for _, target := range source.ForwardLinks {
			tp, ok := s.titles[target]
			if !ok {
				continue
			}
			if seen[tp] == nil {
				seen[tp] = map[string]bool{}
			}
			if seen[tp][source.Title] {
				continue
			}
			seen[tp][source.Title] = true
			t := s.files[tp]
			t.Backlinks = append(t.Backlinks, source.Title)
		}
	}
}
