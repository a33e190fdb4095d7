package stats

import (
	"slices"
	"time"
)

// Get returns a copy of the entry for path.
func (s *Store) Get(path string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.files[path]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// GetByTitle returns the entry titled title. When several notes share the
// title the lexicographically smallest path wins.
func (s *Store) GetByTitle(title string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.byTitleLocked(title); e != nil {
		return copyEntry(e), true
	}
	return Entry{}, false
}

func (s *Store) byTitleLocked(title string) *Entry {
	var best *Entry
	for p, e := range s.files {
		if e.Title == title && (best == nil || p < best.Path) {
			best = e
		}
	}
	return best
}

// ByTimeframe returns notes modified within the last days days, newest first.
// The boundary is inclusive. An empty folder matches every folder.
func (s *Store) ByTimeframe(days int, folder string) []Entry {
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.RLock()
	var out []Entry
	for _, p := range s.sortedPathsLocked() {
		e := s.files[p]
		if e.Timestamps.Modified.Before(cutoff) {
			continue
		}
		if folder != "" && e.Folder != folder {
			continue
		}
		out = append(out, copyEntry(e))
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Entry) int {
		return b.Timestamps.Modified.Compare(a.Timestamps.Modified)
	})
	return out
}

// ByTag returns the notes carrying tag, in path order.
func (s *Store) ByTag(tag string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, p := range s.sortedPathsLocked() {
		e := s.files[p]
		if slices.Contains(e.Links.Tags, tag) {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// ByBacklinks walks backlinks breadth first from title up to depth hops.
// The start note is included at depth 0 and each note appears once.
func (s *Store) ByBacklinks(title string, depth int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := s.byTitleLocked(title)
	if start == nil {
		return nil
	}

	type item struct {
		path  string
		depth int
	}
	visited := map[string]bool{}
	queue := []item{{start.Path, 0}}
	var out []Entry

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.path] || cur.depth > depth {
			continue
		}
		visited[cur.path] = true

		e, ok := s.files[cur.path]
		if !ok {
			continue
		}
		out = append(out, copyEntry(e))

		if cur.depth < depth {
			for _, bl := range e.Links.Backlinks {
				if src := s.byTitleLocked(bl); src != nil && !visited[src.Path] {
					queue = append(queue, item{src.Path, cur.depth + 1})
				}
			}
		}
	}
	return out
}

// FolderStats returns file, word and token totals per folder.
func (s *Store) FolderStats() map[string]FolderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folderStatsLocked()
}

// TagStats returns tag frequencies, most frequent first.
func (s *Store) TagStats() []TagCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tagStatsLocked()
}

// Totals returns the aggregate block.
func (s *Store) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalsLocked()
}

// Paths returns every indexed path, sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedPathsLocked()
}

// Len returns the number of indexed notes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// LastUpdate returns when the index was last saved or loaded.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func copyEntry(e *Entry) Entry {
	c := *e
	c.Links.Tags = slices.Clone(e.Links.Tags)
	c.Links.Backlinks = slices.Clone(e.Links.Backlinks)
	c.Links.ForwardLinks = slices.Clone(e.Links.ForwardLinks)
	return c
}
