package linkgraph

import (
	"cmp"
	"maps"
	"slices"
	"time"
)

// ResolveTitle returns the path that owns title.
func (s *Store) ResolveTitle(title string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.titles[title]
	return p, ok
}

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

// Backlinks returns the titles of notes linking to title.
func (s *Store) Backlinks(title string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.titles[title]; ok {
		return slices.Clone(s.files[p].Backlinks)
	}
	return []string{}
}

// ForwardLinks returns the link targets of title.
func (s *Store) ForwardLinks(title string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.titles[title]; ok {
		return slices.Clone(s.files[p].ForwardLinks)
	}
	return []string{}
}

// NotesByTag returns the titles of notes carrying tag, in path order.
func (s *Store) NotesByTag(tag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := []string{}
	for _, p := range slices.Sorted(maps.Keys(s.files)) {
		e := s.files[p]
		if slices.Contains(e.Tags, tag) {
			notes = append(notes, e.Title)
		}
	}
	return notes
}

// Orphans returns the titles of notes with no backlinks and no forward links.
func (s *Store) Orphans() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orphans := []string{}
	for _, p := range slices.Sorted(maps.Keys(s.files)) {
		e := s.files[p]
		if len(e.Backlinks) == 0 && len(e.ForwardLinks) == 0 {
			orphans = append(orphans, e.Title)
		}
	}
	return orphans
}

// Stats returns file, backlink and orphan counts.
func (s *Store) Stats() NetworkStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Store) statsLocked() NetworkStats {
	var st NetworkStats
	st.TotalFiles = len(s.files)
	for _, e := range s.files {
		st.TotalBacklinks += len(e.Backlinks)
		if len(e.Backlinks) == 0 && len(e.ForwardLinks) == 0 {
			st.OrphanedNotes++
		}
	}
	return st
}

// AllTags returns tag frequencies, most frequent first, ties by name.
func (s *Store) AllTags() []TagCount {
	s.mu.RLock()
	counts := map[string]int{}
	for _, e := range s.files {
		for _, t := range e.Tags {
			counts[t]++
		}
	}
	s.mu.RUnlock()

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

// Paths returns every note path in the graph, sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.files))
}

// Len returns the number of notes in the graph.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// LastUpdate returns when the graph was last saved or loaded.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func copyEntry(e *Entry) Entry {
	c := *e
	c.Backlinks = slices.Clone(e.Backlinks)
	c.ForwardLinks = slices.Clone(e.ForwardLinks)
	c.Tags = slices.Clone(e.Tags)
	c.Aliases = maps.Clone(e.Aliases)
	c.FrontMatter = maps.Clone(e.FrontMatter)
	return c
}
