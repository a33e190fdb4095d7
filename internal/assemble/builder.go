// Package assemble builds token-budgeted context bundles around a note:
// the note itself, the notes linking to it, the notes it links to, notes
// that read alike and, optionally, notes sharing its first tag.
package assemble

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/notemesh/internal/document"
	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/linkgraph"
	"github.com/Aman-CERP/notemesh/internal/stats"
	"github.com/Aman-CERP/notemesh/internal/store"
)

// Section names a tier of a bundle.
type Section string

// Sections of a bundle, in default priority order.
const (
	SectionPrimary      Section = "primary"
	SectionBacklinks    Section = "backlinks"
	SectionForwardLinks Section = "forward_links"
	SectionSemantic     Section = "semantic_related"
	SectionTagRelated   Section = "tag_related"
)

// AllSections lists every section in rendering order.
var AllSections = []Section{SectionPrimary, SectionBacklinks, SectionForwardLinks, SectionSemantic, SectionTagRelated}

// Note is one bundle entry.
type Note struct {
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Folder  string   `json:"folder"`
	Tags    []string `json:"tags"`
	Links   []string `json:"links"`
	Content string   `json:"content"`
	// Tokens is the stats estimate, 0 when the note has no stats entry yet.
	Tokens int `json:"tokens"`
	// Score is the similarity for semantic entries.
	Score   float64 `json:"score,omitempty"`
	Trimmed bool    `json:"trimmed,omitempty"`
}

// Bundle is a collected or packed context.
type Bundle struct {
	Focus    string             `json:"focus"`
	Sections map[Section][]Note `json:"sections"`
	// TokensUsed is set by Pack.
	TokensUsed int `json:"tokens_used"`
	MaxTokens  int `json:"max_tokens,omitempty"`
}

// Count returns the number of notes across sections.
func (b *Bundle) Count() int {
	n := 0
	for _, notes := range b.Sections {
		n += len(notes)
	}
	return n
}

func newBundle(focus string) *Bundle {
	b := &Bundle{Focus: focus, Sections: make(map[Section][]Note, len(AllSections))}
	for _, s := range AllSections {
		b.Sections[s] = []Note{}
	}
	return b
}

// Graph is the link graph view the builder needs.
type Graph interface {
	ResolveTitle(title string) (string, bool)
	Get(path string) (linkgraph.Entry, bool)
	Backlinks(title string) []string
	ForwardLinks(title string) []string
	NotesByTag(tag string) []string
}

// Stats provides token estimates.
type Stats interface {
	Get(path string) (stats.Entry, bool)
}

// Searcher finds notes similar to a query, one hit per note.
type Searcher interface {
	SearchNotes(ctx context.Context, query string, topK int, folder string) ([]store.Hit, error)
}

// Parser reads a note from disk.
type Parser interface {
	Parse(path string) (*document.Document, error)
}

// Options selects which tiers to collect and how many notes per tier.
type Options struct {
	IncludeBacklinks    bool `json:"include_backlinks"`
	IncludeForwardLinks bool `json:"include_forward_links"`
	IncludeSemantic     bool `json:"include_semantic_related"`
	IncludeTagRelated   bool `json:"include_tag_related"`

	MaxBacklinks    int `json:"max_backlinks"`
	MaxForwardLinks int `json:"max_forward_links"`
	MaxSemantic     int `json:"max_semantic_related"`
	MaxTagRelated   int `json:"max_tag_related"`
}

// DefaultOptions collects every tier except tag-related.
func DefaultOptions() Options {
	return Options{
		IncludeBacklinks:    true,
		IncludeForwardLinks: true,
		IncludeSemantic:     true,
		MaxBacklinks:        10,
		MaxForwardLinks:     10,
		MaxSemantic:         5,
		MaxTagRelated:       5,
	}
}

// semanticSeedChars is how much of the focal note seeds the similarity query.
const semanticSeedChars = 500

// Builder collects bundles from the stores.
type Builder struct {
	graph    Graph
	stats    Stats
	searcher Searcher
	parser   Parser
}

// NewBuilder creates a Builder. searcher may be nil, which disables the
// semantic tier.
func NewBuilder(graph Graph, st Stats, searcher Searcher, parser Parser) *Builder {
	return &Builder{graph: graph, stats: st, searcher: searcher, parser: parser}
}

// Build collects the bundle for the note titled title. Every path appears at
// most once, in the first tier that reaches it.
func (b *Builder) Build(ctx context.Context, title string, opts Options) (*Bundle, error) {
	primary, ok := b.noteByTitle(title)
	if !ok {
		return nil, nerrors.NotFoundError(title)
	}

	bundle := newBundle(title)
	bundle.Sections[SectionPrimary] = []Note{primary}
	seen := map[string]bool{primary.Path: true}

	add := func(section Section, n Note) {
		seen[n.Path] = true
		bundle.Sections[section] = append(bundle.Sections[section], n)
	}

	if opts.IncludeBacklinks {
		for _, t := range head(b.graph.Backlinks(title), opts.MaxBacklinks) {
			if n, ok := b.noteByTitle(t); ok && !seen[n.Path] {
				add(SectionBacklinks, n)
			}
		}
	}

	if opts.IncludeForwardLinks {
		for _, t := range head(b.graph.ForwardLinks(title), opts.MaxForwardLinks) {
			if n, ok := b.noteByTitle(t); ok && !seen[n.Path] {
				add(SectionForwardLinks, n)
			}
		}
	}

	if opts.IncludeSemantic && b.searcher != nil && opts.MaxSemantic > 0 {
		hits, err := b.searcher.SearchNotes(ctx, SeedQuery(primary.Content), opts.MaxSemantic+1, "")
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if len(bundle.Sections[SectionSemantic]) >= opts.MaxSemantic {
				break
			}
			if seen[h.Chunk.Path] {
				continue
			}
			if n, ok := b.noteByPath(h.Chunk.Path); ok {
				n.Score = float64(h.Score)
				add(SectionSemantic, n)
			}
		}
	}

	if opts.IncludeTagRelated && len(primary.Tags) > 0 {
		for _, t := range head(b.graph.NotesByTag(primary.Tags[0]), opts.MaxTagRelated) {
			if n, ok := b.noteByTitle(t); ok && !seen[n.Path] {
				add(SectionTagRelated, n)
			}
		}
	}

	return bundle, nil
}

func (b *Builder) noteByTitle(title string) (Note, bool) {
	path, ok := b.graph.ResolveTitle(title)
	if !ok {
		return Note{}, false
	}
	return b.noteByPath(path)
}

// noteByPath reads the note from disk. Notes that vanished since the last
// index run are skipped.
func (b *Builder) noteByPath(path string) (Note, bool) {
	doc, err := b.parser.Parse(path)
	if err != nil {
		slog.Debug("skipping unreadable note", slog.String("path", path), slog.String("error", err.Error()))
		return Note{}, false
	}

	n := Note{
		Path:    doc.Path,
		Title:   doc.Title,
		Folder:  doc.Folder,
		Tags:    doc.Tags,
		Links:   doc.Links,
		Content: doc.Body,
	}
	if e, ok := b.graph.Get(path); ok {
		n.Tags = e.Tags
	}
	if e, ok := b.stats.Get(path); ok {
		n.Tokens = e.Size.EstimatedTokens
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.Links == nil {
		n.Links = []string{}
	}
	return n, true
}

func head(s []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

// SeedQuery returns the leading text of a note body used to find notes
// that read alike.
func SeedQuery(body string) string {
	return leadingText(body, semanticSeedChars)
}

// leadingText returns the first n runes of s.
func leadingText(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
