package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/notemesh/internal/app"
	"github.com/Aman-CERP/notemesh/internal/assemble"
	"github.com/Aman-CERP/notemesh/internal/document"
	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/store"
	"github.com/Aman-CERP/notemesh/internal/telemetry"
	"github.com/Aman-CERP/notemesh/pkg/version"
)

const (
	defaultTopK       = 5
	maxTopK           = 50
	defaultRecentDays = 7
	topTagCount       = 10
)

// Server is the MCP server over one vault.
type Server struct {
	mcp    *mcp.Server
	app    *app.App
	logger *slog.Logger
}

// NewServer creates a server and registers its tools.
func NewServer(a *app.App) (*Server, error) {
	if a == nil {
		return nil, errors.New("vault is required")
	}
	s := &Server{app: a, logger: slog.Default()}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "notemesh", Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), toolInfos...)
}

func description(name string) string {
	for _, t := range toolInfos {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

// textHandler is a tool body that renders markdown.
type textHandler[In any] func(ctx context.Context, in In) (string, error)

func addTextTool[In any](s *Server, name string, h textHandler[In]) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: description(name)},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
			text, err := h(ctx, in)
			if err != nil {
				return nil, nil, MapError(err)
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil, nil
		})
	s.logger.Debug("Registered tool", slog.String("name", name))
}

func (s *Server) registerTools() {
	addTextTool(s, ToolSearchNotes, s.SearchNotes)
	addTextTool(s, ToolGetNote, s.GetNote)
	addTextTool(s, ToolFindRelated, s.FindRelated)
	addTextTool(s, ToolSearchByTag, s.SearchByTag)
	addTextTool(s, ToolGetBacklinks, s.GetBacklinks)
	addTextTool(s, ToolGetForwardLinks, s.GetForwardLinks)
	addTextTool(s, ToolGetOrphans, s.GetOrphans)
	addTextTool(s, ToolGetVaultStats, s.GetVaultStats)
	addTextTool(s, ToolUpdateIndex, s.UpdateIndex)
	addTextTool(s, ToolPackContext, s.PackContext)
	addTextTool(s, ToolQueryRecent, s.QueryRecent)
	s.logger.Info("MCP tools registered", slog.Int("count", len(toolInfos)))
}

// track logs a finished call and records it in the query log.
func (s *Server) track(tool, query string, start time.Time, results int, err error) {
	d := time.Since(start)
	s.app.Queries.Record(telemetry.QueryEvent{Tool: tool, Query: query, ResultCount: results, Latency: d, Err: err})
	attrs := []any{
		slog.String("request_id", generateRequestID()),
		slog.String("tool", tool),
		slog.Duration("duration", d),
		slog.Int("result_count", results),
	}
	if err != nil {
		s.logger.Warn("tool failed", append(attrs, nerrors.LogAttrs(err)...)...)
		return
	}
	s.logger.Info("tool completed", attrs...)
}

// searchError tags a vector store failure. Errors that already carry a
// code keep it.
func searchError(err error) error {
	if nerrors.GetCode(err) != "" {
		return err
	}
	return nerrors.New(nerrors.ErrCodeSearchFailed, "similarity search failed", err)
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nerrors.New(nerrors.ErrCodeInvalidInput, field+" is required", nil)
	}
	return nil
}

// SearchNotes runs a similarity search over note passages.
func (s *Server) SearchNotes(ctx context.Context, in SearchNotesInput) (out string, err error) {
	start := time.Now()
	var hits []store.Hit
	defer func() { s.track(ToolSearchNotes, in.Query, start, len(hits), err) }()

	if strings.TrimSpace(in.Query) == "" {
		return "", nerrors.New(nerrors.ErrCodeQueryEmpty, "query cannot be empty", nil)
	}
	hits, err = s.app.Notes.Search(ctx, in.Query, clampLimit(in.TopK, defaultTopK, maxTopK), in.Folder)
	if err != nil {
		return "", searchError(err)
	}
	return FormatSearchResults(in.Query, hits), nil
}

// GetNote returns a note's full content. The text is reassembled from the
// indexed chunks and read from disk when the note is not embedded yet.
func (s *Server) GetNote(_ context.Context, in GetNoteInput) (out string, err error) {
	start := time.Now()
	found := 0
	defer func() { s.track(ToolGetNote, in.Title, start, found, err) }()

	if err := requireText("title", in.Title); err != nil {
		return "", err
	}
	path, ok := s.app.Graph.ResolveTitle(in.Title)
	if !ok {
		return "", nerrors.NotFoundError(in.Title)
	}
	entry, _ := s.app.Graph.Get(path)

	var content string
	if chunks := s.app.Notes.Chunks(path); len(chunks) > 0 {
		parts := make([]string, len(chunks))
		for i, c := range chunks {
			parts[i] = c.Text
		}
		content = strings.Join(parts, "\n")
	} else {
		doc, err := s.app.Parser.Parse(path)
		if err != nil {
			return "", nerrors.NotFoundError(in.Title).WithDetail("path", path)
		}
		content = doc.Body
	}

	found = 1
	return FormatNote(entry.Title, entry.Folder, entry.Tags, entry.ForwardLinks, content), nil
}

// notePath resolves a caller supplied note path. Only regular note files
// under the vault root are accepted.
func (s *Server) notePath(p string) (string, error) {
	root := s.app.Rules.Root()
	path := filepath.FromSlash(p)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", nerrors.New(nerrors.ErrCodeInvalidPath, "path is outside the vault", nil).
			WithDetail("path", p)
	}
	if !s.app.Rules.Eligible(path) {
		return "", nerrors.New(nerrors.ErrCodeInvalidPath, "path is not a note", nil).
			WithDetail("path", p)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nerrors.NotFoundError(p)
		}
		return "", nerrors.New(nerrors.ErrCodeInvalidPath, "cannot stat note", err).WithDetail("path", p)
	}
	if !info.Mode().IsRegular() {
		return "", nerrors.New(nerrors.ErrCodeInvalidPath, "path is not a regular file", nil).
			WithDetail("path", p)
	}
	return path, nil
}

// FindRelated lists notes similar to the note at a path.
func (s *Server) FindRelated(ctx context.Context, in FindRelatedInput) (out string, err error) {
	start := time.Now()
	var related []store.Hit
	defer func() { s.track(ToolFindRelated, in.NotePath, start, len(related), err) }()

	if err := requireText("note_path", in.NotePath); err != nil {
		return "", err
	}
	path, err := s.notePath(in.NotePath)
	if err != nil {
		return "", err
	}

	doc, err := s.app.Parser.Parse(path)
	if err != nil {
		return "", err
	}

	topK := clampLimit(in.TopK, defaultTopK, maxTopK)
	hits, err := s.app.Notes.SearchNotes(ctx, assemble.SeedQuery(doc.Body), topK+1, "")
	if err != nil {
		return "", searchError(err)
	}
	for _, h := range hits {
		if h.Chunk.Path == path {
			continue
		}
		if len(related) == topK {
			break
		}
		related = append(related, h)
	}
	return FormatRelated(doc.Title, related), nil
}

// SearchByTag lists the notes carrying a tag.
func (s *Server) SearchByTag(_ context.Context, in SearchByTagInput) (out string, err error) {
	start := time.Now()
	var notes []NoteRef
	defer func() { s.track(ToolSearchByTag, in.Tag, start, len(notes), err) }()

	tag := strings.TrimPrefix(strings.TrimSpace(in.Tag), "#")
	if err := requireText("tag", tag); err != nil {
		return "", err
	}
	notes = s.refs(s.app.Graph.NotesByTag(tag))
	return FormatNoteList(fmt.Sprintf("Notes tagged #%s", tag), fmt.Sprintf("No notes tagged #%s", tag), notes), nil
}

// GetBacklinks lists the notes linking to a note.
func (s *Server) GetBacklinks(_ context.Context, in NoteTitleInput) (out string, err error) {
	start := time.Now()
	var notes []NoteRef
	defer func() { s.track(ToolGetBacklinks, in.NoteTitle, start, len(notes), err) }()

	if err := requireText("note_title", in.NoteTitle); err != nil {
		return "", err
	}
	notes = s.refs(s.app.Graph.Backlinks(in.NoteTitle))
	return FormatNoteList(fmt.Sprintf("Notes linking to \"%s\"", in.NoteTitle),
		fmt.Sprintf("No notes link to \"%s\"", in.NoteTitle), notes), nil
}

// GetForwardLinks lists the notes a note links to.
func (s *Server) GetForwardLinks(_ context.Context, in NoteTitleInput) (out string, err error) {
	start := time.Now()
	var notes []NoteRef
	defer func() { s.track(ToolGetForwardLinks, in.NoteTitle, start, len(notes), err) }()

	if err := requireText("note_title", in.NoteTitle); err != nil {
		return "", err
	}
	if _, ok := s.app.Graph.ResolveTitle(in.NoteTitle); !ok {
		return "", nerrors.NotFoundError(in.NoteTitle)
	}
	notes = s.refs(s.app.Graph.ForwardLinks(in.NoteTitle))
	return FormatNoteList(fmt.Sprintf("Links from \"%s\"", in.NoteTitle),
		fmt.Sprintf("\"%s\" links to no notes", in.NoteTitle), notes), nil
}

// GetOrphans lists notes without links in either direction.
func (s *Server) GetOrphans(_ context.Context, _ EmptyInput) (out string, err error) {
	start := time.Now()
	var notes []NoteRef
	defer func() { s.track(ToolGetOrphans, "", start, len(notes), err) }()

	notes = s.refs(s.app.Graph.Orphans())
	return FormatNoteList("Orphaned notes", "No orphaned notes", notes), nil
}

// refs resolves titles to listing entries. Unknown titles are marked missing.
func (s *Server) refs(titles []string) []NoteRef {
	out := make([]NoteRef, 0, len(titles))
	for _, t := range titles {
		path, ok := s.app.Graph.ResolveTitle(t)
		if !ok {
			out = append(out, NoteRef{Title: t, Missing: true})
			continue
		}
		e, _ := s.app.Graph.Get(path)
		out = append(out, NoteRef{Title: t, Folder: e.Folder, Path: s.app.Rules.Rel(path), Tags: e.Tags})
	}
	return out
}

// GetVaultStats summarises the index.
func (s *Server) GetVaultStats(_ context.Context, _ EmptyInput) (out string, err error) {
	start := time.Now()
	defer func() { s.track(ToolGetVaultStats, "", start, 1, err) }()

	vs := VaultStats{
		IndexedNotes: s.app.Ledger.Len(),
		LastUpdate:   s.app.Ledger.LastUpdate(),
		Folders:      make(map[string]int),
		Network:      s.app.Graph.Stats(),
		Totals:       s.app.Stats.Totals(),
	}
	for _, p := range s.app.Ledger.Paths() {
		vs.Folders[document.FolderOf(s.app.Rules.Rel(p))]++
	}
	tags := s.app.Graph.AllTags()
	if len(tags) > topTagCount {
		tags = tags[:topTagCount]
	}
	vs.TopTags = tags
	return FormatVaultStats(vs), nil
}

// UpdateIndex runs an index transaction now.
func (s *Server) UpdateIndex(ctx context.Context, _ EmptyInput) (out string, err error) {
	start := time.Now()
	changed := 0
	defer func() { s.track(ToolUpdateIndex, "", start, changed, err) }()

	res, err := s.app.Indexer.UpdateIndex(ctx)
	if err != nil {
		return "", err
	}
	changed = res.Changes.Total()
	return FormatUpdateResult(res), nil
}

// PackContext packages a note and its neighbourhood into a token budget.
func (s *Server) PackContext(ctx context.Context, in PackContextInput) (out string, err error) {
	start := time.Now()
	count := 0
	defer func() { s.track(ToolPackContext, in.NoteTitle, start, count, err) }()

	if err := requireText("note_title", in.NoteTitle); err != nil {
		return "", err
	}

	opts := s.app.ContextOptions()
	setBool(&opts.IncludeBacklinks, in.IncludeBacklinks)
	setBool(&opts.IncludeForwardLinks, in.IncludeForwardLinks)
	setBool(&opts.IncludeSemantic, in.IncludeSemantic)
	setBool(&opts.IncludeTagRelated, in.IncludeTagRelated)
	setInt(&opts.MaxBacklinks, in.MaxBacklinks)
	setInt(&opts.MaxForwardLinks, in.MaxForwardLinks)
	setInt(&opts.MaxSemantic, in.MaxSemanticRelated)
	setInt(&opts.MaxTagRelated, in.MaxTagRelated)

	bundle, err := s.app.PackContext(ctx, in.NoteTitle, opts, in.MaxTokens)
	if err != nil {
		return "", err
	}
	count = bundle.Count()
	return assemble.Markdown(bundle, assemble.RenderOptions{Metadata: true, Links: true}), nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// QueryRecent lists recently modified notes.
func (s *Server) QueryRecent(_ context.Context, in QueryRecentInput) (out string, err error) {
	start := time.Now()
	found := 0
	defer func() { s.track(ToolQueryRecent, in.Folder, start, found, err) }()

	days := in.Days
	if days <= 0 {
		days = defaultRecentDays
	}
	entries := s.app.Stats.ByTimeframe(days, in.Folder)
	found = len(entries)
	return FormatRecent(days, in.Folder, entries), nil
}

// Serve runs the server on transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
