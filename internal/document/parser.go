package document

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// RootFolder is the folder reported for notes directly under the vault root.
const RootFolder = "root"

var inlineTagPattern = regexp.MustCompile(`#([^\s#]+)`)

// Parser reads note files under a vault root.
type Parser struct {
	root string
	md   parser.Parser
}

// NewParser creates a parser for notes under root.
func NewParser(root string) *Parser {
	return &Parser{
		root: filepath.Clean(root),
		md:   goldmark.New().Parser(),
	}
}

// Parse reads and parses the note at path. Only read and stat failures are
// errors; malformed front matter degrades to plain text.
func (p *Parser) Parse(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := p.ParseContent(path, content)
	doc.ModTime = info.ModTime()
	doc.Size = info.Size()
	return doc, nil
}

// ParseContent parses content as if it were read from path.
// ModTime and Size are left for the caller.
func (p *Parser) ParseContent(path string, content []byte) *Document {
	rel := p.rel(path)
	doc := &Document{
		Path:    path,
		RelPath: rel,
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Folder:  FolderOf(rel),
	}

	meta, body, err := SplitFrontMatter(string(content))
	if err != nil {
		slog.Warn("front matter unreadable, treating note as plain text",
			slog.String("path", path), slog.String("error", err.Error()))
	}
	if meta == nil {
		meta = map[string]any{}
	}
	doc.FrontMatter = meta
	doc.Body = body
	doc.Links, doc.Aliases = ExtractWikiLinks(body)

	headings, inline := p.walkMarkdown([]byte(body))
	doc.Headings = headings
	doc.Tags = MergeTags(inline, FrontMatterTags(meta))
	return doc
}

// FolderOf returns the first segment of a vault-relative path, or RootFolder
// for top-level notes.
func FolderOf(rel string) string {
	rel = filepath.ToSlash(rel)
	if i := strings.Index(rel, "/"); i > 0 {
		return rel[:i]
	}
	return RootFolder
}

// MergeTags unions tag lists into a sorted set. Tags are case-sensitive.
func MergeTags(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, t := range list {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

func (p *Parser) rel(path string) string {
	rel, err := filepath.Rel(p.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Base(path))
	}
	return filepath.ToSlash(rel)
}

// walkMarkdown collects headings and inline tags. Text inside code spans,
// code blocks and raw HTML is ignored for tags.
func (p *Parser) walkMarkdown(body []byte) ([]Heading, []string) {
	root := p.md.Parse(text.NewReader(body))

	var headings []Heading
	var prose strings.Builder

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				prose.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.CodeSpan, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			if t := strings.TrimSpace(inlineText(node, body)); t != "" {
				headings = append(headings, Heading{Level: node.Level, Text: t})
			}
		case *ast.Text:
			prose.Write(node.Segment.Value(body))
			if node.SoftLineBreak() || node.HardLineBreak() {
				prose.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	// [[Note#Section]] is a link, not a tag.
	cleaned := WikiLinkPattern.ReplaceAllString(prose.String(), " ")

	var tags []string
	for _, m := range inlineTagPattern.FindAllStringSubmatch(cleaned, -1) {
		tags = append(tags, m[1])
	}
	return headings, tags
}

// inlineText concatenates the text and code span content below n.
func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
