package mcp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/notemesh/internal/index"
	"github.com/Aman-CERP/notemesh/internal/linkgraph"
	"github.com/Aman-CERP/notemesh/internal/stats"
	"github.com/Aman-CERP/notemesh/internal/store"
)

// snippetChars bounds passage previews.
const snippetChars = 200

// NoteRef is a note in a listing.
type NoteRef struct {
	Title  string
	Folder string
	Path   string
	Tags   []string
	// Missing marks a link whose target note does not exist.
	Missing bool
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "none"
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return strings.Join(out, ", ")
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= snippetChars {
		return text
	}
	return string(runes[:snippetChars]) + "..."
}

// FormatSearchResults formats similarity hits.
func FormatSearchResults(query string, hits []store.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %s\n\n", plural(len(hits), "result")))
	for i, h := range hits {
		sb.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, h.Chunk.Title))
		sb.WriteString(fmt.Sprintf("**Folder**: %s  \n", h.Chunk.Folder))
		sb.WriteString(fmt.Sprintf("**Score**: %.3f  \n", h.Score))
		sb.WriteString(fmt.Sprintf("**Tags**: %s\n\n", formatTags(h.Chunk.Tags)))
		sb.WriteString("> ")
		sb.WriteString(strings.ReplaceAll(snippet(h.Chunk.Text), "\n", "\n> "))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// FormatRelated formats notes similar to title.
func FormatRelated(title string, hits []store.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No notes related to \"%s\"", title)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Notes Related to \"%s\"\n\n", title))
	for i, h := range hits {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s, %.3f)\n", i+1, h.Chunk.Title, h.Chunk.Folder, h.Score))
		sb.WriteString(fmt.Sprintf("   %s\n", strings.ReplaceAll(snippet(h.Chunk.Text), "\n", " ")))
	}
	return sb.String()
}

// FormatNote formats a whole note.
func FormatNote(title, folder string, tags, links []string, content string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	sb.WriteString(fmt.Sprintf("**Folder**: %s  \n", folder))
	sb.WriteString(fmt.Sprintf("**Tags**: %s  \n", formatTags(tags)))
	if len(links) > 0 {
		wrapped := make([]string, len(links))
		for i, l := range links {
			wrapped[i] = "[[" + l + "]]"
		}
		sb.WriteString(fmt.Sprintf("**Links**: %s  \n", strings.Join(wrapped, ", ")))
	}
	sb.WriteString("\n---\n\n")
	sb.WriteString(content)
	return sb.String()
}

// FormatNoteList formats a titled listing of notes.
func FormatNoteList(heading, empty string, notes []NoteRef) string {
	if len(notes) == 0 {
		return empty
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s (%d)\n\n", heading, len(notes)))
	for i, n := range notes {
		if n.Missing {
			sb.WriteString(fmt.Sprintf("%d. **%s** (not created yet)\n", i+1, n.Title))
			continue
		}
		sb.WriteString(fmt.Sprintf("%d. **%s**", i+1, n.Title))
		if n.Folder != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", n.Folder))
		}
		sb.WriteString("\n")
		if n.Path != "" {
			sb.WriteString(fmt.Sprintf("   `%s`\n", n.Path))
		}
		if len(n.Tags) > 0 {
			sb.WriteString(fmt.Sprintf("   %s\n", formatTags(n.Tags)))
		}
	}
	return sb.String()
}

// VaultStats is the get_vault_stats payload.
type VaultStats struct {
	IndexedNotes int
	LastUpdate   time.Time
	Folders      map[string]int
	Network      linkgraph.NetworkStats
	TopTags      []linkgraph.TagCount
	Totals       stats.Totals
}

// FormatVaultStats formats vault statistics.
func FormatVaultStats(vs VaultStats) string {
	var sb strings.Builder
	sb.WriteString("## Vault Statistics\n\n")
	sb.WriteString(fmt.Sprintf("**Indexed notes**: %d  \n", vs.IndexedNotes))
	if vs.LastUpdate.IsZero() {
		sb.WriteString("**Last update**: never  \n")
	} else {
		sb.WriteString(fmt.Sprintf("**Last update**: %s  \n", vs.LastUpdate.Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("**Words**: %d  \n", vs.Totals.TotalWords))
	sb.WriteString(fmt.Sprintf("**Estimated tokens**: %d\n\n", vs.Totals.TotalTokensEstimated))

	sb.WriteString("### Folders\n\n")
	folders := make([]string, 0, len(vs.Folders))
	for f := range vs.Folders {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	for _, f := range folders {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", f, vs.Folders[f]))
	}

	sb.WriteString("\n### Link Network\n\n")
	sb.WriteString(fmt.Sprintf("- Notes: %d\n", vs.Network.TotalFiles))
	sb.WriteString(fmt.Sprintf("- Backlinks: %d\n", vs.Network.TotalBacklinks))
	sb.WriteString(fmt.Sprintf("- Orphaned notes: %d\n", vs.Network.OrphanedNotes))

	if len(vs.TopTags) > 0 {
		sb.WriteString("\n### Top Tags\n\n")
		for _, t := range vs.TopTags {
			sb.WriteString(fmt.Sprintf("- #%s: %d\n", t.Tag, t.Count))
		}
	}
	return sb.String()
}

// FormatUpdateResult formats an index transaction.
func FormatUpdateResult(res *index.Result) string {
	var sb strings.Builder
	sb.WriteString("## Index Update\n\n")
	sb.WriteString(fmt.Sprintf("- New: %d\n", len(res.Changes.New)))
	sb.WriteString(fmt.Sprintf("- Modified: %d\n", len(res.Changes.Modified)))
	sb.WriteString(fmt.Sprintf("- Deleted: %d\n\n", len(res.Changes.Deleted)))

	if res.NoOp {
		sb.WriteString("No changes. The index is up to date.")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("Indexed %s in %s.", plural(res.Indexed, "note"), res.Duration.Round(time.Millisecond)))
	if len(res.Skipped) > 0 {
		sb.WriteString(fmt.Sprintf("\n\nSkipped %s that could not be parsed:\n", plural(len(res.Skipped), "note")))
		for _, p := range res.Skipped {
			sb.WriteString(fmt.Sprintf("- `%s`\n", p))
		}
	}
	return sb.String()
}

// FormatRecent formats recently modified notes.
func FormatRecent(days int, folder string, entries []stats.Entry) string {
	scope := ""
	if folder != "" {
		scope = fmt.Sprintf(" in %s", folder)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("No notes modified in the last %d days%s", days, scope)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Modified in the Last %d Days%s (%d)\n\n", days, scope, len(entries)))
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s) %s, %d words\n",
			i+1, e.Title, e.Folder, e.Timestamps.Modified.Format("2006-01-02 15:04"), e.Size.Words))
	}
	return sb.String()
}
