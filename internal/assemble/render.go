package assemble

import (
	"fmt"
	"strings"
)

var sectionTitles = map[Section]string{
	SectionPrimary:      "Primary Note",
	SectionBacklinks:    "Backlinks",
	SectionForwardLinks: "Forward Links",
	SectionSemantic:     "Semantically Related",
	SectionTagRelated:   "Tag Related",
}

// RenderOptions controls Markdown output.
type RenderOptions struct {
	Metadata bool
	Links    bool
}

// maxRenderedLinks caps the link line of each note.
const maxRenderedLinks = 5

// Markdown renders a bundle with one header per non-empty section.
func Markdown(b *Bundle, opts RenderOptions) string {
	var sb strings.Builder
	sb.WriteString("# Context Package\n\n")
	fmt.Fprintf(&sb, "**Focus**: %s  \n", b.Focus)
	fmt.Fprintf(&sb, "**Total Notes**: %d  \n", b.Count())
	if b.MaxTokens > 0 {
		fmt.Fprintf(&sb, "**Tokens**: %d / %d  \n", b.TokensUsed, b.MaxTokens)
	}
	sb.WriteString("\n---\n")

	for _, section := range AllSections {
		notes := b.Sections[section]
		if len(notes) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s (%d)\n", sectionTitles[section], len(notes))

		for i, n := range notes {
			fmt.Fprintf(&sb, "\n### %d. %s\n\n", i+1, n.Title)
			if opts.Metadata {
				fmt.Fprintf(&sb, "**Path**: `%s`  \n", n.Path)
				fmt.Fprintf(&sb, "**Folder**: %s  \n", n.Folder)
				if len(n.Tags) > 0 {
					tags := make([]string, len(n.Tags))
					for j, t := range n.Tags {
						tags[j] = "#" + t
					}
					fmt.Fprintf(&sb, "**Tags**: %s  \n", strings.Join(tags, ", "))
				}
				if section == SectionSemantic {
					fmt.Fprintf(&sb, "**Similarity**: %.3f  \n", n.Score)
				}
				if n.Trimmed {
					sb.WriteString("**Note**: content trimmed to fit the token budget  \n")
				}
			}
			if opts.Links && len(n.Links) > 0 {
				links := head(n.Links, maxRenderedLinks)
				wrapped := make([]string, len(links))
				for j, l := range links {
					wrapped[j] = "[[" + l + "]]"
				}
				fmt.Fprintf(&sb, "**Links**: %s  \n", strings.Join(wrapped, ", "))
			}
			sb.WriteString("\n---\n")
			sb.WriteString(n.Content)
			if !strings.HasSuffix(n.Content, "\n") {
				sb.WriteString("\n")
			}
			sb.WriteString("---\n")
		}
	}
	return sb.String()
}
