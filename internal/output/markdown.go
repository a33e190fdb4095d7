package output

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/term"
)

// DefaultTermWidth is the wrap width when the terminal size is unknown.
const DefaultTermWidth = 100

// RenderMarkdown renders markdown for terminal display wrapped at width.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = DefaultTermWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	rendered, err := r.Render(content)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n") + "\n", nil
}

// termWidth returns the width of the terminal behind the writer, or 0.
func (w *Writer) termWidth() int {
	f, ok := w.out.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(f.Fd())
	if err != nil {
		return 0
	}
	return width
}

// Markdown prints md, rendered for the terminal when the writer is fancy.
// Rendering failures fall back to the raw text.
func (w *Writer) Markdown(md string) {
	md = strings.TrimRight(md, "\n") + "\n"
	if w.fancy {
		if rendered, err := RenderMarkdown(md, w.termWidth()); err == nil {
			w.Raw(rendered)
			return
		}
	}
	w.Raw(md)
}
