// Package output formats CLI status lines and key/value blocks. Icons are
// emoji on a terminal and plain text tags otherwise, so piped output stays
// greppable.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Icon names a status marker.
type Icon int

// Status markers.
const (
	IconNone Icon = iota
	IconSuccess
	IconWarning
	IconError
	IconInfo
	IconSearch
	IconIndex
	IconWatch
)

var fancyIcons = map[Icon]string{
	IconSuccess: "✅",
	IconWarning: "⚠️ ",
	IconError:   "❌",
	IconInfo:    "ℹ️ ",
	IconSearch:  "🔍",
	IconIndex:   "📊",
	IconWatch:   "👀",
}

var plainIcons = map[Icon]string{
	IconSuccess: "[ok]",
	IconWarning: "[warn]",
	IconError:   "[error]",
	IconInfo:    "[info]",
	IconSearch:  "[search]",
	IconIndex:   "[index]",
	IconWatch:   "[watch]",
}

// KV is one line of a key/value block.
type KV struct {
	Key   string
	Value any
}

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	fancy  bool
	styles Styles
}

// New creates a Writer. Emoji icons, colours and rendered markdown are
// used when out is a terminal and NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return &Writer{out: out, fancy: IsTTY(out) && !noColor(), styles: DefaultStyles()}
}

// NewPlain creates a Writer that never prints emoji.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func noColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

func (w *Writer) icon(i Icon) string {
	if i == IconNone {
		return ""
	}
	if w.fancy {
		return fancyIcons[i]
	}
	return plainIcons[i]
}

// Status prints msg after the icon. Write errors are ignored for console
// output.
func (w *Writer) Status(i Icon, msg string) {
	if s := w.icon(i); s != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", s, w.style(i, msg))
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(i Icon, format string, args ...any) {
	w.Status(i, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status(IconSuccess, msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) { w.Statusf(IconSuccess, format, args...) }

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status(IconWarning, msg) }

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) { w.Statusf(IconWarning, format, args...) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status(IconError, msg) }

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) { w.Statusf(IconError, format, args...) }

// Header prints a title underlined to its width.
func (w *Writer) Header(title string) {
	rule := strings.Repeat("=", len([]rune(title)))
	if w.fancy {
		title = w.styles.Header.Render(title)
	}
	_, _ = fmt.Fprintf(w.out, "%s\n%s\n", title, rule)
}

// KeyValues prints pairs with keys padded to a common width, in order.
func (w *Writer) KeyValues(pairs []KV) {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p.Key))
	}
	for _, p := range pairs {
		key := fmt.Sprintf("%-*s", width+1, p.Key+":")
		if w.fancy {
			key = w.styles.Label.Render(key)
		}
		_, _ = fmt.Fprintf(w.out, "  %s  %v\n", key, p.Value)
	}
}

// List prints items as a numbered list. An empty list prints empty.
func (w *Writer) List(items []string, empty string) {
	if len(items) == 0 {
		w.Status(IconNone, empty)
		return
	}
	for i, item := range items {
		_, _ = fmt.Fprintf(w.out, "%4d. %s\n", i+1, item)
	}
}

// Code prints content indented between blank lines.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Raw prints s unchanged.
func (w *Writer) Raw(s string) {
	_, _ = io.WriteString(w.out, s)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
