package output

import "github.com/charmbracelet/lipgloss"

// Terminal palette.
const (
	ColorLime   = "154"
	ColorGray   = "245"
	ColorRed    = "196"
	ColorYellow = "220"
)

// Styles colours terminal output. Plain writers never apply them.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
}

// DefaultStyles returns the terminal styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

func (w *Writer) style(i Icon, msg string) string {
	if !w.fancy {
		return msg
	}
	switch i {
	case IconSuccess:
		return w.styles.Success.Render(msg)
	case IconWarning:
		return w.styles.Warning.Render(msg)
	case IconError:
		return w.styles.Error.Render(msg)
	}
	return msg
}
