package output

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles colours output for one writer. Writers that are not colour-capable
// terminals (pipes, files, buffers) get the text unchanged.
type Styles struct {
	done  func(string) string
	due   func(string) string
	tag   func(string) string
	muted func(string) string
	label func(string) string
	err   func(string) string
}

// NewStyles detects the colour profile of w. NO_COLOR disables styling.
func NewStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		r.SetColorProfile(termenv.Ascii)
	}
	if r.ColorProfile() == termenv.Ascii {
		return Plain()
	}

	paint := func(s lipgloss.Style) func(string) string {
		return func(text string) string { return s.Render(text) }
	}
	return &Styles{
		done:  paint(r.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true)),
		due:   paint(r.NewStyle().Foreground(lipgloss.Color("3"))),
		tag:   paint(r.NewStyle().Foreground(lipgloss.Color("6"))),
		muted: paint(r.NewStyle().Faint(true)),
		label: paint(r.NewStyle().Bold(true)),
		err:   paint(r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)),
	}
}

// Plain returns styles that leave text unchanged.
func Plain() *Styles {
	same := func(s string) string { return s }
	return &Styles{done: same, due: same, tag: same, muted: same, label: same, err: same}
}
