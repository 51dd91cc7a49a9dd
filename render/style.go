package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	width int
	title lipgloss.Style
	panel lipgloss.Style
	empty lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, width int) styles {
	return styles{
		width: width,
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1),
		empty: r.NewStyle().
			Faint(true),
	}
}

// codePanel frames code under the function name.
func (s styles) codePanel(name, code string) string {
	var b strings.Builder
	if name != "" {
		b.WriteString(s.title.Render(name))
		b.WriteByte('\n')
	}

	body := strings.TrimRight(code, "\n")
	if body == "" {
		body = s.empty.Render("...")
	}
	// Width excludes the border.
	b.WriteString(s.panel.Width(s.width - 2).Render(body))
	b.WriteByte('\n')
	return b.String()
}

// Markdown renders text once, outside any turn. It falls back to the
// plain text when no markdown renderer can be built.
func Markdown(markdown string, opts ...Option) string {
	s := settings{width: DefaultWidth}
	for _, opt := range opts {
		opt(&s)
	}
	md, err := newMarkdown(s.style, s.width)
	if err != nil {
		return markdown
	}
	rendered, err := md.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

func newMarkdown(style string, width int) (*glamour.TermRenderer, error) {
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	return glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
}
