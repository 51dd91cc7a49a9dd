// Package render draws interpreter deltas on a terminal. Assistant text is
// rendered as markdown and function calls as a framed code panel.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/i2y/interpreter/interpreter"
	"github.com/i2y/interpreter/partialjson"
)

// DefaultWidth is the wrap width used when none is configured.
const DefaultWidth = 80

type blockKind int

const (
	blockNone blockKind = iota
	blockMessage
	blockCode
)

// Option configures a Terminal.
type Option func(*settings)

type settings struct {
	width  int
	live   bool
	style  string
	logger *slog.Logger
}

// WithWidth sets the wrap width.
func WithWidth(width int) Option {
	return func(s *settings) {
		if width > 0 {
			s.width = width
		}
	}
}

// WithLive redraws the current block in place on every delta. Only use it
// when the output is a terminal.
func WithLive(live bool) Option {
	return func(s *settings) { s.live = live }
}

// WithStyle selects a glamour standard style ("dark", "light", "notty",
// ...). Empty picks one from the terminal background.
func WithStyle(style string) Option {
	return func(s *settings) { s.style = style }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// Terminal renders one turn. Without live mode each block is written once,
// when it closes.
type Terminal struct {
	out      io.Writer
	settings settings
	markdown *glamour.TermRenderer
	styles   styles

	kind  blockKind
	text  strings.Builder
	name  string
	args  any
	drawn int
}

var _ interpreter.Renderer = (*Terminal)(nil)

// New returns a Terminal writing to out.
func New(out io.Writer, opts ...Option) *Terminal {
	s := settings{width: DefaultWidth, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	t := &Terminal{
		out:      out,
		settings: s,
		styles:   newStyles(lipgloss.NewRenderer(out), s.width),
	}

	md, err := newMarkdown(s.style, s.width)
	if err != nil {
		s.logger.Debug("markdown renderer unavailable, using plain text", "error", err)
	} else {
		t.markdown = md
	}
	return t
}

// Factory returns a RendererFactory producing a fresh Terminal per turn.
func Factory(out io.Writer, opts ...Option) interpreter.RendererFactory {
	return func() interpreter.Renderer { return New(out, opts...) }
}

// ProcessDelta adds d to the current block, opening a new block when the
// delta starts a different kind of output.
func (t *Terminal) ProcessDelta(d interpreter.Delta) {
	switch d.Type {
	case interpreter.DeltaMessage:
		if t.kind != blockMessage {
			t.closeBlock()
			t.kind = blockMessage
		}
		t.text.WriteString(d.Text)

	case interpreter.DeltaFunction:
		if d.Name != "" || t.kind != blockCode {
			t.closeBlock()
			t.kind = blockCode
			t.name = d.Name
		}
		if d.Arguments != nil {
			t.args = partialjson.Fold(t.args, d.Arguments)
		}

	default:
		return
	}

	if t.settings.live {
		t.redraw()
	}
}

// Finalize closes the current block. Calling it again does nothing.
func (t *Terminal) Finalize() {
	t.closeBlock()
}

func (t *Terminal) closeBlock() {
	if t.kind == blockNone {
		return
	}
	if t.settings.live {
		t.redraw()
	} else {
		_, _ = io.WriteString(t.out, t.renderBlock())
	}

	t.kind = blockNone
	t.text.Reset()
	t.name = ""
	t.args = nil
	t.drawn = 0
}

// redraw moves the cursor back over the lines last drawn for this block,
// clears them and draws the block again.
func (t *Terminal) redraw() {
	rendered := t.renderBlock()
	if t.drawn > 0 {
		fmt.Fprintf(t.out, "\x1b[%dF\x1b[J", t.drawn)
	}
	_, _ = io.WriteString(t.out, rendered)
	t.drawn = strings.Count(rendered, "\n")
}

func (t *Terminal) renderBlock() string {
	switch t.kind {
	case blockMessage:
		return t.renderMessage(t.text.String())
	case blockCode:
		return t.styles.codePanel(t.name, t.code())
	}
	return ""
}

func (t *Terminal) renderMessage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if t.markdown != nil {
		rendered, err := t.markdown.Render(text)
		if err == nil {
			return strings.Trim(rendered, "\n") + "\n"
		}
		t.settings.logger.Debug("markdown render failed", "error", err)
	}
	return strings.TrimRight(text, "\n") + "\n"
}

// code is the code argument of the call so far. Arguments without a code
// field are shown as JSON.
func (t *Terminal) code() string {
	switch args := t.args.(type) {
	case nil:
		return ""
	case map[string]any:
		if code, ok := args["code"].(string); ok {
			return code
		}
		if len(args) == 0 {
			return ""
		}
	}
	data, err := json.MarshalIndent(t.args, "", "  ")
	if err != nil {
		return fmt.Sprint(t.args)
	}
	return string(data)
}
