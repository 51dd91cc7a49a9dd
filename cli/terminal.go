package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/i2y/interpreter/interpreter"
)

const approvalPrompt = "  Would you like to run this code? (y/n)\n\n  "

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth is the width of out, or 0 when it is not a terminal.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// lineInput reads user lines. On a terminal it uses liner for line editing
// and persistent history; otherwise it reads plain lines.
type lineInput struct {
	in          io.Reader
	out         io.Writer
	historyFile string

	line  *liner.State
	plain *bufio.Reader
}

var _ interpreter.LineReader = (*lineInput)(nil)

func newLineInput(in io.Reader, out io.Writer, historyFile string) *lineInput {
	return &lineInput{in: in, out: out, historyFile: historyFile}
}

// ReadLine reads one line. Ctrl-C at the prompt ends input like Ctrl-D.
func (l *lineInput) ReadLine(label string) (string, error) {
	if isTerminal(l.in) && isTerminal(l.out) {
		return l.readEdited(label)
	}
	return l.readPlain(label)
}

func (l *lineInput) readEdited(label string) (string, error) {
	if l.line == nil {
		l.line = liner.NewLiner()
		l.line.SetCtrlCAborts(true)
		if f, err := os.Open(l.historyFile); err == nil {
			_, _ = l.line.ReadHistory(f)
			_ = f.Close()
		}
	}

	// liner prompts are single line; earlier lines are printed first.
	if i := strings.LastIndex(label, "\n"); i >= 0 {
		fmt.Fprint(l.out, label[:i+1])
		label = label[i+1:]
	}

	input, err := l.line.Prompt(label)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

func (l *lineInput) readPlain(label string) (string, error) {
	if l.plain == nil {
		l.plain = bufio.NewReader(l.in)
	}
	fmt.Fprint(l.out, label)
	line, err := l.plain.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close saves the input history and restores the terminal.
func (l *lineInput) Close() error {
	if l.line == nil {
		return nil
	}
	defer l.line.Close()

	if err := os.MkdirAll(filepath.Dir(l.historyFile), 0o755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}
	f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, "failed to save input history")
	}
	defer f.Close()

	_, err = l.line.WriteHistory(f)
	return err
}

// secretPrompter asks for the API key without echo when stdin is a
// terminal. Otherwise the key is the next input line.
type secretPrompter struct {
	in    io.Reader
	out   io.Writer
	lines interpreter.LineReader
}

func (p *secretPrompter) PromptSecret(notice, prompt string) (string, error) {
	fmt.Fprintln(p.out, notice)
	fmt.Fprintln(p.out, prompt)

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", errors.Wrap(err, "failed to read API key")
		}
		return string(key), nil
	}

	line, err := p.lines.ReadLine("")
	if err != nil {
		return "", errors.Wrap(err, "failed to read API key")
	}
	return strings.TrimSpace(line), nil
}

// promptApprover asks before each run. Anything but "y" declines, and so
// does the end of input.
type promptApprover struct {
	input interpreter.LineReader
}

func (a *promptApprover) Approve(_ context.Context, _, _ string) (bool, error) {
	answer, err := a.input.ReadLine(approvalPrompt)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.ToLower(strings.TrimSpace(answer)) == "y", nil
}
