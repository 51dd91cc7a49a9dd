package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultPython is the interpreter a Session starts.
const DefaultPython = "python3"

// exitGrace bounds how long output is still collected after the session
// process exits.
const exitGrace = 100 * time.Millisecond

// sessionDriver runs inside the Python process. It reads one JSON encoded
// program per line and executes it in a namespace that lives as long as
// the process. A trailing expression is echoed the way the interactive
// prompt does. The marker passed as the first argument ends each run.
const sessionDriver = `
import ast, json, sys, traceback
marker = sys.argv[1]
namespace = {"__name__": "__main__", "__builtins__": __builtins__}
for line in sys.stdin:
    try:
        tree = ast.parse(json.loads(line), "<run_code>")
        last = None
        if tree.body and isinstance(tree.body[-1], ast.Expr):
            last = ast.Expression(tree.body.pop().value)
        exec(compile(tree, "<run_code>", "exec"), namespace)
        if last is not None:
            value = eval(compile(last, "<run_code>", "eval"), namespace)
            if value is not None:
                print(repr(value))
    except SystemExit:
        raise
    except BaseException:
        traceback.print_exc()
    sys.stdout.flush()
    sys.stderr.flush()
    sys.stdout.write(marker + "\n")
    sys.stdout.flush()
`

// Session runs code in one long-lived Python process, so variables,
// imports and definitions carry over between runs. The process starts on
// the first Run and again after it exits or is stopped by a timeout, which
// resets the state. Runs are serialized.
type Session struct {
	Python  string // DefaultPython when empty
	Timeout time.Duration
	Dir     string
	Env     []string // appended to the parent environment when set

	// Echo, when set, receives the output while it is produced.
	Echo   io.Writer
	Logger *slog.Logger

	mu   sync.Mutex
	proc *sessionProcess
}

var _ CodeRunner = (*Session)(nil)

// Run executes code in the session and returns stdout and stderr merged in
// arrival order, truncated to the last maxOutputChars characters.
// Exceptions, an exiting process and timeouts are reported in the output.
// An error is returned only when the process cannot be started or ctx is
// done.
func (s *Session) Run(ctx context.Context, code string, maxOutputChars int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	line, err := json.Marshal(code)
	if err != nil {
		return "", fmt.Errorf("encoding code: %w", err)
	}
	line = append(line, '\n')

	p, err := s.send(line)
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	out := &sessionOutput{marker: p.marker, echo: s.Echo}
	chunks := p.chunks
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if out.add(chunk) {
				return Truncate(out.String(), maxOutputChars), nil
			}

		case <-p.exited:
			p.drain(out)
			status := p.exitCode()
			s.discard()
			s.logger().Debug("python session exited", "exit_code", status)
			out.note(fmt.Sprintf("Exit code: %d", status))
			return Truncate(out.String(), maxOutputChars), nil

		case <-timer.C:
			s.discard()
			out.note(fmt.Sprintf("Execution timed out after %s.", timeout))
			return Truncate(out.String(), maxOutputChars), nil

		case <-ctx.Done():
			s.discard()
			return out.String(), ctx.Err()
		}
	}
}

// send writes line to the session, starting a process when none is running.
// A process that died since the last run is replaced once.
func (s *Session) send(line []byte) (*sessionProcess, error) {
	for attempt := 0; ; attempt++ {
		if s.proc != nil {
			select {
			case <-s.proc.exited:
				s.discard()
			default:
			}
		}
		if s.proc == nil {
			p, err := s.start()
			if err != nil {
				return nil, err
			}
			s.proc = p
		}

		_, err := s.proc.stdin.Write(line)
		if err == nil {
			return s.proc, nil
		}
		s.discard()
		if attempt > 0 {
			return nil, fmt.Errorf("writing to python session: %w", err)
		}
	}
}

// Close stops the session process. A later Run starts a new one.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discard()
	return nil
}

func (s *Session) discard() {
	if s.proc != nil {
		s.proc.stop()
		s.proc = nil
	}
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Session) start() (*sessionProcess, error) {
	python := s.Python
	if python == "" {
		python = DefaultPython
	}
	marker := "__run_code_done_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"

	cmd := exec.Command(python, "-u", "-c", sessionDriver, marker)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// One pipe for both streams keeps their order.
	output, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = output.Close()
		_ = w.Close()
		return nil, fmt.Errorf("failed to start %s: %w", python, err)
	}
	_ = w.Close()

	p := &sessionProcess{
		cmd:     cmd,
		stdin:   stdin,
		output:  output,
		marker:  []byte(marker + "\n"),
		chunks:  make(chan []byte, 16),
		exited:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	p.g.Go(p.read)
	p.g.Go(func() error {
		p.waitErr = cmd.Wait()
		close(p.exited)
		return nil
	})

	s.logger().Debug("python session started", "python", python, "pid", cmd.Process.Pid)
	return p, nil
}

// sessionProcess is one running Python process.
type sessionProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	output *os.File
	marker []byte

	chunks  chan []byte
	exited  chan struct{}
	waitErr error

	stopped  chan struct{}
	stopOnce sync.Once
	g        errgroup.Group
}

func (p *sessionProcess) read() error {
	defer close(p.chunks)
	buf := make([]byte, 32*1024)
	for {
		n, err := p.output.Read(buf)
		if n > 0 {
			select {
			case p.chunks <- bytes.Clone(buf[:n]):
			case <-p.stopped:
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// drain collects what is left in the pipe after the process exited.
// Children holding the pipe open do not delay it past exitGrace.
func (p *sessionProcess) drain(out *sessionOutput) {
	grace := time.NewTimer(exitGrace)
	defer grace.Stop()
	for {
		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				return
			}
			out.add(chunk)
		case <-grace.C:
			return
		}
	}
}

func (p *sessionProcess) exitCode() int {
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if p.cmd.ProcessState != nil {
		return p.cmd.ProcessState.ExitCode()
	}
	return -1
}

// stop kills the process and waits for its goroutines.
func (p *sessionProcess) stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
		_ = p.stdin.Close()
		_ = p.cmd.Process.Kill()
		_ = p.output.Close()
	})
	_ = p.g.Wait()
}

// sessionOutput accumulates the output of one run up to the marker.
type sessionOutput struct {
	marker []byte
	echo   io.Writer
	buf    bytes.Buffer
	echoed int
}

// add appends chunk and reports whether the marker arrived. The marker and
// anything after it are dropped.
func (o *sessionOutput) add(chunk []byte) bool {
	o.buf.Write(chunk)
	if i := bytes.Index(o.buf.Bytes(), o.marker); i >= 0 {
		o.buf.Truncate(i)
		o.flushEcho(i)
		return true
	}
	// Hold back what could be the start of the marker.
	o.flushEcho(o.buf.Len() - len(o.marker) + 1)
	return false
}

func (o *sessionOutput) flushEcho(upto int) {
	if upto <= o.echoed {
		return
	}
	if o.echo != nil {
		_, _ = o.echo.Write(o.buf.Bytes()[o.echoed:upto])
	}
	o.echoed = upto
}

func (o *sessionOutput) note(line string) {
	o.flushEcho(o.buf.Len())
	o.buf.WriteString(noteSeparator(o.buf.Bytes()) + line)
}

func (o *sessionOutput) String() string {
	return o.buf.String()
}

// noteSeparator starts a notice on its own line.
func noteSeparator(out []byte) string {
	if len(out) > 0 && !bytes.HasSuffix(out, []byte("\n")) {
		return "\n"
	}
	return ""
}
