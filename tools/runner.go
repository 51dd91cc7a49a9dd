package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultCommand runs the code as a one-off Python program. The code is
// appended as the last argument.
var DefaultCommand = []string{"python3", "-c"}

// DefaultTimeout bounds a single execution.
const DefaultTimeout = 2 * time.Minute

// outputGrace bounds how long output is still read after the process
// exits or is killed.
const outputGrace = 500 * time.Millisecond

// CodeRunner executes code and returns its captured output.
type CodeRunner interface {
	Run(ctx context.Context, code string, maxOutputChars int) (string, error)
}

// Runner executes each piece of code in a new subprocess, so nothing
// carries over between runs. The zero value runs DefaultCommand with
// DefaultTimeout in the current directory. Session keeps state instead.
type Runner struct {
	Command []string
	Timeout time.Duration
	Dir     string
	Env     []string // appended to the parent environment when set

	// Echo, when set, receives the output while it is produced.
	Echo io.Writer
}

// Run executes code and returns stdout and stderr merged in arrival order,
// truncated to the last maxOutputChars characters. A non-zero exit status
// or a timeout is reported in the output. An error is returned only when
// the process cannot be started.
func (r *Runner) Run(ctx context.Context, code string, maxOutputChars int) (string, error) {
	command := r.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, command[1:]...), code)
	cmd := exec.CommandContext(execCtx, command[0], args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	// The same writer for both streams gives the child a single pipe, so
	// output keeps its order. Children that inherit the pipe and outlive
	// the process are cut off after outputGrace.
	out := &mergedOutput{echo: r.Echo}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = outputGrace

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start %s: %w", command[0], err)
	}
	waitErr := cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case killed(cmd) && errors.Is(execCtx.Err(), context.DeadlineExceeded):
		out.note(fmt.Sprintf("Execution timed out after %s.", timeout))
	case ctx.Err() != nil:
		return out.String(), ctx.Err()
	case errors.As(waitErr, &exitErr):
		out.note(fmt.Sprintf("Exit code: %d", exitErr.ExitCode()))
	case waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay):
		return "", fmt.Errorf("failed to execute code: %w", waitErr)
	}

	return Truncate(out.String(), maxOutputChars), nil
}

// killed reports whether the process ended by a signal rather than exiting.
func killed(cmd *exec.Cmd) bool {
	return cmd.ProcessState != nil && !cmd.ProcessState.Exited()
}

// mergedOutput collects the output of both streams in arrival order.
type mergedOutput struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	echo io.Writer
}

func (m *mergedOutput) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.echo != nil {
		_, _ = m.echo.Write(p)
	}
	return m.buf.Write(p)
}

func (m *mergedOutput) note(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.WriteString(noteSeparator(m.buf.Bytes()) + line)
}

func (m *mergedOutput) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}
