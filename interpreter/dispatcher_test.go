package interpreter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/interpreter/llm"
	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/tools"
)

// countingRunner records every execution.
type countingRunner struct {
	codes  []string
	limits []int
	output string
	err    error
	events *[]string
}

func (r *countingRunner) Run(_ context.Context, code string, maxOutputChars int) (string, error) {
	r.codes = append(r.codes, code)
	r.limits = append(r.limits, maxOutputChars)
	if r.events != nil {
		*r.events = append(*r.events, "run")
	}
	if r.err != nil {
		return "", r.err
	}
	if r.output != "" {
		return r.output, nil
	}
	return "ran " + code, nil
}

type shellInput struct {
	Code string `json:"code"`
}

// shellTool echoes its code back.
func shellTool() llm.Tool {
	return llm.MustNewTool("shell", "Runs a shell command.",
		func(_ context.Context, in shellInput) (string, error) {
			return "shell:" + in.Code, nil
		})
}

func newTestDispatcher(runner tools.CodeRunner, opts ...DispatcherOption) *Dispatcher {
	opts = append([]DispatcherOption{WithDispatchLogger(discardLogger())}, opts...)
	return NewDispatcher(tools.NewRegistry(runner), opts...)
}

func TestDispatcher_Arguments(t *testing.T) {
	tests := []struct {
		name      string
		arguments string
		wantCode  string
	}{
		{name: "json object", arguments: `{"code": "1+1"}`, wantCode: "1+1"},
		{name: "escaped code", arguments: `{"code": "print(\"hi\")\nx = 1"}`, wantCode: "print(\"hi\")\nx = 1"},
		{name: "not json", arguments: `not valid json at all`, wantCode: `not valid json at all`},
		{name: "bare code", arguments: "import os\nprint(os.getcwd())", wantCode: "import os\nprint(os.getcwd())"},
		{name: "truncated json", arguments: `{"code": "print(1`, wantCode: `{"code": "print(1`},
		{name: "json string", arguments: `"print(1)"`, wantCode: `"print(1)"`},
		{name: "json null", arguments: `null`, wantCode: `null`},
		{name: "json array", arguments: `["a"]`, wantCode: `["a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &countingRunner{}
			d := newTestDispatcher(runner)

			msg, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "run_code", Arguments: tt.arguments})
			require.NoError(t, err)

			require.Len(t, runner.codes, 1, "function must run exactly once")
			assert.Equal(t, tt.wantCode, runner.codes[0])
			assert.Equal(t, llm.FunctionMessage("run_code", "ran "+tt.wantCode), msg)
		})
	}
}

func TestDispatcher_InjectsMaxOutputChars(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		runner := &countingRunner{}
		_, err := newTestDispatcher(runner).Dispatch(context.Background(),
			provider.FunctionCall{Name: "run_code", Arguments: `{"code": "x"}`})
		require.NoError(t, err)
		assert.Equal(t, []int{2000}, runner.limits)
	})

	t.Run("configured value overrides the model", func(t *testing.T) {
		runner := &countingRunner{}
		_, err := newTestDispatcher(runner, WithDispatchMaxOutputChars(50)).Dispatch(context.Background(),
			provider.FunctionCall{Name: "run_code", Arguments: `{"code": "x", "max_output_chars": 999999}`})
		require.NoError(t, err)
		assert.Equal(t, []int{50}, runner.limits)
	})
}

func TestDispatcher_UnknownName(t *testing.T) {
	t.Run("coerced to run_code", func(t *testing.T) {
		runner := &countingRunner{}
		d := newTestDispatcher(runner)

		msg, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "python", Arguments: `print(1)`})
		require.NoError(t, err)

		assert.Equal(t, []string{"print(1)"}, runner.codes)
		assert.Equal(t, "run_code", msg.Name)
	})

	t.Run("strict", func(t *testing.T) {
		runner := &countingRunner{}
		d := newTestDispatcher(runner, WithStrictNames())

		_, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "python", Arguments: `print(1)`})

		var notFound *llm.ToolNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "python", notFound.Name)
		assert.Empty(t, runner.codes)
	})

	t.Run("custom fallback", func(t *testing.T) {
		runner := &countingRunner{}
		registry := tools.NewRegistry(runner)
		registry.Register(shellTool())
		d := NewDispatcher(registry, WithDispatchFallback("shell"), WithDispatchLogger(discardLogger()))

		msg, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "bash", Arguments: "ls"})
		require.NoError(t, err)

		assert.Empty(t, runner.codes)
		assert.Equal(t, llm.FunctionMessage("shell", "shell:ls"), msg)
	})

	t.Run("missing fallback", func(t *testing.T) {
		d := NewDispatcher(llm.NewToolRegistry(), WithDispatchLogger(discardLogger()))

		_, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "python"})

		var notFound *llm.ToolNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "run_code", notFound.Name)
	})
}

func TestDispatcher_Resolve(t *testing.T) {
	d := newTestDispatcher(&countingRunner{})

	got, err := d.Resolve("run_code")
	require.NoError(t, err)
	assert.Equal(t, "run_code", got)

	got, err = d.Resolve("functions.execute")
	require.NoError(t, err)
	assert.Equal(t, "run_code", got)
}

func TestDispatcher_Approver(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		runner := &countingRunner{}
		var asked []string
		d := newTestDispatcher(runner, WithCallApprover(ApproverFunc(func(_ context.Context, name, code string) (bool, error) {
			asked = append(asked, name+":"+code)
			return false, nil
		})))

		msg, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "run_code", Arguments: `{"code": "rm -rf /tmp/x"}`})
		require.NoError(t, err)

		assert.Equal(t, []string{"run_code:rm -rf /tmp/x"}, asked)
		assert.Empty(t, runner.codes)
		assert.Equal(t, llm.FunctionMessage("run_code", DeclinedOutput), msg)
	})

	t.Run("approved", func(t *testing.T) {
		runner := &countingRunner{}
		d := newTestDispatcher(runner, WithCallApprover(ApproverFunc(func(context.Context, string, string) (bool, error) {
			return true, nil
		})))

		_, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "run_code", Arguments: `{"code": "1"}`})
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, runner.codes)
	})

	t.Run("error", func(t *testing.T) {
		cause := errors.New("input closed")
		runner := &countingRunner{}
		d := newTestDispatcher(runner, WithCallApprover(ApproverFunc(func(context.Context, string, string) (bool, error) {
			return false, cause
		})))

		_, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "run_code", Arguments: `{"code": "1"}`})
		assert.ErrorIs(t, err, cause)
		assert.Empty(t, runner.codes)
	})
}

func TestDispatcher_RunnerFailureBecomesOutput(t *testing.T) {
	runner := &countingRunner{err: errors.New(`exec: "python3": executable file not found in $PATH`)}
	d := newTestDispatcher(runner)

	msg, err := d.Dispatch(context.Background(), provider.FunctionCall{Name: "run_code", Arguments: `{"code": "1"}`})
	require.NoError(t, err)

	assert.Equal(t, provider.RoleFunction, msg.Role)
	assert.Contains(t, msg.Content, "Error:")
	assert.Contains(t, msg.Content, "python3")
}
