package tools

import (
	"context"

	"github.com/i2y/interpreter/llm"
)

// RunCodeName is the name of the single function the model may call.
const RunCodeName = "run_code"

// DefaultMaxOutputChars is the output budget when the caller sets none.
const DefaultMaxOutputChars = 2000

// RunCodeDescription is the function description sent to the model.
const RunCodeDescription = "Executes code in a stateful Python session, capturing prints, return values, terminal outputs, and tracebacks."

// RunCodeInput defines the input for the run_code tool.
type RunCodeInput struct {
	Code string `json:"code" jsonschema:"required,description=The code to execute as a JSON decodable string. Standard Python; variables and imports persist between calls."`
	// MaxOutputChars is injected by the dispatcher and never offered to the model.
	MaxOutputChars int `json:"max_output_chars,omitempty" jsonschema:"-"`
}

// RunCodeTool returns the run_code tool backed by runner.
func RunCodeTool(runner CodeRunner) (llm.Tool, error) {
	return llm.NewTool(
		RunCodeName,
		RunCodeDescription,
		func(ctx context.Context, in RunCodeInput) (string, error) {
			limit := in.MaxOutputChars
			if limit <= 0 {
				limit = DefaultMaxOutputChars
			}
			return runner.Run(ctx, in.Code, limit)
		},
	)
}

// MustRunCode returns the run_code tool, panicking on error.
func MustRunCode(runner CodeRunner) llm.Tool {
	tool, err := RunCodeTool(runner)
	if err != nil {
		panic(err)
	}
	return tool
}
