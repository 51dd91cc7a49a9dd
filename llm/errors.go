package llm

import (
	"errors"
	"fmt"
)

// ErrModelRequired is returned when WithModel is not specified.
var ErrModelRequired = errors.New("model is required: use WithModel option")

// ToolError represents an error during tool execution.
type ToolError struct {
	ToolName string
	Cause    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.ToolName, e.Cause)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// ToolNotFoundError is returned when a tool is not found.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %q", e.Name)
}
