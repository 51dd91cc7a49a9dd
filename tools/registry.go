// Package tools provides the functions the model can call and the
// Python backends that run them.
package tools

import "github.com/i2y/interpreter/llm"

// AllTools returns every built-in tool backed by runner.
func AllTools(runner CodeRunner) []llm.Tool {
	return []llm.Tool{
		MustRunCode(runner),
	}
}

// NewRegistry returns a registry holding AllTools.
func NewRegistry(runner CodeRunner) *llm.ToolRegistry {
	return llm.NewToolRegistry(AllTools(runner)...)
}
