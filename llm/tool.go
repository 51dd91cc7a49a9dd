package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/schema"
)

// Tool represents a function the model can call.
// This interface allows for heterogeneous collections of tools.
type Tool interface {
	// Name returns the function name as seen by the model.
	Name() string

	// Description returns the function description for the model.
	Description() string

	// Parameters returns the JSON schema for the function's arguments.
	Parameters() *jsonschema.Schema

	// Execute runs the tool with the given JSON arguments.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// TypedTool provides type-safe tool creation with auto-generated schema.
// In is the input type, Out is the output type.
type TypedTool[In any, Out any] struct {
	name        string
	description string
	fn          func(ctx context.Context, in In) (Out, error)
	schema      *jsonschema.Schema
}

// NewTool creates a type-safe tool from a function.
// The input type In is used to generate the JSON schema automatically.
//
// Example:
//
//	type RunCodeInput struct {
//	    Code string `json:"code" jsonschema:"required,description=The code to execute"`
//	}
//
//	runCode, err := llm.NewTool("run_code", "Executes code and returns the output.",
//	    func(ctx context.Context, in RunCodeInput) (string, error) {
//	        return runner.Run(ctx, in.Code, 2000)
//	    },
//	)
func NewTool[In any, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
) (*TypedTool[In, Out], error) {
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}

	var zero In
	paramSchema := schema.Reflector.Reflect(&zero)

	return &TypedTool[In, Out]{
		name:        name,
		description: description,
		fn:          fn,
		schema:      paramSchema,
	}, nil
}

// MustNewTool is like NewTool but panics on error.
// Useful for package-level tool definitions.
func MustNewTool[In any, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
) *TypedTool[In, Out] {
	t, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the tool's name.
func (t *TypedTool[In, Out]) Name() string {
	return t.name
}

// Description returns the tool's description.
func (t *TypedTool[In, Out]) Description() string {
	return t.description
}

// Parameters returns the JSON schema for the tool's parameters.
func (t *TypedTool[In, Out]) Parameters() *jsonschema.Schema {
	return t.schema
}

// Execute runs the tool with the given JSON arguments.
// Implements the Tool interface.
func (t *TypedTool[In, Out]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var input In
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool arguments: %w", err)
	}
	return t.fn(ctx, input)
}

// TypedCall provides a type-safe way to call the tool directly.
// This bypasses JSON marshaling when you have the typed input.
func (t *TypedTool[In, Out]) TypedCall(ctx context.Context, input In) (Out, error) {
	return t.fn(ctx, input)
}

// ToolRegistry manages a collection of tools.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{
		tools: make(map[string]Tool),
	}
	r.Register(tools...)
	return r
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(tools ...Tool) {
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools sorted by name.
func (r *ToolRegistry) All() []Tool {
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})
	return tools
}

// Definitions returns the function definitions sent with each request.
func (r *ToolRegistry) Definitions() ([]provider.FunctionDef, error) {
	return definitions(r.All())
}

func definitions(tools []Tool) ([]provider.FunctionDef, error) {
	defs := make([]provider.FunctionDef, 0, len(tools))
	for _, tool := range tools {
		params, err := json.Marshal(tool.Parameters())
		if err != nil {
			return nil, fmt.Errorf("marshaling parameters of %q: %w", tool.Name(), err)
		}
		defs = append(defs, provider.FunctionDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
		})
	}
	return defs, nil
}

// ExecuteFunctionCall runs the named tool and returns its function result
// message. A failing tool is reported in the message content; only an
// unknown name is returned as an error.
func ExecuteFunctionCall(ctx context.Context, registry *ToolRegistry, name string, args json.RawMessage) (Message, error) {
	tool, ok := registry.Get(name)
	if !ok {
		return Message{}, &ToolNotFoundError{Name: name}
	}

	result, err := tool.Execute(ctx, args)
	var content string
	if err != nil {
		content = fmt.Sprintf("Error: %v", &ToolError{ToolName: name, Cause: err})
	} else {
		// Marshal result to JSON if it's not already a string
		if s, ok := result.(string); ok {
			content = s
		} else {
			bytes, err := json.Marshal(result)
			if err != nil {
				content = fmt.Sprintf("Error marshaling result: %v", err)
			} else {
				content = string(bytes)
			}
		}
	}

	return FunctionMessage(name, content), nil
}
