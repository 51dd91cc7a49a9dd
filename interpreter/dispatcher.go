package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/i2y/interpreter/llm"
	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/tools"
)

// DeclinedOutput is the function result recorded when the user refuses to
// run a call.
const DeclinedOutput = "User decided not to run this code."

// Approver decides whether a call may run. code is the call's code
// argument, or empty when it has none.
type Approver interface {
	Approve(ctx context.Context, name, code string) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, name, code string) (bool, error)

// Approve calls f.
func (f ApproverFunc) Approve(ctx context.Context, name, code string) (bool, error) {
	return f(ctx, name, code)
}

// Dispatcher turns a completed function call into a function result
// message. It invokes the registered function exactly once per call.
type Dispatcher struct {
	registry       *llm.ToolRegistry
	fallback       string
	maxOutputChars int
	strict         bool
	approver       Approver
	logger         *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchFallback sets the function unknown names are coerced to.
func WithDispatchFallback(name string) DispatcherOption {
	return func(d *Dispatcher) { d.fallback = name }
}

// WithDispatchMaxOutputChars sets the output budget injected into run_code
// calls.
func WithDispatchMaxOutputChars(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxOutputChars = n }
}

// WithStrictNames makes unknown function names an error instead of
// coercing them to the fallback function.
func WithStrictNames() DispatcherOption {
	return func(d *Dispatcher) { d.strict = true }
}

// WithCallApprover gates every call on approver.
func WithCallApprover(approver Approver) DispatcherOption {
	return func(d *Dispatcher) { d.approver = approver }
}

// WithDispatchLogger sets the logger.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher returns a Dispatcher over registry. Unknown names fall back
// to run_code and calls get a 2000 character output budget unless
// configured otherwise.
func NewDispatcher(registry *llm.ToolRegistry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		fallback:       tools.RunCodeName,
		maxOutputChars: tools.DefaultMaxOutputChars,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve returns the registered function that name dispatches to.
func (d *Dispatcher) Resolve(name string) (string, error) {
	if _, ok := d.registry.Get(name); ok {
		return name, nil
	}
	if d.strict {
		return "", &llm.ToolNotFoundError{Name: name}
	}
	if _, ok := d.registry.Get(d.fallback); !ok {
		return "", &llm.ToolNotFoundError{Name: d.fallback}
	}
	d.logger.Warn("unknown function coerced", "requested", name, "using", d.fallback)
	return d.fallback, nil
}

// Dispatch runs call and returns its function result message. Arguments
// that are not a JSON object are passed whole as the code argument. A
// failing function is reported in the message content.
func (d *Dispatcher) Dispatch(ctx context.Context, call provider.FunctionCall) (provider.Message, error) {
	name, err := d.Resolve(call.Name)
	if err != nil {
		return provider.Message{}, err
	}

	args := decodeArguments(call.Arguments)
	if name == tools.RunCodeName {
		args["max_output_chars"] = d.maxOutputChars
	}

	if d.approver != nil {
		code, _ := args["code"].(string)
		ok, err := d.approver.Approve(ctx, name, code)
		if err != nil {
			return provider.Message{}, fmt.Errorf("approving %s: %w", name, err)
		}
		if !ok {
			d.logger.Info("function call declined", "name", name)
			return llm.FunctionMessage(name, DeclinedOutput), nil
		}
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return provider.Message{}, fmt.Errorf("encoding arguments for %s: %w", name, err)
	}

	d.logger.Debug("dispatching function call", "name", name, "arguments", string(raw))
	return llm.ExecuteFunctionCall(ctx, d.registry, name, raw)
}

// decodeArguments parses arguments as a JSON object. Anything else is
// treated as bare code.
func decodeArguments(arguments string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args == nil {
		return map[string]any{"code": arguments}
	}
	return args
}
