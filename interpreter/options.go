package interpreter

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/i2y/interpreter/llm"
	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/tools"
)

// Defaults.
const (
	DefaultModel       = "gpt-4-0613"
	DefaultTemperature = 0.2
	DefaultProvider    = "openai"
)

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithAPIKey sets the credential, skipping the environment and the prompt.
func WithAPIKey(key string) Option {
	return func(i *Interpreter) { i.apiKey = key }
}

// WithPrompter sets how a missing credential is asked for.
func WithPrompter(p Prompter) Option {
	return func(i *Interpreter) { i.prompter = p }
}

// WithProviderName selects a registered provider (default "openai").
func WithProviderName(name string) Option {
	return func(i *Interpreter) { i.providerName = name }
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(url string) Option {
	return func(i *Interpreter) { i.baseURL = url }
}

// WithHTTPClient sets the HTTP client the provider uses.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Interpreter) { i.httpClient = c }
}

// WithStreamingProvider uses p directly. No credential is resolved.
func WithStreamingProvider(p provider.StreamingProvider) Option {
	return func(i *Interpreter) { i.provider = p }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(i *Interpreter) { i.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(i *Interpreter) { i.temperature = t }
}

// WithMaxTokens caps the length of each response.
func WithMaxTokens(n int) Option {
	return func(i *Interpreter) { i.maxTokens = n }
}

// WithSystemMessage replaces the built-in system message.
func WithSystemMessage(msg string) Option {
	return func(i *Interpreter) { i.systemMessage = msg }
}

// WithMaxOutputChars sets the output budget passed to run_code.
func WithMaxOutputChars(n int) Option {
	return func(i *Interpreter) { i.maxOutputChars = n }
}

// WithRunner sets the backend run_code executes on. The default is a
// persistent Python session, stopped by Close.
func WithRunner(r tools.CodeRunner) Option {
	return func(i *Interpreter) { i.runner = r }
}

// WithRegistry replaces the function registry. The registry should hold
// run_code, which unknown names are coerced to.
func WithRegistry(r *llm.ToolRegistry) Option {
	return func(i *Interpreter) { i.registry = r }
}

// WithApprover asks approver before every call. Without one, calls run
// immediately.
func WithApprover(a Approver) Option {
	return func(i *Interpreter) { i.approver = a }
}

// WithStrictFunctions fails a turn whose call names an unknown function
// instead of running it as run_code.
func WithStrictFunctions() Option {
	return func(i *Interpreter) { i.strict = true }
}

// WithFallbackFunction sets the registered function that calls naming an
// unknown function are coerced to. The default is run_code.
func WithFallbackFunction(name string) Option {
	return func(i *Interpreter) { i.fallback = name }
}

// WithRenderer sets the factory for per-turn renderers. By default deltas
// are discarded.
func WithRenderer(f RendererFactory) Option {
	return func(i *Interpreter) { i.newRenderer = f }
}

// WithMessageHook calls hook for every message added to the history.
func WithMessageHook(hook func(provider.Message)) Option {
	return func(i *Interpreter) { i.hook = hook }
}

// WithInput sets where Chat reads user lines from.
func WithInput(in LineReader) Option {
	return func(i *Interpreter) { i.input = in }
}

// WithOutput sets where Chat writes its own notices.
func WithOutput(w io.Writer) Option {
	return func(i *Interpreter) { i.output = w }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = logger }
}
