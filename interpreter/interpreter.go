// Package interpreter runs a conversation in which the model streams either
// text or a run_code call. Calls are shown while their arguments arrive,
// executed once complete, and their output is sent back to the model until
// it answers without calling a function.
package interpreter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/i2y/interpreter/llm"
	_ "github.com/i2y/interpreter/openai"
	"github.com/i2y/interpreter/prompt"
	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/tools"
)

// LineReader reads one line of user input. io.EOF ends a chat.
type LineReader interface {
	ReadLine(label string) (string, error)
}

// Interpreter owns the conversation history and drives the continuation
// loop. It is not safe for concurrent use.
type Interpreter struct {
	provider     provider.StreamingProvider
	providerName string
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	prompter     Prompter

	model          string
	temperature    float64
	maxTokens      int
	systemMessage  string
	maxOutputChars int

	runner     tools.CodeRunner
	registry   *llm.ToolRegistry
	approver   Approver
	strict     bool
	fallback   string
	dispatcher *Dispatcher
	session    *tools.Session

	newRenderer RendererFactory
	hook        func(provider.Message)
	input       LineReader
	output      io.Writer
	logger      *slog.Logger

	messages []provider.Message
}

// New builds an Interpreter. Unless a provider is given directly, the API
// key is resolved here, once: the WithAPIKey value, else OPENAI_API_KEY,
// else the Prompter.
func New(opts ...Option) (*Interpreter, error) {
	i := &Interpreter{
		providerName:   DefaultProvider,
		model:          DefaultModel,
		temperature:    DefaultTemperature,
		maxOutputChars: tools.DefaultMaxOutputChars,
		newRenderer:    func() Renderer { return discardRenderer{} },
		output:         os.Stdout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.systemMessage == "" {
		i.systemMessage = prompt.Default().Content
	}
	if i.input == nil {
		i.input = &stdinReader{in: bufio.NewReader(os.Stdin), out: i.output}
	}
	if i.registry == nil {
		runner := i.runner
		if runner == nil {
			i.session = &tools.Session{Logger: i.logger}
			runner = i.session
		}
		i.registry = tools.NewRegistry(runner)
	}

	dopts := []DispatcherOption{
		WithDispatchMaxOutputChars(i.maxOutputChars),
		WithDispatchLogger(i.logger),
	}
	if i.strict {
		dopts = append(dopts, WithStrictNames())
	}
	if i.fallback != "" {
		dopts = append(dopts, WithDispatchFallback(i.fallback))
	}
	if i.approver != nil {
		dopts = append(dopts, WithCallApprover(i.approver))
	}
	i.dispatcher = NewDispatcher(i.registry, dopts...)

	if i.provider == nil {
		key, err := resolveCredential(i.apiKey, i.prompter)
		if err != nil {
			return nil, err
		}
		i.apiKey = key

		p, err := provider.Get(i.providerName, provider.Config{
			APIKey:     key,
			BaseURL:    i.baseURL,
			HTTPClient: i.httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("creating provider: %w", err)
		}
		i.provider = p
	}

	return i, nil
}

// Close stops the Python session the interpreter started for itself. A
// runner or registry passed in is left to the caller.
func (i *Interpreter) Close() error {
	if i.session == nil {
		return nil
	}
	return i.session.Close()
}

// Messages returns a copy of the history.
func (i *Interpreter) Messages() []provider.Message {
	return append([]provider.Message(nil), i.messages...)
}

// Reset clears the history.
func (i *Interpreter) Reset() {
	i.messages = nil
}

// Load replaces the history with a copy of messages.
func (i *Interpreter) Load(messages []provider.Message) {
	i.messages = append([]provider.Message(nil), messages...)
}

// Send adds a user message and runs turns until the model answers without
// calling a function. The history is returned even on error; it holds
// every message appended before the failure.
func (i *Interpreter) Send(ctx context.Context, text string) ([]provider.Message, error) {
	i.append(llm.UserMessage(text))

	for {
		if err := ctx.Err(); err != nil {
			return i.Messages(), err
		}

		outcome, err := i.turn(ctx)
		if err != nil {
			return i.Messages(), err
		}

		if len(outcome.calls) == 0 {
			for _, m := range outcome.messages {
				i.append(m)
			}
			return i.Messages(), nil
		}

		for _, call := range outcome.calls {
			if err := i.dispatch(ctx, call); err != nil {
				return i.Messages(), err
			}
		}
	}
}

// dispatch runs call, then appends it with its result. A call that fails
// before producing a result is not appended, so every call in the history
// has an answer.
func (i *Interpreter) dispatch(ctx context.Context, call provider.FunctionCall) error {
	name, err := i.dispatcher.Resolve(call.Name)
	if err != nil {
		return err
	}
	call.Name = name

	result, err := i.dispatcher.Dispatch(ctx, call)
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", call.Name, err)
	}
	i.append(llm.FunctionCallMessage(call.Name, call.Arguments))
	i.append(result)
	return nil
}

// turn streams one assistant response. The turn's renderer is finalized
// before turn returns, whatever the outcome.
func (i *Interpreter) turn(ctx context.Context) (turnOutcome, error) {
	renderer := i.newRenderer()
	defer renderer.Finalize()

	opts := []llm.Option{
		llm.WithModel(i.model),
		llm.WithTemperature(i.temperature),
		llm.WithSystemMessage(i.systemMessage),
		llm.WithTools(i.registry.All()...),
	}
	if i.maxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(i.maxTokens))
	}

	stream, err := llm.OpenStream(ctx, i.provider, i.messages, opts...)
	if err != nil {
		return turnOutcome{}, err
	}
	defer func() { _ = stream.Close() }()

	r := newRouter(renderer.ProcessDelta, i.logger)
	for f := range stream.Fragments() {
		if r.route(f) {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return turnOutcome{}, fmt.Errorf("streaming response: %w", err)
	}

	outcome, ok := r.result()
	if !ok {
		return turnOutcome{}, ErrIncompleteTurn
	}
	i.logger.Debug("turn finished", "finish_reason", outcome.finish, "calls", len(outcome.calls))
	return outcome, nil
}

func (i *Interpreter) append(m provider.Message) {
	i.messages = append(i.messages, m)
	if i.hook != nil {
		i.hook(m)
	}
}

// Chat sends message when it is not empty. Otherwise it reads lines from
// the input and sends each one until the user types exit or exit(), or the
// input ends. A failed turn in the loop is reported and the loop goes on.
// The history is returned when returnChat is set.
func (i *Interpreter) Chat(ctx context.Context, message string, returnChat bool) ([]provider.Message, error) {
	if message != "" {
		if _, err := i.Send(ctx, message); err != nil {
			return nil, err
		}
		return i.chatResult(returnChat), nil
	}

	fmt.Fprint(i.output, "Type 'exit' to leave the chat.\n\n")
	for {
		line, err := i.input.ReadLine("> ")
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		if line == "exit" || line == "exit()" {
			break
		}

		if _, err := i.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			i.logger.Debug("turn failed", "error", err)
			fmt.Fprintf(i.output, "\nError: %v\n\n", err)
		}
	}

	return i.chatResult(returnChat), nil
}

func (i *Interpreter) chatResult(returnChat bool) []provider.Message {
	if !returnChat {
		return nil
	}
	return i.Messages()
}

// stdinReader is the LineReader used when none is configured.
type stdinReader struct {
	in  *bufio.Reader
	out io.Writer
}

func (s *stdinReader) ReadLine(label string) (string, error) {
	fmt.Fprint(s.out, label)
	line, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
