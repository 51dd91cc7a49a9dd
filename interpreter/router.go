package interpreter

import (
	"log/slog"
	"strings"

	"github.com/i2y/interpreter/llm"
	"github.com/i2y/interpreter/partialjson"
	"github.com/i2y/interpreter/provider"
)

// turnState is the router's position within one assistant turn: idle,
// accumulatingText or accumulatingCall.
type turnState interface {
	isTurnState()
}

type idle struct{}

type accumulatingText struct {
	content strings.Builder
}

type accumulatingCall struct {
	name      string
	arguments strings.Builder
	recon     *partialjson.Reconstructor
}

func (*idle) isTurnState()             {}
func (*accumulatingText) isTurnState() {}
func (*accumulatingCall) isTurnState() {}

func (c *accumulatingCall) finalize() provider.FunctionCall {
	return provider.FunctionCall{Name: c.name, Arguments: c.arguments.String()}
}

// turnOutcome is what a finished turn adds to the history.
type turnOutcome struct {
	finish provider.FinishReason
	// messages are appended as is when no call is dispatched.
	messages []provider.Message
	// calls are dispatched in order; each is appended as its own assistant
	// message followed by the function result.
	calls []provider.FunctionCall
}

// router classifies the fragments of one turn and emits deltas. It is
// single-use.
type router struct {
	state  turnState
	staged []provider.FunctionCall
	emit   func(Delta)
	logger *slog.Logger

	finished bool
	outcome  turnOutcome
}

func newRouter(emit func(Delta), logger *slog.Logger) *router {
	return &router{state: &idle{}, emit: emit, logger: logger}
}

// route processes one fragment and reports whether the turn has finished.
func (r *router) route(f provider.Fragment) bool {
	if r.finished {
		return true
	}

	if fc := f.FunctionCall; fc != nil {
		if fc.Name != "" {
			r.startCall(fc.Name)
		}
		if fc.Arguments != "" {
			r.appendArguments(fc.Arguments)
		}
	}

	if f.Content != "" {
		r.appendText(f.Content)
	}

	if f.FinishReason != "" {
		r.finish(f.FinishReason)
	}
	return r.finished
}

func (r *router) startCall(name string) {
	if call, ok := r.state.(*accumulatingCall); ok {
		staged := call.finalize()
		r.staged = append(r.staged, staged)
		r.logger.Debug("staged function call", "name", staged.Name, "arguments", staged.Arguments)
	}
	// Any text so far is dropped: the message becomes a function call.
	r.state = &accumulatingCall{name: name, recon: partialjson.New()}
	r.send(Delta{Type: DeltaFunction, Name: name})
}

func (r *router) appendArguments(chunk string) {
	call, ok := r.state.(*accumulatingCall)
	if !ok {
		r.logger.Warn("function arguments without a function name", "chunk", chunk)
		return
	}
	call.arguments.WriteString(chunk)
	if patch, ok := call.recon.ReceiveChunk(chunk); ok {
		r.send(Delta{Type: DeltaFunction, Arguments: patch})
	}
}

func (r *router) appendText(text string) {
	switch s := r.state.(type) {
	case *idle:
		next := &accumulatingText{}
		next.content.WriteString(text)
		r.state = next
	case *accumulatingText:
		s.content.WriteString(text)
	case *accumulatingCall:
		r.logger.Debug("text after function call ignored", "text", text)
		return
	}
	r.send(Delta{Type: DeltaMessage, Text: text})
}

func (r *router) finish(reason provider.FinishReason) {
	r.finished = true
	r.outcome.finish = reason

	call, inCall := r.state.(*accumulatingCall)
	switch {
	case reason == provider.FinishReasonFunctionCall && inCall:
		r.outcome.calls = append(r.staged, call.finalize())
	case inCall:
		r.logger.Warn("turn ended during a function call", "finish_reason", reason, "name", call.name)
		for _, c := range append(r.staged, call.finalize()) {
			r.outcome.messages = append(r.outcome.messages, llm.FunctionCallMessage(c.Name, c.Arguments))
		}
	default:
		if reason == provider.FinishReasonFunctionCall {
			r.logger.Warn("function_call finish without a function call")
		}
		var content string
		if text, ok := r.state.(*accumulatingText); ok {
			content = text.content.String()
		}
		r.outcome.messages = append(r.outcome.messages, llm.AssistantMessage(content))
	}
}

// result returns the outcome of a finished turn.
func (r *router) result() (turnOutcome, bool) {
	return r.outcome, r.finished
}

func (r *router) send(d Delta) {
	r.logger.Debug("delta", "type", d.Type, "text", d.Text, "name", d.Name, "arguments", d.Arguments)
	r.emit(d)
}
