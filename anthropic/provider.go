// Package anthropic provides an Anthropic Messages API provider. Tool use
// is mapped onto the function call protocol: a tool_use block streams as a
// function call and a function result is sent back as a tool_result.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/sse"
)

func init() {
	provider.Register("anthropic", func(cfg provider.Config) (provider.StreamingProvider, error) {
		return New(
			WithAPIKey(cfg.APIKey),
			WithBaseURL(cfg.BaseURL),
			WithHTTPClient(cfg.HTTPClient),
		)
	})
}

// Provider implements the Anthropic Messages API.
type Provider struct {
	client *client
}

// Option configures the Anthropic provider.
type Option func(*providerConfig)

type providerConfig struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *providerConfig) {
		c.apiKey = key
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *providerConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *providerConfig) {
		c.httpClient = client
	}
}

// New creates a new Anthropic provider.
func New(opts ...Option) (*Provider, error) {
	cfg := &providerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Fall back to environment variable
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if cfg.apiKey == "" {
		return nil, &APIError{
			Message: "Anthropic API key required: set ANTHROPIC_API_KEY or use WithAPIKey",
		}
	}

	return &Provider{
		client: newClient(cfg.apiKey, cfg.baseURL, cfg.httpClient),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "anthropic"
}

// Stream implements provider.StreamingProvider.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	stream, err := p.client.messagesStream(ctx, buildRequest(req))
	if err != nil {
		return nil, err
	}

	return &anthropicStream{reader: stream}, nil
}

// buildRequest converts a provider.Request to an Anthropic API request.
// History carries no call IDs, so each call is numbered by position and
// its result answers the latest call.
func buildRequest(req *provider.Request) *messagesRequest {
	apiReq := &messagesRequest{
		Model:       req.Model,
		Messages:    make([]message, 0, len(req.Messages)),
		Temperature: req.Temperature,
	}

	if req.MaxTokens != nil {
		apiReq.MaxTokens = *req.MaxTokens
	}

	calls := 0
	for _, msg := range req.Messages {
		var part contentPart

		switch {
		case msg.Role == provider.RoleSystem:
			apiReq.System = msg.Content
			continue

		case msg.FunctionCall != nil:
			calls++
			part = contentPart{
				Type:  "tool_use",
				ID:    callID(calls),
				Name:  msg.FunctionCall.Name,
				Input: toolInput(msg.FunctionCall.Arguments),
			}

		case msg.Role == provider.RoleFunction:
			part = contentPart{
				Type:      "tool_result",
				ToolUseID: callID(calls),
				Content:   msg.Content,
			}

		case msg.Content != "":
			part = contentPart{Type: "text", Text: msg.Content}

		default:
			continue
		}

		apiReq.Messages = appendPart(apiReq.Messages, convertRole(msg.Role), part)
	}

	for _, fn := range req.Functions {
		apiReq.Tools = append(apiReq.Tools, toolDef{
			Name:        fn.Name,
			Description: fn.Description,
			InputSchema: fn.Parameters,
		})
	}

	return apiReq
}

func callID(n int) string {
	return fmt.Sprintf("call_%d", n)
}

// appendPart adds part to the last message when it has the same role, so
// that roles alternate.
func appendPart(messages []message, role string, part contentPart) []message {
	if n := len(messages); n > 0 && messages[n-1].Role == role {
		messages[n-1].Content = append(messages[n-1].Content, part)
		return messages
	}
	return append(messages, message{Role: role, Content: []contentPart{part}})
}

// toolInput decodes call arguments. Input must be an object, so anything
// else is passed as the code argument.
func toolInput(arguments string) map[string]any {
	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil || input == nil {
		return map[string]any{"code": arguments}
	}
	return input
}

func convertRole(role provider.Role) string {
	switch role {
	case provider.RoleAssistant:
		return "assistant"
	default:
		// Function results are sent by the user side.
		return "user"
	}
}

func convertStopReason(reason string) provider.FinishReason {
	switch reason {
	case "tool_use":
		return provider.FinishReasonFunctionCall
	case "max_tokens":
		return provider.FinishReasonLength
	case "refusal":
		return provider.FinishReasonContentFilter
	default:
		return provider.FinishReasonStop
	}
}

// anthropicStream implements provider.ResponseStream for Anthropic.
type anthropicStream struct {
	reader  *sse.Reader
	err     error
	current *provider.Fragment
	done    bool
}

func (s *anthropicStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	event, err := sse.Next[streamEvent](s.reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			return false
		}
		s.err = err
		return false
	}

	s.current = &provider.Fragment{}

	switch event.Type {
	case "content_block_start":
		if block := event.ContentBlock; block != nil {
			switch block.Type {
			case "tool_use":
				s.current.FunctionCall = &provider.FunctionCallDelta{Name: block.Name}
			case "text":
				s.current.Content = block.Text
			}
		}

	case "content_block_delta":
		if event.Delta != nil {
			s.current.Content = event.Delta.Text
			if event.Delta.PartialJSON != "" {
				s.current.FunctionCall = &provider.FunctionCallDelta{Arguments: event.Delta.PartialJSON}
			}
		}

	case "message_delta":
		if event.Delta != nil && event.Delta.StopReason != "" {
			s.current.FinishReason = convertStopReason(event.Delta.StopReason)
		}

	case "error":
		s.err = &APIError{Message: "stream error"}
		if event.Error != nil {
			s.err = &APIError{Type: event.Error.Type, Message: event.Error.Message}
		}
		return false

	case "message_stop":
		s.done = true
		return false
	}

	return true
}

func (s *anthropicStream) Current() *provider.Fragment {
	return s.current
}

func (s *anthropicStream) Err() error {
	return s.err
}

func (s *anthropicStream) Close() error {
	return s.reader.Close()
}
