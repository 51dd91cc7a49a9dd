// Package openai provides an OpenAI chat completions provider that speaks the
// functions / function_call protocol.
package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/sse"
)

func init() {
	provider.Register("openai", func(cfg provider.Config) (provider.StreamingProvider, error) {
		return New(
			WithAPIKey(cfg.APIKey),
			WithBaseURL(cfg.BaseURL),
			WithHTTPClient(cfg.HTTPClient),
		)
	})
}

// Provider implements the OpenAI API.
type Provider struct {
	client *client
}

// Option configures the OpenAI provider.
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

// New creates a new OpenAI provider.
func New(opts ...Option) (*Provider, error) {
	cfg := &providerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Fall back to environment variable
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.apiKey == "" {
		return nil, &APIError{
			Message: "OpenAI API key required: set OPENAI_API_KEY or use WithAPIKey",
		}
	}

	return &Provider{
		client: newClient(cfg.apiKey, cfg.baseURL, cfg.httpClient),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// Stream implements provider.StreamingProvider.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	stream, err := p.client.chatCompletionStream(ctx, buildRequest(req))
	if err != nil {
		return nil, err
	}

	return &openaiStream{reader: stream}, nil
}

// buildRequest converts a provider.Request to an OpenAI API request.
func buildRequest(req *provider.Request) *chatCompletionRequest {
	apiReq := &chatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]message, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, convertMessage(msg))
	}

	for _, fn := range req.Functions {
		apiReq.Functions = append(apiReq.Functions, functionDef{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.Parameters,
		})
	}

	return apiReq
}

// convertMessage converts a provider.Message to the wire form.
func convertMessage(msg provider.Message) message {
	apiMsg := message{
		Role: string(msg.Role),
		Name: msg.Name,
	}

	if msg.FunctionCall != nil {
		apiMsg.FunctionCall = &functionCall{
			Name:      msg.FunctionCall.Name,
			Arguments: msg.FunctionCall.Arguments,
		}
	}

	// A function call replaces the message text.
	if msg.FunctionCall == nil || msg.Content != "" {
		content := msg.Content
		apiMsg.Content = &content
	}

	return apiMsg
}

// convertFinishReason converts an OpenAI finish reason to a provider.FinishReason.
func convertFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "function_call", "tool_calls":
		return provider.FinishReasonFunctionCall
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonContentFilter
	default:
		return provider.FinishReasonStop
	}
}

// openaiStream implements provider.ResponseStream for OpenAI.
type openaiStream struct {
	reader  *sse.Reader
	err     error
	current *provider.Fragment
	done    bool
}

func (s *openaiStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	chunk, err := sse.Next[streamChunk](s.reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			return false
		}
		s.err = err
		return false
	}

	s.current = &provider.Fragment{}

	if len(chunk.Choices) == 0 {
		return true
	}

	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.Content != nil {
		s.current.Content = *delta.Content
	}

	if fc := delta.FunctionCall; fc != nil && (fc.Name != "" || fc.Arguments != "") {
		s.current.FunctionCall = &provider.FunctionCallDelta{
			Name:      fc.Name,
			Arguments: fc.Arguments,
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.current.FinishReason = convertFinishReason(*choice.FinishReason)
	}

	return true
}

func (s *openaiStream) Current() *provider.Fragment {
	return s.current
}

func (s *openaiStream) Err() error {
	return s.err
}

func (s *openaiStream) Close() error {
	return s.reader.Close()
}
