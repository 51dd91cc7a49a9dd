// Package gemini provides a Google Gemini provider. Gemini sends each
// function call whole, so a call streams as one fragment carrying both its
// name and its arguments.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/sse"
)

func init() {
	provider.Register("gemini", func(cfg provider.Config) (provider.StreamingProvider, error) {
		return New(
			WithAPIKey(cfg.APIKey),
			WithBaseURL(cfg.BaseURL),
			WithHTTPClient(cfg.HTTPClient),
		)
	})
}

// Provider implements the Gemini API.
type Provider struct {
	client *client
}

// Option configures the Gemini provider.
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

// New creates a new Gemini provider.
func New(opts ...Option) (*Provider, error) {
	cfg := &providerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Fall back to environment variable
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.apiKey == "" {
		return nil, &APIError{
			Message: "Gemini API key required: set GEMINI_API_KEY or use WithAPIKey",
		}
	}

	return &Provider{
		client: newClient(cfg.apiKey, cfg.baseURL, cfg.httpClient),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Stream implements provider.StreamingProvider.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (provider.ResponseStream, error) {
	stream, err := p.client.streamGenerateContent(ctx, req.Model, buildRequest(req))
	if err != nil {
		return nil, err
	}

	return &geminiStream{reader: stream}, nil
}

// buildRequest converts a provider.Request to a Gemini API request.
func buildRequest(req *provider.Request) *generateContentRequest {
	apiReq := &generateContentRequest{
		Contents: make([]content, 0, len(req.Messages)),
	}

	if req.Temperature != nil || req.MaxTokens != nil {
		apiReq.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	for _, msg := range req.Messages {
		var p part

		switch {
		case msg.Role == provider.RoleSystem:
			apiReq.SystemInstruction = &content{
				Parts: []part{{Text: msg.Content}},
			}
			continue

		case msg.FunctionCall != nil:
			p.FunctionCall = &functionCall{
				Name: msg.FunctionCall.Name,
				Args: callArgs(msg.FunctionCall.Arguments),
			}

		case msg.Role == provider.RoleFunction:
			p.FunctionResponse = &functionResponse{
				Name:     msg.Name,
				Response: map[string]any{"output": msg.Content},
			}

		case msg.Content != "":
			p.Text = msg.Content

		default:
			continue
		}

		apiReq.Contents = appendPart(apiReq.Contents, convertRole(msg.Role), p)
	}

	if len(req.Functions) > 0 {
		funcDecls := make([]functionDeclaration, 0, len(req.Functions))
		for _, fn := range req.Functions {
			funcDecls = append(funcDecls, functionDeclaration{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  cleanSchema(fn.Parameters),
			})
		}
		apiReq.Tools = []tool{{FunctionDeclarations: funcDecls}}
	}

	return apiReq
}

// appendPart adds p to the last content when it has the same role.
func appendPart(contents []content, role string, p part) []content {
	if n := len(contents); n > 0 && contents[n-1].Role == role {
		contents[n-1].Parts = append(contents[n-1].Parts, p)
		return contents
	}
	return append(contents, content{Role: role, Parts: []part{p}})
}

// callArgs decodes call arguments. Args must be an object, so anything
// else is passed as the code argument.
func callArgs(arguments string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args == nil {
		return map[string]any{"code": arguments}
	}
	return args
}

// unsupportedSchemaKeys are JSON Schema keywords function declarations
// reject.
var unsupportedSchemaKeys = []string{"$schema", "$id", "additionalProperties"}

// cleanSchema removes unsupportedSchemaKeys at every level.
func cleanSchema(raw json.RawMessage) json.RawMessage {
	var schema any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return raw
	}
	out, err := json.Marshal(stripKeys(schema))
	if err != nil {
		return raw
	}
	return out
}

func stripKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for _, k := range unsupportedSchemaKeys {
			delete(v, k)
		}
		for k, child := range v {
			v[k] = stripKeys(child)
		}
	case []any:
		for i, child := range v {
			v[i] = stripKeys(child)
		}
	}
	return v
}

func convertRole(role provider.Role) string {
	switch role {
	case provider.RoleAssistant:
		return "model"
	default:
		// Function responses go in the user role.
		return "user"
	}
}

func convertFinishReason(reason string, sawCall bool) provider.FinishReason {
	switch reason {
	case "MAX_TOKENS":
		return provider.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return provider.FinishReasonContentFilter
	}
	// Gemini reports STOP after a function call too.
	if sawCall {
		return provider.FinishReasonFunctionCall
	}
	return provider.FinishReasonStop
}

// geminiStream implements provider.ResponseStream for Gemini. One chunk
// can hold several parts; each becomes its own fragment.
type geminiStream struct {
	reader  *sse.Reader
	err     error
	current *provider.Fragment
	pending []provider.Fragment
	sawCall bool
	done    bool
}

func (s *geminiStream) Next() bool {
	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			return false
		}
		s.read()
	}

	s.current = &s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// read queues the fragments of the next chunk.
func (s *geminiStream) read() {
	chunk, err := sse.Next[streamChunk](s.reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			return
		}
		s.err = err
		return
	}

	if len(chunk.Candidates) == 0 {
		return
	}
	candidate := chunk.Candidates[0]

	if candidate.Content != nil {
		for _, p := range candidate.Content.Parts {
			if p.Text != "" {
				s.pending = append(s.pending, provider.Fragment{Content: p.Text})
			}
			if p.FunctionCall != nil {
				args, err := json.Marshal(p.FunctionCall.Args)
				if err != nil || p.FunctionCall.Args == nil {
					args = []byte("{}")
				}
				s.sawCall = true
				s.pending = append(s.pending, provider.Fragment{
					FunctionCall: &provider.FunctionCallDelta{
						Name:      p.FunctionCall.Name,
						Arguments: string(args),
					},
				})
			}
		}
	}

	if candidate.FinishReason != "" {
		s.pending = append(s.pending, provider.Fragment{
			FinishReason: convertFinishReason(candidate.FinishReason, s.sawCall),
		})
	}
}

func (s *geminiStream) Current() *provider.Fragment {
	return s.current
}

func (s *geminiStream) Err() error {
	return s.err
}

func (s *geminiStream) Close() error {
	return s.reader.Close()
}
