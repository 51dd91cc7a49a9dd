package llm

import (
	"github.com/i2y/interpreter/provider"
)

// Option configures a streaming call.
type Option func(*callConfig)

// callConfig holds all configuration for a call.
type callConfig struct {
	model         string
	temperature   *float64
	maxTokens     *int
	systemMessage string
	tools         []Tool
}

func newCallConfig() *callConfig {
	return &callConfig{}
}

func (c *callConfig) apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithModel sets the model to use (e.g., "gpt-4-0613").
func WithModel(name string) Option {
	return func(c *callConfig) {
		c.model = name
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *callConfig) {
		c.temperature = &t
	}
}

// WithMaxTokens sets the maximum tokens in the response.
func WithMaxTokens(n int) Option {
	return func(c *callConfig) {
		c.maxTokens = &n
	}
}

// WithSystemMessage sets a system message sent ahead of the history.
func WithSystemMessage(msg string) Option {
	return func(c *callConfig) {
		c.systemMessage = msg
	}
}

// WithTools adds functions the model can call.
func WithTools(tools ...Tool) Option {
	return func(c *callConfig) {
		c.tools = append(c.tools, tools...)
	}
}

// buildRequest creates a provider.Request from the config and history.
// The history slice is not modified.
func (c *callConfig) buildRequest(messages []Message) (*provider.Request, error) {
	req := &provider.Request{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	// Add system message if present
	if c.systemMessage != "" {
		req.Messages = make([]Message, 0, len(messages)+1)
		req.Messages = append(req.Messages, SystemMessage(c.systemMessage))
	}

	req.Messages = append(req.Messages, messages...)

	if len(c.tools) > 0 {
		defs, err := definitions(c.tools)
		if err != nil {
			return nil, err
		}
		req.Functions = defs
	}

	return req, nil
}
