// Package provider defines the interface for streaming completion services.
package provider

import (
	"context"
	"net/http"
)

// Provider is the core abstraction for completion services.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string
}

// StreamingProvider extends Provider with streaming capability.
type StreamingProvider interface {
	Provider

	// Stream executes a streaming completion request.
	Stream(ctx context.Context, req *Request) (ResponseStream, error)
}

// ResponseStream represents the ordered fragments of one assistant turn.
type ResponseStream interface {
	// Next advances to the next fragment, returns false when done.
	Next() bool

	// Current returns the current fragment.
	Current() *Fragment

	// Err returns any error that occurred during streaming.
	Err() error

	// Close releases stream resources.
	Close() error
}

// Fragment is one atomic increment of a streaming turn. Any combination of
// fields may be set; FinishReason is set only on the last fragment.
type Fragment struct {
	Content      string
	FunctionCall *FunctionCallDelta
	FinishReason FinishReason
}

// FunctionCallDelta carries incremental function call data. Name is sent
// once, on the first fragment of a call.
type FunctionCallDelta struct {
	Name      string
	Arguments string
}

// Config carries what a factory needs to build a provider.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Factory builds a provider from a resolved configuration.
type Factory func(cfg Config) (StreamingProvider, error)
