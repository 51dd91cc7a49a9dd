package llm

import (
	"context"
	"fmt"
	"iter"

	"github.com/i2y/interpreter/provider"
)

// Stream represents one streaming assistant turn.
type Stream struct {
	stream provider.ResponseStream
	err    error
}

// Fragments returns an iterator over the fragments of the turn, in the
// order the service produced them.
//
// Example:
//
//	stream, err := llm.OpenStream(ctx, p, history, llm.WithModel("gpt-4-0613"))
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for f := range stream.Fragments() {
//	    fmt.Print(f.Content)
//	}
func (s *Stream) Fragments() iter.Seq[provider.Fragment] {
	return func(yield func(provider.Fragment) bool) {
		for s.stream.Next() {
			if !yield(*s.stream.Current()) {
				return
			}
		}
		s.err = s.stream.Err()
	}
}

// Err returns any error that occurred during streaming.
func (s *Stream) Err() error {
	return s.err
}

// Close closes the stream and releases resources.
func (s *Stream) Close() error {
	return s.stream.Close()
}

// OpenStream starts a streaming call with the given history.
func OpenStream(ctx context.Context, p provider.StreamingProvider, messages []Message, opts ...Option) (*Stream, error) {
	cfg := newCallConfig()
	cfg.apply(opts...)

	if cfg.model == "" {
		return nil, ErrModelRequired
	}

	req, err := cfg.buildRequest(messages)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	stream, err := p.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	return &Stream{stream: stream}, nil
}
