package openai

import "encoding/json"

// chatCompletionRequest represents an OpenAI chat completion request.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []message     `json:"messages"`
	Functions   []functionDef `json:"functions,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// message represents a chat message. Content is a pointer so that an
// assistant message carrying a function call is sent as "content": null.
type message struct {
	Role         string        `json:"role"`
	Content      *string       `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *functionCall `json:"function_call,omitempty"`
}

// functionDef represents a function definition.
type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// functionCall represents the function being called.
type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// errorResponse represents an API error response.
type errorResponse struct {
	Error apiError `json:"error"`
}

// apiError represents the error details.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Streaming types

// streamChunk represents a streaming chunk from OpenAI.
type streamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

// streamChoice represents a choice in a streaming chunk.
type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// streamDelta represents the delta content in a streaming chunk.
type streamDelta struct {
	Role         string              `json:"role,omitempty"`
	Content      *string             `json:"content,omitempty"`
	FunctionCall *streamFunctionCall `json:"function_call,omitempty"`
}

// streamFunctionCall represents a function call delta. Name arrives once,
// Arguments arrives in pieces.
type streamFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}
