package anthropic

import "encoding/json"

// messagesRequest represents an Anthropic Messages API request.
type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Tools       []toolDef `json:"tools,omitempty"`
	Stream      bool      `json:"stream"`
}

// message represents a message in the conversation.
type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

// contentPart represents a part of message content.
type contentPart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"` // For tool_result
}

// toolDef represents a tool definition.
type toolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// contentBlock represents a content block opened by content_block_start.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// streamEvent is one server-sent event of a streaming response.
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
	Delta *delta `json:"delta,omitempty"`
	// For content_block_start
	ContentBlock *contentBlock `json:"content_block,omitempty"`
	// For error
	Error *apiError `json:"error,omitempty"`
}

type delta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// errorResponse represents an API error response.
type errorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

// apiError represents the error details.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
