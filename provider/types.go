package provider

import "encoding/json"

// Request represents a provider-agnostic streaming completion request.
type Request struct {
	Model       string
	Messages    []Message
	Functions   []FunctionDef
	Temperature *float64
	MaxTokens   *int
}

// Message represents a single message in the conversation.
//
// An assistant message that carries a FunctionCall has no textual content;
// transports encode its Content as null.
type Message struct {
	Role         Role
	Content      string
	Name         string        // When Role == RoleFunction
	FunctionCall *FunctionCall // When Role == RoleAssistant and a call was made
}

// Role represents the message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonFunctionCall  FinishReason = "function_call"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// FunctionCall is a completed function call requested by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON text, possibly malformed
}

// FunctionDef describes a function the model may call.
type FunctionDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}
