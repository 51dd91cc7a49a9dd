package llm

import "github.com/i2y/interpreter/provider"

// Message is an alias for provider.Message for convenience.
type Message = provider.Message

// Role is an alias for provider.Role for convenience.
type Role = provider.Role

// Role constants.
const (
	RoleSystem    = provider.RoleSystem
	RoleUser      = provider.RoleUser
	RoleAssistant = provider.RoleAssistant
	RoleFunction  = provider.RoleFunction
)

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{
		Role:    RoleSystem,
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// FunctionCallMessage creates the assistant message that requests a call.
// It carries no text.
func FunctionCallMessage(name, arguments string) Message {
	return Message{
		Role: RoleAssistant,
		FunctionCall: &provider.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

// FunctionMessage creates a function result message.
func FunctionMessage(name, content string) Message {
	return Message{
		Role:    RoleFunction,
		Name:    name,
		Content: content,
	}
}
