// Package model provides LLM integration adapters.
package model

import "context"

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between providers (Anthropic,
// OpenAI, Google) behind one call. Implementations should:
//   - Convert Message and ToolSpec to the provider format
//   - Parse provider responses back to ChatOut, including token usage
//   - Respect context cancellation and timeouts
//
// Example usage:
//
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "You route customer questions."},
//	    {Role: model.RoleUser, Content: "payment status not reflected"},
//	}, nil)
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	//
	// The LLM may respond with text, tool calls, or both. tools is nil when
	// the caller does not offer any.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the message sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	RoleSystem = "system"

	// RoleUser indicates a message from the human user.
	RoleUser = "user"

	// RoleAssistant indicates a response from the LLM.
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool that an LLM can call.
//
// Schema follows JSON Schema and describes the tool's input object:
//
//	model.ToolSpec{
//	    Name:        "get_payment_status",
//	    Description: "Look up the latest payment for a user",
//	    Schema: map[string]interface{}{
//	        "type": "object",
//	        "properties": map[string]interface{}{
//	            "user_id": map[string]interface{}{"type": "string"},
//	        },
//	        "required": []string{"user_id"},
//	    },
//	}
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	// May be empty if the LLM only wants to call tools.
	Text string

	// ToolCalls contains tools the LLM wants to invoke, in the order proposed.
	ToolCalls []ToolCall

	// Usage reports token consumption when the provider returns it.
	Usage Usage
}

// ToolCall represents a request from the LLM to invoke a specific tool.
type ToolCall struct {
	// ID is the provider's call identifier. Providers that do not issue one
	// leave it empty.
	ID string

	// Name must match a ToolSpec.Name from the offered tools.
	Name string

	// Input contains the parameters for the tool call.
	Input map[string]interface{}
}

// Usage is the token accounting of one Chat call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}
