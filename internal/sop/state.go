// Package sop implements the operating-procedure graph: an assistant picks
// the next support tool to call and a human approves each call before it
// runs.
package sop

// Message roles in the transcript.
const (
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation proposed by the assistant.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the output of an executed ToolCall.
type ToolResult struct {
	CallID string         `json:"callId"`
	Name   string         `json:"name"`
	Output map[string]any `json:"output,omitempty"`
}

// Message is one transcript entry. Assistant messages may carry a ToolCall;
// tool messages carry the matching ToolResult.
type Message struct {
	Role       string      `json:"role"`
	Content    string      `json:"content,omitempty"`
	ToolCall   *ToolCall   `json:"toolCall,omitempty"`
	ToolResult *ToolResult `json:"toolResult,omitempty"`
}

// State is the SOP graph state.
type State struct {
	OperatingProcedure string `json:"operatingProcedure,omitempty"`
	UserID             string `json:"userId,omitempty"`
	ImageURL           string `json:"imageUrl,omitempty"`

	// Messages is append-only.
	Messages []Message `json:"messages,omitempty"`

	// ToolResults holds the results of the most recent tools step.
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// Reduce appends delta's messages and overwrites the other fields delta sets.
func Reduce(prev, delta State) State {
	if delta.OperatingProcedure != "" {
		prev.OperatingProcedure = delta.OperatingProcedure
	}
	if delta.UserID != "" {
		prev.UserID = delta.UserID
	}
	if delta.ImageURL != "" {
		prev.ImageURL = delta.ImageURL
	}
	if len(delta.Messages) > 0 {
		merged := make([]Message, 0, len(prev.Messages)+len(delta.Messages))
		merged = append(merged, prev.Messages...)
		prev.Messages = append(merged, delta.Messages...)
	}
	if delta.ToolResults != nil {
		prev.ToolResults = delta.ToolResults
	}
	return prev
}

// PendingCall returns the tool call awaiting execution, if any. Only the
// last message can hold one.
func (s State) PendingCall() (ToolCall, bool) {
	if len(s.Messages) == 0 {
		return ToolCall{}, false
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleAssistant || last.ToolCall == nil {
		return ToolCall{}, false
	}
	return *last.ToolCall, true
}

// LastResult returns the most recent tool result, if any.
func (s State) LastResult() (ToolResult, bool) {
	if len(s.ToolResults) == 0 {
		return ToolResult{}, false
	}
	return s.ToolResults[len(s.ToolResults)-1], true
}

// Reply is the assistant's last free-text message.
func (s State) Reply() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if m := s.Messages[i]; m.Role == RoleAssistant && m.ToolCall == nil {
			return m.Content
		}
	}
	return ""
}
