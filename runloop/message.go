package runloop

import (
	"encoding/json"
	"time"
)

// RunContext carries the opaque identifiers the host assigns to a run.
// It is immutable for the run's lifetime and never generated internally.
type RunContext struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
}

// MessageKind discriminates between message variants.
type MessageKind string

const (
	MessageUser       MessageKind = "user"
	MessageAssistant  MessageKind = "assistant"
	MessageToolResult MessageKind = "tool_result"
)

// Message is a single entry in the conversation history.
type Message struct {
	Kind       MessageKind        `json:"kind"`
	Timestamp  time.Time          `json:"timestamp"`
	User       *UserMessage       `json:"user,omitempty"`
	Assistant  *AssistantMessage  `json:"assistant,omitempty"`
	ToolResult *ToolResultMessage `json:"tool_result,omitempty"`
}

// UserMessage holds user input.
type UserMessage struct {
	Content string `json:"content"`
}

// AssistantMessage holds the model's response for one turn.
type AssistantMessage struct {
	Content   string     `json:"content"`
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolResultMessage holds the outcome of one tool call. Every tool call
// declared by an assistant message must eventually have exactly one
// ToolResultMessage before the next inference call is issued.
type ToolResultMessage struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// ToolCall is a structured request, declared by the model, to invoke an
// external capability. Index is the call's position within its turn and is
// the sole ordering key for execution and result placement.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Index     int             `json:"index"`
}

// NewUserMessage creates a Message wrapping user input.
func NewUserMessage(content string) Message {
	return Message{
		Kind:      MessageUser,
		Timestamp: time.Now().UTC(),
		User:      &UserMessage{Content: content},
	}
}

// NewAssistantMessage creates a Message wrapping an assistant response.
func NewAssistantMessage(content, reasoning string, toolCalls []ToolCall) Message {
	return Message{
		Kind:      MessageAssistant,
		Timestamp: time.Now().UTC(),
		Assistant: &AssistantMessage{
			Content:   content,
			Reasoning: reasoning,
			ToolCalls: toolCalls,
		},
	}
}

// NewToolResultMessage creates a Message wrapping a tool result.
func NewToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{
		Kind:      MessageToolResult,
		Timestamp: time.Now().UTC(),
		ToolResult: &ToolResultMessage{
			ToolCallID: toolCallID,
			Content:    content,
			IsError:    isError,
		},
	}
}

// newSkippedToolResult synthesizes the terminal result for a declared call
// that will never execute. Downstream providers require strict pairing, so
// the call is closed out instead of dropped.
func newSkippedToolResult(toolCallID, reason string) Message {
	msg := NewToolResultMessage(toolCallID, reason, false)
	msg.ToolResult.Skipped = true
	return msg
}

// CloneToolCall returns a deep copy of a tool call.
func CloneToolCall(in ToolCall) ToolCall {
	out := in
	if in.Arguments != nil {
		out.Arguments = make(json.RawMessage, len(in.Arguments))
		copy(out.Arguments, in.Arguments)
	}
	return out
}

// CloneMessage returns a deep copy suitable for isolation across component
// boundaries.
func CloneMessage(in Message) Message {
	out := in
	if in.User != nil {
		userCopy := *in.User
		out.User = &userCopy
	}
	if in.Assistant != nil {
		assistantCopy := *in.Assistant
		if len(in.Assistant.ToolCalls) > 0 {
			assistantCopy.ToolCalls = make([]ToolCall, len(in.Assistant.ToolCalls))
			for i := range in.Assistant.ToolCalls {
				assistantCopy.ToolCalls[i] = CloneToolCall(in.Assistant.ToolCalls[i])
			}
		}
		out.Assistant = &assistantCopy
	}
	if in.ToolResult != nil {
		resultCopy := *in.ToolResult
		out.ToolResult = &resultCopy
	}
	return out
}

// CloneMessages returns deep copies of all messages.
func CloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	for i := range in {
		out[i] = CloneMessage(in[i])
	}
	return out
}
