package agent

import (
	"github.com/haasonsaas/relay/pkg/models"
)

// EventKind discriminates streamed run events.
type EventKind string

const (
	// EventDelta carries an incremental chunk of assistant text.
	EventDelta EventKind = "delta"
	// EventToolCall signals that a tool call is about to execute.
	EventToolCall EventKind = "tool_call"
	// EventToolResult carries the result of an executed tool call.
	EventToolResult EventKind = "tool_result"
	// EventFinal carries the complete assistant reply; the run is Done.
	EventFinal EventKind = "final"
	// EventError signals a terminal failure; Text holds the user-facing reply.
	EventError EventKind = "error"
)

// Event is one streamed occurrence within an agent run. Consumers switch on
// Kind; only the fields relevant to that kind are populated.
type Event struct {
	Kind EventKind

	// Text holds delta text, the final reply, or the error reply.
	Text string

	// ToolCall is set for tool_call events.
	ToolCall *models.ToolCall

	// ToolResult is the tool's output text, set for tool_result events.
	ToolResult string

	// ToolIsError marks a tool_result produced by a failed or refused call.
	ToolIsError bool

	// Usage is the accumulated token usage, set on final events.
	Usage models.TokenUsage

	// Err is the underlying failure, set on error events.
	Err error
}
