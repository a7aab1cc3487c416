package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a structured content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartAudio PartType = "audio"
)

// Part is one element of structured message content. Text parts carry the
// text inline; image and audio parts carry a reference URL.
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"function_name"`
	Arguments json.RawMessage `json:"arguments_json,omitempty"`
}

// Message is one turn unit in a conversation. Content holds plain text;
// Parts, when non-empty, takes precedence and holds structured content.
// ToolCalls is only meaningful for assistant messages, ToolCallID only for
// tool messages.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Parts      []Part     `json:"parts,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
}

// Text returns the plain-text view of the message content. For structured
// content it concatenates the text parts in order.
func (m *Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() Message {
	out := *m
	if len(m.Parts) > 0 {
		out.Parts = append([]Part(nil), m.Parts...)
	}
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if len(tc.Arguments) > 0 {
				out.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	return out
}

// TokenUsage accumulates provider-reported token consumption for a run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Conversation is an ordered message history belonging to one conversation
// identifier. Persistence owns the canonical copy; the runtime operates on
// an in-memory snapshot for the duration of one agent turn.
type Conversation struct {
	ID        string      `json:"id"`
	Channel   ChannelType `json:"channel,omitempty"`
	Messages  []Message   `json:"messages"`
	Usage     TokenUsage  `json:"usage"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
}
