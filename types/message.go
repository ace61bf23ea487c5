package types

import (
	"encoding/json"
	"strings"
)

// Role is the variant tag of a Message. The set is closed: every consumer
// switches exhaustively over these five values instead of probing for
// optional fields.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

// ToolCall represents a tool invocation request emitted by a model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult carries the outcome of a single tool call, keyed by the
// originating call ID so results can be joined out of order.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
}

// ContentPart is one element of a multipart user message.
type ContentPart struct {
	Type string `json:"type"` // "text" or "image"
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Message is a single conversation turn. The Role field selects the
// variant; only the fields belonging to that variant are populated.
// Messages are immutable once appended to a history: transforms and
// compression replace whole messages, never mutate fields in place.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	// Name identifies the sending agent, when known.
	Name string `json:"name,omitempty"`
	// Parts holds multipart user content. When non-empty, Content is the
	// concatenated text form.
	Parts []ContentPart `json:"parts,omitempty"`
	// IsTermination marks a user message as an explicit request to end
	// the conversation.
	IsTermination bool         `json:"is_termination,omitempty"`
	ToolCalls     []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults   []ToolResult `json:"tool_results,omitempty"`
}

// NewSystemMessage creates a system message. A system message, when
// present, is always the logical first entry of a history and is exempt
// from truncation and compression.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a plain-text user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewMultipartUserMessage creates a user message from content parts.
// Content is set to the joined text parts so text-only consumers keep
// working.
func NewMultipartUserMessage(parts []ContentPart) Message {
	var texts []string
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return Message{Role: RoleUser, Content: strings.Join(texts, "\n"), Parts: parts}
}

// NewAssistantMessage creates an assistant text message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolCallMessage creates a message carrying tool invocation requests.
func NewToolCallMessage(calls []ToolCall) Message {
	return Message{Role: RoleToolCall, ToolCalls: calls}
}

// NewToolResultMessage creates a message carrying joined tool outcomes.
func NewToolResultMessage(results []ToolResult) Message {
	return Message{Role: RoleToolResult, ToolResults: results}
}

// WithName returns a copy of the message attributed to the named agent.
func (m Message) WithName(name string) Message {
	m.Name = name
	return m
}

// WithTermination returns a copy of the message flagged as an explicit
// user termination request.
func (m Message) WithTermination() Message {
	m.IsTermination = true
	return m
}

// Text returns the textual content of the message. Tool variants render
// their payloads so keyword scans and summaries see them.
func (m Message) Text() string {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return m.Content
	case RoleToolCall:
		var parts []string
		for _, c := range m.ToolCalls {
			parts = append(parts, c.Name+"("+string(c.Arguments)+")")
		}
		return strings.Join(parts, "\n")
	case RoleToolResult:
		var parts []string
		for _, r := range m.ToolResults {
			parts = append(parts, r.Content)
		}
		return strings.Join(parts, "\n")
	}
	return m.Content
}

// Clone returns a deep copy suitable for isolation across component
// boundaries.
func (m Message) Clone() Message {
	out := m
	if len(m.Parts) > 0 {
		out.Parts = append([]ContentPart(nil), m.Parts...)
	}
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			out.ToolCalls[i] = c
			out.ToolCalls[i].Arguments = append(json.RawMessage(nil), c.Arguments...)
		}
	}
	if len(m.ToolResults) > 0 {
		out.ToolResults = append([]ToolResult(nil), m.ToolResults...)
	}
	return out
}

// CloneMessages returns deep copies of all messages.
func CloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
