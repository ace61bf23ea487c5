package types

import "context"

// Agent is the single capability the orchestrator requires from a
// conversation participant. Concrete agents backed by model clients,
// browser automation, or hosted assistant threads implement exactly this
// contract and are otherwise opaque to the core.
type Agent interface {
	// Name returns the agent's identifier, unique within a conversation.
	Name() string
	// Description is a short role summary used by model-driven speaker
	// selection and introduction messages.
	Description() string
	// GenerateReply produces the agent's next message given the shared
	// history. It may suspend on I/O and is called at most once per turn.
	GenerateReply(ctx context.Context, history []Message) (Message, error)
	// Reset discards any per-conversation internal state.
	Reset()
}

// NestedChatResult captures the outcome of a nested conversation: the
// inner orchestrator's summary and its full final transcript, kept out of
// the outer conversation's message log.
type NestedChatResult struct {
	Summary string    `json:"summary"`
	History []Message `json:"history"`
}

// MessageContext is side-channel metadata attached to a history entry.
// It is owned exclusively by the entry it decorates.
type MessageContext struct {
	// Sender is the name of the agent that produced the message.
	Sender string `json:"sender,omitempty"`
	// Nested holds the inner conversation's result when the message was
	// produced by a nested orchestration.
	Nested *NestedChatResult `json:"nested,omitempty"`
}
