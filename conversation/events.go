package conversation

import "github.com/microsoft/autogen-sub008/types"

// EventKind discriminates the events emitted by StepStream.
type EventKind int

const (
	// EventDelta carries an incremental text fragment from a streaming agent.
	EventDelta EventKind = iota
	// EventMessage carries a completed turn message after it is committed.
	EventMessage
	// EventDone signals that the conversation has reached a terminal state.
	EventDone
)

// Event is a single item on a StepStream channel.
type Event struct {
	Kind    EventKind
	Speaker string

	// Delta is set for EventDelta.
	Delta string

	// Message is set for EventMessage.
	Message *types.Message

	// Result is set for EventDone.
	Result *ChatResult

	// Err terminates the stream when non-nil.
	Err error
}
