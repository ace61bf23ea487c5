package conversation

import (
	"fmt"
	"sync"

	"github.com/microsoft/autogen-sub008/types"
)

// Entry is one recorded turn: the message and its side-channel context.
type Entry struct {
	Message types.Message        `json:"message"`
	Context types.MessageContext `json:"context"`
}

// ChatHistory is the ordered, append-biased log of a conversation.
// Insertion order is conversational order. Appending is O(1); the whole
// content can be atomically replaced, which is how compression rewrites
// the log without ever mutating an individual message.
type ChatHistory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewChatHistory creates a history seeded with the given messages. A
// system message, if present, must be the first seed.
func NewChatHistory(seed ...types.Message) (*ChatHistory, error) {
	h := &ChatHistory{}
	for i, msg := range seed {
		if msg.Role == types.RoleSystem && i != 0 {
			return nil, fmt.Errorf("conversation: system message must be the first history entry, got index %d", i)
		}
		h.entries = append(h.entries, Entry{Message: msg})
	}
	return h, nil
}

// Add appends a message with its context.
func (h *ChatHistory) Add(msg types.Message, ctx types.MessageContext) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if msg.Role == types.RoleSystem && len(h.entries) > 0 {
		return fmt.Errorf("conversation: system message must be the first history entry")
	}
	h.entries = append(h.entries, Entry{Message: msg, Context: ctx})
	return nil
}

// Len returns the number of entries.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a snapshot copy of all entries.
func (h *ChatHistory) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Entry(nil), h.entries...)
}

// Messages returns a snapshot of the messages in conversational order.
func (h *ChatHistory) Messages() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Message
	}
	return out
}

// Last returns the most recent entry and whether one exists.
func (h *ChatHistory) Last() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Replace atomically swaps the entire content of the history. A system
// message in the replacement must sit at index 0.
func (h *ChatHistory) Replace(entries []Entry) error {
	for i, e := range entries {
		if e.Message.Role == types.RoleSystem && i != 0 {
			return fmt.Errorf("conversation: system message must be the first history entry, got index %d", i)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append([]Entry(nil), entries...)
	return nil
}

// Clone returns an independent structural copy, used for reset and
// branching. Messages themselves are immutable, so entry copies suffice.
func (h *ChatHistory) Clone() *ChatHistory {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &ChatHistory{entries: append([]Entry(nil), h.entries...)}
}
