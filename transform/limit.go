package transform

import (
	"context"
	"fmt"

	"github.com/microsoft/autogen-sub008/types"
)

// MessageCountLimiter keeps only the most recent MaxMessages messages,
// preserving their relative order.
type MessageCountLimiter struct {
	maxMessages int
}

// NewMessageCountLimiter creates a limiter. maxMessages below 1 is a
// configuration error and fails at construction, never at runtime.
func NewMessageCountLimiter(maxMessages int) (*MessageCountLimiter, error) {
	if maxMessages < 1 {
		return nil, fmt.Errorf("transform: max messages must be >= 1, got %d", maxMessages)
	}
	return &MessageCountLimiter{maxMessages: maxMessages}, nil
}

func (l *MessageCountLimiter) Apply(_ context.Context, msgs []types.Message) ([]types.Message, error) {
	if len(msgs) <= l.maxMessages {
		return msgs, nil
	}
	return msgs[len(msgs)-l.maxMessages:], nil
}
