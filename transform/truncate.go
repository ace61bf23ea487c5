package transform

import (
	"context"
	"fmt"

	"github.com/microsoft/autogen-sub008/tokenizer"
	"github.com/microsoft/autogen-sub008/types"
)

// TokenTruncator cuts each message's content to at most maxTokens tokens.
// Truncation is a hard prefix cut with no semantic awareness.
type TokenTruncator struct {
	maxTokens int
	tok       tokenizer.Tokenizer
}

// NewTokenTruncator creates a per-message truncator. maxTokens must be
// at least 1.
func NewTokenTruncator(maxTokens int, tok tokenizer.Tokenizer) (*TokenTruncator, error) {
	if maxTokens < 1 {
		return nil, fmt.Errorf("transform: per-message token limit must be >= 1, got %d", maxTokens)
	}
	if tok == nil {
		return nil, fmt.Errorf("transform: tokenizer is required")
	}
	return &TokenTruncator{maxTokens: maxTokens, tok: tok}, nil
}

func (t *TokenTruncator) Apply(_ context.Context, msgs []types.Message) ([]types.Message, error) {
	out := make([]types.Message, len(msgs))
	for i, msg := range msgs {
		switch msg.Role {
		case types.RoleUser, types.RoleAssistant:
			truncated, err := tokenizer.Truncate(t.tok, msg.Content, t.maxTokens)
			if err != nil {
				return nil, fmt.Errorf("truncate message %d: %w", i, err)
			}
			msg.Content = truncated
			out[i] = msg
		default:
			// Tool call and result payloads are structural: cutting
			// them mid-JSON would corrupt the turn.
			out[i] = msg
		}
	}
	return out, nil
}
