package transform

import (
	"context"
	"fmt"

	"github.com/microsoft/autogen-sub008/tokenizer"
	"github.com/microsoft/autogen-sub008/types"
)

// TokenWindow keeps the newest messages whose cumulative token count fits
// a total budget. It scans from the most recent message backwards,
// accumulating until adding the next older message would exceed the
// budget, then restores oldest-first order. Ties always drop the oldest
// content, never the newest.
type TokenWindow struct {
	maxTotalTokens int
	tok            tokenizer.Tokenizer
}

// NewTokenWindow creates a total-token window. maxTotalTokens must be at
// least 1.
func NewTokenWindow(maxTotalTokens int, tok tokenizer.Tokenizer) (*TokenWindow, error) {
	if maxTotalTokens < 1 {
		return nil, fmt.Errorf("transform: total token budget must be >= 1, got %d", maxTotalTokens)
	}
	if tok == nil {
		return nil, fmt.Errorf("transform: tokenizer is required")
	}
	return &TokenWindow{maxTotalTokens: maxTotalTokens, tok: tok}, nil
}

func (w *TokenWindow) Apply(_ context.Context, msgs []types.Message) ([]types.Message, error) {
	total := 0
	// Newest-first accumulation: find the cut index of the oldest
	// message that still fits.
	cut := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n, err := w.tok.CountMessage(msgs[i])
		if err != nil {
			return nil, fmt.Errorf("count message %d: %w", i, err)
		}
		if total+n > w.maxTotalTokens {
			break
		}
		total += n
		cut = i
	}
	return msgs[cut:], nil
}
