// Package tokenizer provides model-aware token counting used by the
// transform pipeline and compression triggers.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/microsoft/autogen-sub008/types"
)

// Tokenizer is the unified token counting interface.
type Tokenizer interface {
	// CountTokens returns the token count of the given text.
	CountTokens(text string) (int, error)

	// CountMessage returns the token count of a single message,
	// including per-message overhead (role markers, separators).
	CountMessage(msg types.Message) (int, error)

	// CountMessages returns the total token count of a message list.
	CountMessages(msgs []types.Message) (int, error)

	// Encode converts text into a list of token IDs.
	Encode(text string) ([]int, error)

	// Decode converts token IDs back into text.
	Decode(tokens []int) (string, error)

	// MaxTokens returns the model's maximum context length.
	MaxTokens() int

	// Name returns the tokenizer's name.
	Name() string
}

// Truncate cuts text to at most maxTokens tokens using a hard prefix cut.
// Tokenizers that cannot decode (the estimator) fall back to a
// proportional rune cut.
func Truncate(t Tokenizer, text string, maxTokens int) (string, error) {
	if maxTokens < 0 {
		return "", fmt.Errorf("tokenizer: negative token limit %d", maxTokens)
	}
	ids, err := t.Encode(text)
	if err != nil {
		return "", err
	}
	if len(ids) <= maxTokens {
		return text, nil
	}
	out, err := t.Decode(ids[:maxTokens])
	if err == nil {
		return out, nil
	}
	// Decode unsupported: keep the same fraction of runes as of tokens,
	// then shrink until the prefix actually fits. The proportional cut
	// overshoots when the head of the string is denser than its average
	// (multi-byte runes up front, ASCII behind).
	runes := []rune(text)
	keep := len(runes) * maxTokens / len(ids)
	if keep > len(runes) {
		keep = len(runes)
	}
	for keep > 0 {
		n, err := t.CountTokens(string(runes[:keep]))
		if err != nil {
			return "", err
		}
		if n <= maxTokens {
			break
		}
		// Shrink proportionally to the overshoot, at least one rune.
		next := keep * maxTokens / n
		if next >= keep {
			next = keep - 1
		}
		keep = next
	}
	return string(runes[:keep]), nil
}

// Global tokenizer registry, keyed by model name.
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// Register registers a tokenizer for the given model name.
func Register(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// ForModel returns the tokenizer registered for the given model.
// It also tries prefix matching (e.g. "gpt-4o" matches "gpt-4o-mini").
func ForModel(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}
	for prefix, t := range modelTokenizers {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// ForModelOrEstimate returns the registered tokenizer for the model,
// falling back to the generic estimator when none is registered.
func ForModelOrEstimate(model string) Tokenizer {
	if t, err := ForModel(model); err == nil {
		return t
	}
	if t, err := NewTiktoken(model); err == nil {
		return t
	}
	return NewEstimator(model, 0)
}
