package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/microsoft/autogen-sub008/types"
)

// cacheKeyPayload is the normalized request form that is hashed into a
// cache key. Credentials and endpoint fields are deliberately absent:
// the same logical request must produce the same key regardless of which
// backend serves it. Map keys are sorted by encoding/json, so the key is
// stable under field insertion order.
type cacheKeyPayload struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Tools       []ToolSchema    `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	ExtraArgs   map[string]any  `json:"extra_args,omitempty"`
}

// CacheKey derives the deterministic fingerprint of a request.
func CacheKey(req *CreateRequest) (string, error) {
	payload := cacheKeyPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		ExtraArgs:   req.ExtraArgs,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
