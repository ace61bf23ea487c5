package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/microsoft/autogen-sub008/types"
)

// FinishReason says why a completion stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
)

// ToolSchema describes a tool offered to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// CreateRequest is a single completion request.
//
// APIKey and BaseURL are transport credentials: they are never part of
// the cache key, so the same logical request hits the cache regardless of
// which endpoint serves it.
type CreateRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Tools       []ToolSchema    `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
	// ExtraArgs carries backend-specific parameters.
	ExtraArgs map[string]any `json:"extra_args,omitempty"`

	APIKey  string `json:"-"`
	BaseURL string `json:"-"`
}

// Clone returns a copy with fresh slices so callers can adjust a request
// without aliasing the original.
func (r *CreateRequest) Clone() *CreateRequest {
	out := *r
	out.Messages = types.CloneMessages(r.Messages)
	out.Tools = append([]ToolSchema(nil), r.Tools...)
	out.Stop = append([]string(nil), r.Stop...)
	if r.ExtraArgs != nil {
		out.ExtraArgs = make(map[string]any, len(r.ExtraArgs))
		for k, v := range r.ExtraArgs {
			out.ExtraArgs[k] = v
		}
	}
	return &out
}

// CreateResponse is the final result of a completion request.
type CreateResponse struct {
	FinishReason FinishReason       `json:"finish_reason"`
	Content      string             `json:"content,omitempty"`
	ToolCalls    []types.ToolCall   `json:"tool_calls,omitempty"`
	Usage        types.RequestUsage `json:"usage"`
	// Cached reports whether the response was served from the request
	// cache without a network call.
	Cached bool `json:"cached,omitempty"`
}

// Clone returns a deep copy. Cached responses are cloned on both store
// and hit so callers mutating tool call slices cannot corrupt the cache.
func (r *CreateResponse) Clone() *CreateResponse {
	out := *r
	if len(r.ToolCalls) > 0 {
		out.ToolCalls = make([]types.ToolCall, len(r.ToolCalls))
		for i, tc := range r.ToolCalls {
			tc.Arguments = append(json.RawMessage(nil), tc.Arguments...)
			out.ToolCalls[i] = tc
		}
	}
	return &out
}

// Message converts the response into a history message.
func (r *CreateResponse) Message() types.Message {
	if r.FinishReason == FinishToolCalls && len(r.ToolCalls) > 0 {
		return types.NewToolCallMessage(r.ToolCalls)
	}
	return types.NewAssistantMessage(r.Content)
}

// StreamChunk is one event of a streamed completion: either an
// incremental delta, the single final aggregate response, or an error.
// A stream is lazy, finite and non-restartable; it carries exactly one
// chunk with Final set (or one with Err set) as its last element.
type StreamChunk struct {
	Delta     string          `json:"delta,omitempty"`
	ToolDelta *types.ToolCall `json:"tool_delta,omitempty"`
	Final     *CreateResponse `json:"final,omitempty"`
	Err       error           `json:"-"`
}

// ModelClient sends conversations to a model and reports usage.
type ModelClient interface {
	// Create dispatches the request and blocks for the full response.
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)

	// CreateStream dispatches the request and returns a channel of
	// incremental chunks terminated by exactly one final chunk. The
	// channel is closed after the terminal chunk. Cancellation is
	// observed at every chunk boundary.
	CreateStream(ctx context.Context, req *CreateRequest) (<-chan StreamChunk, error)

	// Model returns the default model this client targets.
	Model() string

	// ActualUsage returns the running total for real network calls only.
	ActualUsage() types.RequestUsage

	// TotalUsage returns the running total including cache hits.
	TotalUsage() types.RequestUsage
}

// CollectStream drains a chunk channel and returns the final response.
// It is the bridge from the streaming to the non-streaming contract.
func CollectStream(ctx context.Context, ch <-chan StreamChunk) (*CreateResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return nil, &Error{Code: ErrUpstreamError, Message: "stream closed without a final response"}
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			if chunk.Final != nil {
				return chunk.Final, nil
			}
		}
	}
}
