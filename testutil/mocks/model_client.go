// Package mocks provides scripted test doubles for model backends and
// agents.
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/types"
)

// replayStep is one scripted outcome: a response or an error.
type replayStep struct {
	resp *llm.CreateResponse
	err  error
}

// ReplayBackend is an llm.Backend that replays scripted outcomes in
// order. When the script is exhausted the last step repeats.
type ReplayBackend struct {
	mu    sync.Mutex
	name  string
	steps []replayStep
	idx   int
	calls []*llm.CreateRequest
	// StreamChunkSize controls how many runes each streamed delta
	// carries. Zero means the whole content in one delta.
	StreamChunkSize int
}

// NewReplayBackend creates an empty scripted backend.
func NewReplayBackend(name string) *ReplayBackend {
	return &ReplayBackend{name: name}
}

// AddResponse appends a scripted response.
func (b *ReplayBackend) AddResponse(resp *llm.CreateResponse) *ReplayBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, replayStep{resp: resp})
	return b
}

// AddText appends a scripted plain-text completion.
func (b *ReplayBackend) AddText(content string, usage types.RequestUsage) *ReplayBackend {
	return b.AddResponse(&llm.CreateResponse{
		FinishReason: llm.FinishStop,
		Content:      content,
		Usage:        usage,
	})
}

// AddError appends a scripted failure.
func (b *ReplayBackend) AddError(err error) *ReplayBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, replayStep{err: err})
	return b
}

// Calls returns the captured requests, in order.
func (b *ReplayBackend) Calls() []*llm.CreateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*llm.CreateRequest(nil), b.calls...)
}

// CallCount returns how many requests reached the backend.
func (b *ReplayBackend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *ReplayBackend) Name() string { return b.name }

func (b *ReplayBackend) next(req *llm.CreateRequest) (replayStep, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, req.Clone())
	if len(b.steps) == 0 {
		return replayStep{}, false
	}
	step := b.steps[b.idx]
	if b.idx < len(b.steps)-1 {
		b.idx++
	}
	return step, true
}

func (b *ReplayBackend) Complete(ctx context.Context, req *llm.CreateRequest) (*llm.CreateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, ok := b.next(req)
	if !ok {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "replay script exhausted", Backend: b.name}
	}
	if step.err != nil {
		return nil, step.err
	}
	out := *step.resp
	return &out, nil
}

func (b *ReplayBackend) Stream(ctx context.Context, req *llm.CreateRequest) (<-chan llm.StreamChunk, error) {
	step, ok := b.next(req)
	if !ok {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "replay script exhausted", Backend: b.name}
	}
	if step.err != nil {
		return nil, step.err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for _, delta := range b.split(step.resp.Content) {
			select {
			case out <- llm.StreamChunk{Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
		final := *step.resp
		select {
		case out <- llm.StreamChunk{Final: &final}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (b *ReplayBackend) split(content string) []string {
	if content == "" {
		return nil
	}
	size := b.StreamChunkSize
	if size <= 0 {
		return []string{content}
	}
	runes := []rune(content)
	var parts []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return parts
}

var _ llm.Backend = (*ReplayBackend)(nil)

// JoinDeltas concatenates streamed deltas, a convenience for asserting
// stream contents.
func JoinDeltas(deltas []string) string {
	return strings.Join(deltas, "")
}
