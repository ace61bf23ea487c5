// Package transform provides composable, order-sensitive message
// transforms applied to an agent's outgoing message list before a model
// request is dispatched: message-count limiting, token truncation,
// token-window selection, and LLM-driven compression.
//
// A leading system message is exempt from every transform: the pipeline
// detaches it before each stage and restores it at index 0 afterwards.
package transform

import (
	"context"

	"github.com/microsoft/autogen-sub008/types"
)

// Transform rewrites an outgoing message list. Implementations never see
// the leading system message; the Pipeline handles it.
type Transform interface {
	Apply(ctx context.Context, msgs []types.Message) ([]types.Message, error)
}

// Pipeline applies an ordered list of transforms.
type Pipeline struct {
	stages []Transform
}

// NewPipeline composes transforms in application order.
func NewPipeline(stages ...Transform) *Pipeline {
	return &Pipeline{stages: stages}
}

// Apply runs every stage in order. If the input starts with a system
// message it is split off first and reattached at index 0 at the end, so
// it survives every stage untouched.
func (p *Pipeline) Apply(ctx context.Context, msgs []types.Message) ([]types.Message, error) {
	var system *types.Message
	rest := msgs
	if len(msgs) > 0 && msgs[0].Role == types.RoleSystem {
		sys := msgs[0]
		system = &sys
		rest = msgs[1:]
	}

	out := append([]types.Message(nil), rest...)
	for _, stage := range p.stages {
		var err error
		out, err = stage.Apply(ctx, out)
		if err != nil {
			return nil, err
		}
	}

	if system != nil {
		out = append([]types.Message{*system}, out...)
	}
	return out, nil
}
