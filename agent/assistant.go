package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/transform"
	"github.com/microsoft/autogen-sub008/types"
)

// defaultMaxToolRounds bounds how many consecutive tool-call rounds a
// single reply may take before the turn is abandoned.
const defaultMaxToolRounds = 5

// Assistant is a model-backed agent. Each turn it projects the shared
// history into its own two-role view, runs the view through its
// transform pipeline, and drives the model, resolving tool calls until
// the model produces text.
type Assistant struct {
	name          string
	description   string
	systemPrompt  string
	client        llm.ModelClient
	pipeline      *transform.Pipeline
	tools         *ToolRegistry
	maxToolRounds int
	logger        *zap.Logger
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithSystemPrompt sets the agent's private system prompt. It replaces
// any system message inherited from the shared history.
func WithSystemPrompt(prompt string) AssistantOption {
	return func(a *Assistant) { a.systemPrompt = prompt }
}

// WithPipeline sets the transform pipeline applied to the agent's view
// of the history before every model call.
func WithPipeline(p *transform.Pipeline) AssistantOption {
	return func(a *Assistant) { a.pipeline = p }
}

// WithTools gives the agent a tool registry.
func WithTools(r *ToolRegistry) AssistantOption {
	return func(a *Assistant) { a.tools = r }
}

// WithMaxToolRounds bounds consecutive tool-call rounds per reply.
func WithMaxToolRounds(n int) AssistantOption {
	return func(a *Assistant) { a.maxToolRounds = n }
}

// WithAssistantLogger sets the logger.
func WithAssistantLogger(l *zap.Logger) AssistantOption {
	return func(a *Assistant) { a.logger = l }
}

// NewAssistant creates a model-backed agent.
func NewAssistant(name, description string, client llm.ModelClient, opts ...AssistantOption) (*Assistant, error) {
	if name == "" {
		return nil, fmt.Errorf("agent: assistant requires a name")
	}
	if client == nil {
		return nil, fmt.Errorf("agent: assistant %q requires a model client", name)
	}
	a := &Assistant{
		name:          name,
		description:   description,
		client:        client,
		maxToolRounds: defaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxToolRounds < 1 {
		return nil, fmt.Errorf("agent: max tool rounds must be >= 1, got %d", a.maxToolRounds)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.With(
		zap.String("component", "assistant"),
		zap.String("agent", name))
	return a, nil
}

func (a *Assistant) Name() string        { return a.name }
func (a *Assistant) Description() string { return a.description }

// Reset is a no-op: the assistant keeps no per-conversation state, all
// of it lives in the shared history.
func (a *Assistant) Reset() {}

// prepare builds the model-facing message list for one turn: project
// the shared history into this agent's view, install the private
// system prompt, and run the transform pipeline.
func (a *Assistant) prepare(ctx context.Context, history []types.Message) ([]types.Message, error) {
	view := transform.AgentView(history, a.name)

	if a.systemPrompt != "" {
		if len(view) > 0 && view[0].Role == types.RoleSystem {
			view = view[1:]
		}
		view = append([]types.Message{types.NewSystemMessage(a.systemPrompt)}, view...)
	}

	if a.pipeline == nil {
		return view, nil
	}
	out, err := a.pipeline.Apply(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("transform pipeline: %w", err)
	}
	return out, nil
}

func (a *Assistant) request(msgs []types.Message) *llm.CreateRequest {
	req := &llm.CreateRequest{Messages: msgs}
	if a.tools != nil {
		req.Tools = a.tools.Schemas()
	}
	return req
}

// GenerateReply produces the agent's next message, resolving tool-call
// rounds until the model returns text.
func (a *Assistant) GenerateReply(ctx context.Context, history []types.Message) (types.Message, error) {
	msgs, err := a.prepare(ctx, history)
	if err != nil {
		return types.Message{}, err
	}

	for round := 0; round < a.maxToolRounds; round++ {
		resp, err := a.client.Create(ctx, a.request(msgs))
		if err != nil {
			return types.Message{}, err
		}
		if resp.FinishReason != llm.FinishToolCalls {
			return resp.Message().WithName(a.name), nil
		}
		msgs, err = a.resolveToolCalls(ctx, msgs, resp)
		if err != nil {
			return types.Message{}, err
		}
	}
	return types.Message{}, fmt.Errorf("agent %q: no text reply after %d tool rounds", a.name, a.maxToolRounds)
}

// GenerateReplyStream streams the reply's text deltas. Tool-call rounds
// run silently between streamed rounds; only text reaches the channel.
func (a *Assistant) GenerateReplyStream(ctx context.Context, history []types.Message) (<-chan llm.StreamChunk, error) {
	msgs, err := a.prepare(ctx, history)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for round := 0; round < a.maxToolRounds; round++ {
			inner, err := a.client.CreateStream(ctx, a.request(msgs))
			if err != nil {
				out <- llm.StreamChunk{Err: err}
				return
			}

			final, err := a.forwardDeltas(ctx, inner, out)
			if err != nil {
				out <- llm.StreamChunk{Err: err}
				return
			}
			if final.FinishReason != llm.FinishToolCalls {
				out <- llm.StreamChunk{Final: final}
				return
			}
			msgs, err = a.resolveToolCalls(ctx, msgs, final)
			if err != nil {
				out <- llm.StreamChunk{Err: err}
				return
			}
		}
		out <- llm.StreamChunk{Err: fmt.Errorf("agent %q: no text reply after %d tool rounds", a.name, a.maxToolRounds)}
	}()
	return out, nil
}

// forwardDeltas relays text deltas to out and returns the final
// response of one streamed round.
func (a *Assistant) forwardDeltas(ctx context.Context, in <-chan llm.StreamChunk, out chan<- llm.StreamChunk) (*llm.CreateResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "stream closed without a final response"}
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			if chunk.Final != nil {
				return chunk.Final, nil
			}
			if chunk.Delta != "" {
				out <- llm.StreamChunk{Delta: chunk.Delta}
			}
		}
	}
}

// resolveToolCalls executes the requested calls and extends the message
// list with the call and result messages for the next round.
func (a *Assistant) resolveToolCalls(ctx context.Context, msgs []types.Message, resp *llm.CreateResponse) ([]types.Message, error) {
	if a.tools == nil {
		return nil, fmt.Errorf("agent %q: model requested tools but none are registered", a.name)
	}
	a.logger.Debug("resolving tool calls", zap.Int("count", len(resp.ToolCalls)))

	results, err := a.tools.ExecuteAll(ctx, resp.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", a.name, err)
	}
	msgs = append(msgs, types.NewToolCallMessage(resp.ToolCalls))
	msgs = append(msgs, types.NewToolResultMessage(results))
	return msgs, nil
}
