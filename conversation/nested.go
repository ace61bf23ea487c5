package conversation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/types"
)

// NestedChatAgent makes a whole orchestrated conversation behave as a
// single agent. Each turn it resets the inner conversation, hands it
// the incoming task as a user message, runs it to completion, and
// replies with the inner summary. The full inner result is exposed via
// LastNestedResult so the outer history can carry it in the entry
// context.
type NestedChatAgent struct {
	mu          sync.Mutex
	name        string
	description string
	inner       *Orchestrator
	last        *types.NestedChatResult
	logger      *zap.Logger
}

// NewNestedChatAgent wraps an inner orchestrator as an agent.
func NewNestedChatAgent(name, description string, inner *Orchestrator, logger *zap.Logger) (*NestedChatAgent, error) {
	if name == "" {
		return nil, fmt.Errorf("conversation: nested agent requires a name")
	}
	if inner == nil {
		return nil, fmt.Errorf("conversation: nested agent requires an inner orchestrator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NestedChatAgent{
		name:        name,
		description: description,
		inner:       inner,
		logger: logger.With(
			zap.String("component", "nested_agent"),
			zap.String("agent", name)),
	}, nil
}

func (a *NestedChatAgent) Name() string        { return a.name }
func (a *NestedChatAgent) Description() string { return a.description }

// GenerateReply runs the inner conversation on the latest outer message
// and returns its summary as this agent's reply.
func (a *NestedChatAgent) GenerateReply(ctx context.Context, history []types.Message) (types.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.inner.Reset(); err != nil {
		return types.Message{}, fmt.Errorf("nested conversation reset: %w", err)
	}

	task := latestTask(history)
	if task != "" {
		if err := a.inner.History().Add(types.NewUserMessage(task), types.MessageContext{}); err != nil {
			return types.Message{}, err
		}
	}

	a.logger.Debug("starting nested conversation",
		zap.String("inner_id", a.inner.ID()))
	result, err := a.inner.Run(ctx)
	if err != nil {
		return types.Message{}, fmt.Errorf("nested conversation: %w", err)
	}

	a.last = &types.NestedChatResult{
		Summary: result.Summary,
		History: result.History,
	}
	return types.NewAssistantMessage(result.Summary).WithName(a.name), nil
}

// LastNestedResult returns the inner result of the most recent turn, or
// nil before the first turn.
func (a *NestedChatAgent) LastNestedResult() *types.NestedChatResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Reset clears the remembered inner result and resets the inner
// conversation.
func (a *NestedChatAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = nil
	if err := a.inner.Reset(); err != nil {
		a.logger.Warn("inner reset failed", zap.Error(err))
	}
}

// latestTask extracts the most recent non-system message text to hand
// to the inner conversation as its task.
func latestTask(history []types.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleSystem {
			continue
		}
		if text := history[i].Text(); text != "" {
			return text
		}
	}
	return ""
}
