package mocks

import (
	"context"
	"sync"

	"github.com/microsoft/autogen-sub008/types"
)

// ScriptedAgent is a types.Agent that replies from a fixed script. When
// the script is exhausted the last reply repeats.
type ScriptedAgent struct {
	mu          sync.Mutex
	name        string
	description string
	replies     []string
	idx         int
	calls       int
	resets      int
	// ReplyFunc, when set, overrides the scripted replies.
	ReplyFunc func(ctx context.Context, history []types.Message) (types.Message, error)
}

// NewScriptedAgent creates an agent that cycles through the given replies.
func NewScriptedAgent(name, description string, replies ...string) *ScriptedAgent {
	return &ScriptedAgent{name: name, description: description, replies: replies}
}

func (a *ScriptedAgent) Name() string        { return a.name }
func (a *ScriptedAgent) Description() string { return a.description }

func (a *ScriptedAgent) GenerateReply(ctx context.Context, history []types.Message) (types.Message, error) {
	if a.ReplyFunc != nil {
		return a.ReplyFunc(ctx, history)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if len(a.replies) == 0 {
		return types.NewAssistantMessage("").WithName(a.name), nil
	}
	reply := a.replies[a.idx]
	if a.idx < len(a.replies)-1 {
		a.idx++
	}
	return types.NewAssistantMessage(reply).WithName(a.name), nil
}

func (a *ScriptedAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idx = 0
	a.resets++
}

// Calls returns how many replies the agent generated.
func (a *ScriptedAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Resets returns how many times Reset was invoked.
func (a *ScriptedAgent) Resets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resets
}

var _ types.Agent = (*ScriptedAgent)(nil)
