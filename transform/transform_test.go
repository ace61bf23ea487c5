package transform

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/microsoft/autogen-sub008/tokenizer"
	"github.com/microsoft/autogen-sub008/types"
)

func estimator() tokenizer.Tokenizer {
	return tokenizer.NewEstimator("test-model", 0)
}

func TestMessageCountLimiterConstruction(t *testing.T) {
	t.Parallel()

	_, err := NewMessageCountLimiter(0)
	assert.Error(t, err, "limits below 1 fail at construction")
	_, err = NewMessageCountLimiter(-3)
	assert.Error(t, err)
	_, err = NewMessageCountLimiter(1)
	assert.NoError(t, err)
}

func TestMessageCountLimiterKeepsNewest(t *testing.T) {
	t.Parallel()

	limiter, err := NewMessageCountLimiter(2)
	require.NoError(t, err)

	msgs := []types.Message{
		types.NewUserMessage("one"),
		types.NewAssistantMessage("two"),
		types.NewUserMessage("three"),
		types.NewAssistantMessage("four"),
		types.NewUserMessage("five"),
	}
	out, err := limiter.Apply(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "four", out[0].Content)
	assert.Equal(t, "five", out[1].Content)
}

func TestPipelineRestoresSystemMessage(t *testing.T) {
	t.Parallel()

	limiter, err := NewMessageCountLimiter(2)
	require.NoError(t, err)
	pipeline := NewPipeline(limiter)

	msgs := []types.Message{
		types.NewSystemMessage("rules"),
		types.NewUserMessage("one"),
		types.NewAssistantMessage("two"),
		types.NewUserMessage("three"),
		types.NewAssistantMessage("four"),
		types.NewUserMessage("five"),
	}
	out, err := pipeline.Apply(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, types.RoleSystem, out[0].Role)
	assert.Equal(t, "rules", out[0].Content)
	assert.Equal(t, "four", out[1].Content)
	assert.Equal(t, "five", out[2].Content)
}

func TestTokenTruncatorBound(t *testing.T) {
	t.Parallel()

	tok := estimator()
	trunc, err := NewTokenTruncator(3, tok)
	require.NoError(t, err)

	long := "this is a rather long message that certainly exceeds three tokens of content"
	out, err := trunc.Apply(context.Background(), []types.Message{types.NewUserMessage(long)})
	require.NoError(t, err)

	n, err := tok.CountTokens(out[0].Content)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 3)
}

func TestTokenTruncatorLeavesToolMessagesIntact(t *testing.T) {
	t.Parallel()

	trunc, err := NewTokenTruncator(1, estimator())
	require.NoError(t, err)

	call := types.NewToolCallMessage([]types.ToolCall{{
		ID: "c1", Name: "search", Arguments: []byte(`{"query":"a fairly long query string"}`),
	}})
	out, err := trunc.Apply(context.Background(), []types.Message{call})
	require.NoError(t, err)
	assert.Equal(t, call.ToolCalls, out[0].ToolCalls)
}

// Property: per-message truncation never yields a message whose token
// count exceeds the configured limit.
func TestTokenTruncatorBoundProperty(t *testing.T) {
	tok := estimator()
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(rt, "limit")
		trunc, err := NewTokenTruncator(limit, tok)
		if err != nil {
			rt.Fatalf("construction failed: %v", err)
		}

		count := rapid.IntRange(1, 8).Draw(rt, "count")
		msgs := make([]types.Message, count)
		for i := range msgs {
			text := rapid.StringN(0, 400, 400).Draw(rt, fmt.Sprintf("text_%d", i))
			msgs[i] = types.NewUserMessage(text)
		}

		out, err := trunc.Apply(context.Background(), msgs)
		if err != nil {
			rt.Fatalf("apply failed: %v", err)
		}
		for i, msg := range out {
			n, err := tok.CountTokens(msg.Content)
			if err != nil {
				rt.Fatalf("count failed: %v", err)
			}
			if n > limit {
				rt.Fatalf("message %d has %d tokens, limit %d", i, n, limit)
			}
		}
	})
}

func TestTokenWindowKeepsNewest(t *testing.T) {
	t.Parallel()

	tok := estimator()
	msgs := []types.Message{
		types.NewUserMessage("oldest message with plenty of words in it"),
		types.NewAssistantMessage("middle message also with some words"),
		types.NewUserMessage("newest"),
	}

	newestCost, err := tok.CountMessage(msgs[2])
	require.NoError(t, err)

	window, err := NewTokenWindow(newestCost, tok)
	require.NoError(t, err)

	out, err := window.Apply(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "newest", out[0].Content, "ties must drop the oldest, never the newest")
}

// Property: the window never exceeds its budget and always keeps a
// suffix (the newest messages) in original order.
func TestTokenWindowBudgetProperty(t *testing.T) {
	tok := estimator()
	rapid.Check(t, func(rt *rapid.T) {
		budget := rapid.IntRange(1, 300).Draw(rt, "budget")
		window, err := NewTokenWindow(budget, tok)
		if err != nil {
			rt.Fatalf("construction failed: %v", err)
		}

		count := rapid.IntRange(0, 12).Draw(rt, "count")
		msgs := make([]types.Message, count)
		for i := range msgs {
			text := rapid.StringN(0, 200, 200).Draw(rt, fmt.Sprintf("text_%d", i))
			msgs[i] = types.NewUserMessage(text).WithName(fmt.Sprintf("agent_%d", i))
		}

		out, err := window.Apply(context.Background(), msgs)
		if err != nil {
			rt.Fatalf("apply failed: %v", err)
		}

		total, err := tok.CountMessages(out)
		if err != nil {
			rt.Fatalf("count failed: %v", err)
		}
		// CountMessages adds a fixed conversation-end overhead that the
		// window does not account per-message.
		if len(out) > 0 && total-3 > budget {
			rt.Fatalf("window kept %d tokens, budget %d", total-3, budget)
		}

		// The kept set must be exactly the newest suffix.
		if len(out) > 0 {
			offset := len(msgs) - len(out)
			for i := range out {
				if out[i].Name != msgs[offset+i].Name {
					rt.Fatalf("window did not keep a suffix: out[%d]=%s, want %s",
						i, out[i].Name, msgs[offset+i].Name)
				}
			}
		}
	})
}

func TestAgentViewRemap(t *testing.T) {
	t.Parallel()

	history := []types.Message{
		types.NewSystemMessage("rules"),
		types.NewAssistantMessage("from alice").WithName("alice"),
		types.NewAssistantMessage("from bob").WithName("bob"),
		types.NewToolResultMessage([]types.ToolResult{{CallID: "c1", Content: "result"}}),
	}

	view := AgentView(history, "alice")
	assert.Equal(t, types.RoleSystem, view[0].Role)
	assert.Equal(t, types.RoleAssistant, view[1].Role, "own messages remap to self role")
	assert.Equal(t, types.RoleUser, view[2].Role, "peer messages remap to peer role")
	assert.Equal(t, types.RoleToolResult, view[3].Role)

	// The canonical history is untouched.
	assert.Equal(t, types.RoleAssistant, history[2].Role)

	// Two-role invariant: everything except system/tool is self or peer.
	for _, msg := range AgentView(history, "bob") {
		switch msg.Role {
		case types.RoleSystem, types.RoleToolCall, types.RoleToolResult:
		default:
			assert.Contains(t, []types.Role{types.RoleUser, types.RoleAssistant}, msg.Role)
		}
	}
}
