package conversation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/conversation"
	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/testutil/mocks"
	"github.com/microsoft/autogen-sub008/types"
)

func TestDefaultTerminationTurnBoundary(t *testing.T) {
	const maxTurns = 3
	term, err := conversation.NewDefaultTermination(maxTurns, "")
	require.NoError(t, err)

	agent := mocks.NewScriptedAgent("a", "", "ok")
	history := []types.Message{types.NewAssistantMessage("working on it")}

	for i := 0; i < maxTurns-1; i++ {
		term.TurnTaken(agent)
		assert.Nil(t, term.Check(context.Background(), history), "turn %d should continue", i+1)
	}

	term.TurnTaken(agent)
	verdict := term.Check(context.Background(), history)
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopMaxTurns, verdict.Reason)

	// One past the boundary still terminates.
	term.TurnTaken(agent)
	verdict = term.Check(context.Background(), history)
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopMaxTurns, verdict.Reason)
}

func TestDefaultTerminationKeyword(t *testing.T) {
	term, err := conversation.NewDefaultTermination(10, "")
	require.NoError(t, err)

	history := []types.Message{types.NewAssistantMessage("All done. TERMINATE")}
	verdict := term.Check(context.Background(), history)
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopTerminationKeyword, verdict.Reason)
}

func TestDefaultTerminationCustomKeyword(t *testing.T) {
	term, err := conversation.NewDefaultTermination(10, "DONE")
	require.NoError(t, err)

	assert.Nil(t, term.Check(context.Background(), []types.Message{types.NewAssistantMessage("TERMINATE")}))

	verdict := term.Check(context.Background(), []types.Message{types.NewAssistantMessage("DONE")})
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopTerminationKeyword, verdict.Reason)
}

func TestDefaultTerminationUserRequest(t *testing.T) {
	term, err := conversation.NewDefaultTermination(10, "")
	require.NoError(t, err)

	history := []types.Message{types.NewUserMessage("please stop").WithTermination()}
	verdict := term.Check(context.Background(), history)
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopUserRequested, verdict.Reason)
}

func TestDefaultTerminationScansSeedMessages(t *testing.T) {
	term, err := conversation.NewDefaultTermination(10, "")
	require.NoError(t, err)

	// The user request sits in the seed, not the newest message.
	history := []types.Message{
		types.NewUserMessage("stop this").WithTermination(),
		types.NewAssistantMessage("working"),
	}
	verdict := term.Check(context.Background(), history)
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopUserRequested, verdict.Reason)

	term.Reset()
	history = []types.Message{
		types.NewAssistantMessage("TERMINATE"),
		types.NewAssistantMessage("one more thing"),
	}
	verdict = term.Check(context.Background(), history)
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopTerminationKeyword, verdict.Reason)
}

func TestDefaultTerminationIgnoresSystemKeyword(t *testing.T) {
	term, err := conversation.NewDefaultTermination(10, "")
	require.NoError(t, err)

	history := []types.Message{
		types.NewSystemMessage("reply TERMINATE when the task is done"),
		types.NewAssistantMessage("still working"),
	}
	assert.Nil(t, term.Check(context.Background(), history))
}

func TestDefaultTerminationRejectsZeroTurns(t *testing.T) {
	_, err := conversation.NewDefaultTermination(0, "")
	assert.Error(t, err)
}

func TestDefaultTerminationReset(t *testing.T) {
	term, err := conversation.NewDefaultTermination(1, "")
	require.NoError(t, err)
	agent := mocks.NewScriptedAgent("a", "", "ok")

	term.TurnTaken(agent)
	require.NotNil(t, term.Check(context.Background(), nil))

	term.Reset()
	assert.Nil(t, term.Check(context.Background(), nil))
}

func reflectionClient(t *testing.T, replies ...string) llm.ModelClient {
	t.Helper()
	backend := mocks.NewReplayBackend("replay")
	for _, r := range replies {
		backend.AddText(r, types.RequestUsage{PromptTokens: 20, CompletionTokens: 5})
	}
	client, err := llm.NewClient(backend, "test-model")
	require.NoError(t, err)
	return client
}

func TestReflectionTerminationGoalReached(t *testing.T) {
	client := reflectionClient(t, `{"is_done": true, "reason": "answer delivered"}`)
	term, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{Goal: "answer the question"}, zap.NewNop())
	require.NoError(t, err)

	verdict := term.Check(context.Background(), []types.Message{types.NewAssistantMessage("42")})
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopGoalReached, verdict.Reason)
	assert.Equal(t, "answer delivered", verdict.Explanation)
}

func TestReflectionTerminationNotDone(t *testing.T) {
	client := reflectionClient(t, `{"is_done": false, "reason": "still discussing"}`)
	term, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{Goal: "finish"}, zap.NewNop())
	require.NoError(t, err)

	assert.Nil(t, term.Check(context.Background(), []types.Message{types.NewAssistantMessage("hmm")}))
}

func TestReflectionTerminationMalformedFailsOpen(t *testing.T) {
	for _, reply := range []string{
		"not json at all",
		`{"reason": "missing verdict"}`,
		`{"is_done": "yes"}`,
	} {
		client := reflectionClient(t, reply)
		term, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{Goal: "finish"}, zap.NewNop())
		require.NoError(t, err)

		assert.Nil(t, term.Check(context.Background(), []types.Message{types.NewAssistantMessage("x")}),
			"reply %q must be treated as not done", reply)
	}
}

func TestReflectionTerminationErrorFailsOpen(t *testing.T) {
	backend := mocks.NewReplayBackend("replay").AddError(&llm.Error{Code: llm.ErrUpstreamError, Message: "boom"})
	client, err := llm.NewClient(backend, "test-model")
	require.NoError(t, err)

	term, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{Goal: "finish"}, zap.NewNop())
	require.NoError(t, err)

	assert.Nil(t, term.Check(context.Background(), []types.Message{types.NewAssistantMessage("x")}))
}

func TestReflectionTerminationFencedJSON(t *testing.T) {
	client := reflectionClient(t, "```json\n{\"is_done\": true, \"reason\": \"done\"}\n```")
	term, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{Goal: "finish"}, zap.NewNop())
	require.NoError(t, err)

	verdict := term.Check(context.Background(), []types.Message{types.NewAssistantMessage("x")})
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopGoalReached, verdict.Reason)
}

func TestReflectionTerminationMinTurnsGate(t *testing.T) {
	client := reflectionClient(t, `{"is_done": true, "reason": "done"}`)
	term, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{Goal: "finish", MinTurns: 2}, zap.NewNop())
	require.NoError(t, err)

	history := []types.Message{types.NewAssistantMessage("x")}
	agent := mocks.NewScriptedAgent("a", "", "ok")

	assert.Nil(t, term.Check(context.Background(), history))
	term.TurnTaken(agent)
	assert.Nil(t, term.Check(context.Background(), history))
	term.TurnTaken(agent)
	assert.NotNil(t, term.Check(context.Background(), history))
}

func TestReflectionTerminationInsufficientProgress(t *testing.T) {
	client := reflectionClient(t, `{"is_done": false, "reason": "no"}`)
	term, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{Goal: "finish", MaxChecks: 2}, zap.NewNop())
	require.NoError(t, err)

	history := []types.Message{types.NewAssistantMessage("x")}
	assert.Nil(t, term.Check(context.Background(), history))

	verdict := term.Check(context.Background(), history)
	require.NotNil(t, verdict)
	assert.Equal(t, types.StopInsufficientProgress, verdict.Reason)
}

func TestReflectionTerminationRequiresGoal(t *testing.T) {
	client := reflectionClient(t, "x")
	_, err := conversation.NewReflectionTermination(client, conversation.ReflectionConfig{}, zap.NewNop())
	assert.Error(t, err)
}
