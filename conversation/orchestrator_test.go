package conversation_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/autogen-sub008/conversation"
	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/testutil/mocks"
	"github.com/microsoft/autogen-sub008/types"
)

func TestOrchestratorTwoAgentKeywordStop(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "keeps going", "continue")
	b := mocks.NewScriptedAgent("bob", "wraps up", "TERMINATE")

	term, err := conversation.NewDefaultTermination(4, "")
	require.NoError(t, err)

	seed := []types.Message{
		types.NewSystemMessage("be brief"),
		types.NewUserMessage("discuss"),
	}
	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a, b},
		conversation.WithTermination(term),
		conversation.WithSeedMessages(seed...),
	)
	require.NoError(t, err)

	result, err := orc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StopTerminationKeyword, result.StopReason.Reason)
	assert.Equal(t, 2, result.Turns)
	assert.Len(t, result.History, len(seed)+2)
	assert.Equal(t, conversation.StateDone, orc.State())

	last := result.History[len(result.History)-1]
	assert.Equal(t, "bob", last.Name)
	assert.Contains(t, result.Summary, "TERMINATE")
}

func TestOrchestratorMaxTurnsStop(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "", "more")
	b := mocks.NewScriptedAgent("bob", "", "again")

	term, err := conversation.NewDefaultTermination(3, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a, b},
		conversation.WithTermination(term),
		conversation.WithSeedMessages(types.NewUserMessage("go")),
	)
	require.NoError(t, err)

	result, err := orc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StopMaxTurns, result.StopReason.Reason)
	assert.Equal(t, 3, result.Turns)
}

func TestOrchestratorStepAfterDoneIsError(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "", "TERMINATE")
	term, err := conversation.NewDefaultTermination(5, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a},
		conversation.WithTermination(term),
	)
	require.NoError(t, err)

	_, err = orc.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, conversation.StateDone, orc.State())

	_, err = orc.Step(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "finished")
}

func TestOrchestratorStateTransitions(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "", "one", "TERMINATE")
	term, err := conversation.NewDefaultTermination(5, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a},
		conversation.WithTermination(term),
	)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateInitialized, orc.State())

	_, err = orc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conversation.StateStepping, orc.State())

	_, err = orc.Result()
	assert.Error(t, err, "result is unavailable before the conversation finishes")

	_, err = orc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conversation.StateDone, orc.State())

	result, err := orc.Result()
	require.NoError(t, err)
	assert.Equal(t, types.StopTerminationKeyword, result.StopReason.Reason)
}

func TestOrchestratorRejectsDuplicateNames(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "", "x")
	b := mocks.NewScriptedAgent("alice", "", "y")

	_, err := conversation.NewOrchestrator([]types.Agent{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestOrchestratorRejectsEmptyAgentList(t *testing.T) {
	_, err := conversation.NewOrchestrator(nil)
	assert.Error(t, err)
}

func TestOrchestratorEntryContextRecordsSender(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "", "hello")
	term, err := conversation.NewDefaultTermination(1, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a},
		conversation.WithTermination(term),
	)
	require.NoError(t, err)

	entry, err := orc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Context.Sender)
	assert.Equal(t, "alice", entry.Message.Name)
}

func TestOrchestratorReset(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "", "x")
	b := mocks.NewScriptedAgent("bob", "", "TERMINATE")
	term, err := conversation.NewDefaultTermination(5, "")
	require.NoError(t, err)

	seed := []types.Message{types.NewUserMessage("go")}
	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a, b},
		conversation.WithTermination(term),
		conversation.WithSeedMessages(seed...),
	)
	require.NoError(t, err)

	_, err = orc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, conversation.StateDone, orc.State())

	require.NoError(t, orc.Reset())
	assert.Equal(t, conversation.StateInitialized, orc.State())
	assert.Equal(t, len(seed), orc.History().Len())
	assert.Equal(t, 1, a.Resets())
	assert.Equal(t, 1, b.Resets())

	// The same conversation replays identically after reset.
	result, err := orc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Turns)
}

func TestOrchestratorIntroductionListsParticipants(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "asks questions", "TERMINATE")
	b := mocks.NewScriptedAgent("bob", "answers them", "x")
	term, err := conversation.NewDefaultTermination(1, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a, b},
		conversation.WithTermination(term),
		conversation.WithSeedMessages(
			types.NewSystemMessage("rules"),
			types.NewUserMessage("task"),
		),
		conversation.WithIntroduction(),
	)
	require.NoError(t, err)

	msgs := orc.History().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "alice: asks questions")
	assert.Contains(t, msgs[1].Content, "bob: answers them")
}

type streamingEcho struct {
	name   string
	deltas []string
}

func (s *streamingEcho) Name() string        { return s.name }
func (s *streamingEcho) Description() string { return "streams replies" }
func (s *streamingEcho) Reset()              {}

func (s *streamingEcho) GenerateReply(context.Context, []types.Message) (types.Message, error) {
	return types.NewAssistantMessage(strings.Join(s.deltas, "")).WithName(s.name), nil
}

func (s *streamingEcho) GenerateReplyStream(context.Context, []types.Message) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, len(s.deltas)+1)
	for _, d := range s.deltas {
		ch <- llm.StreamChunk{Delta: d}
	}
	ch <- llm.StreamChunk{Final: &llm.CreateResponse{
		FinishReason: llm.FinishStop,
		Content:      strings.Join(s.deltas, ""),
	}}
	close(ch)
	return ch, nil
}

// endlessStreamer emits deltas until its context is cancelled, never
// producing a final response.
type endlessStreamer struct {
	name string
}

func (s *endlessStreamer) Name() string        { return s.name }
func (s *endlessStreamer) Description() string { return "streams forever" }
func (s *endlessStreamer) Reset()              {}

func (s *endlessStreamer) GenerateReply(ctx context.Context, _ []types.Message) (types.Message, error) {
	<-ctx.Done()
	return types.Message{}, ctx.Err()
}

func (s *endlessStreamer) GenerateReplyStream(ctx context.Context, _ []types.Message) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ch <- llm.StreamChunk{Delta: "x"}:
			}
		}
	}()
	return ch, nil
}

func TestOrchestratorStepStreamClosesAfterConsumerCancel(t *testing.T) {
	orc, err := conversation.NewOrchestrator(
		[]types.Agent{&endlessStreamer{name: "gen"}},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := orc.StepStream(ctx)
	ev := <-ch
	require.Equal(t, conversation.EventDelta, ev.Kind)

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("event channel still open after cancellation")
		}
	}
}

func TestOrchestratorStepStreamEmitsDeltasBeforeCommit(t *testing.T) {
	agent := &streamingEcho{name: "echo", deltas: []string{"TER", "MIN", "ATE"}}
	term, err := conversation.NewDefaultTermination(3, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{agent},
		conversation.WithTermination(term),
	)
	require.NoError(t, err)

	var deltas []string
	var committed *types.Message
	var result *conversation.ChatResult
	for ev := range orc.StepStream(context.Background()) {
		switch ev.Kind {
		case conversation.EventDelta:
			deltas = append(deltas, ev.Delta)
			assert.Equal(t, 0, orc.History().Len(), "history must not change while deltas flow")
		case conversation.EventMessage:
			committed = ev.Message
		case conversation.EventDone:
			require.NoError(t, ev.Err)
			result = ev.Result
		}
	}

	assert.Equal(t, []string{"TER", "MIN", "ATE"}, deltas)
	require.NotNil(t, committed)
	assert.Equal(t, "TERMINATE", committed.Content)
	require.NotNil(t, result)
	assert.Equal(t, types.StopTerminationKeyword, result.StopReason.Reason)
}

func TestOrchestratorStepStreamNonStreamingAgent(t *testing.T) {
	a := mocks.NewScriptedAgent("alice", "", "plain reply")
	term, err := conversation.NewDefaultTermination(2, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{a},
		conversation.WithTermination(term),
	)
	require.NoError(t, err)

	var kinds []conversation.EventKind
	for ev := range orc.StepStream(context.Background()) {
		require.NoError(t, ev.Err)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []conversation.EventKind{conversation.EventMessage}, kinds)
	assert.Equal(t, 1, orc.History().Len())
}

func TestNestedChatAgentRunsInnerConversation(t *testing.T) {
	innerA := mocks.NewScriptedAgent("worker", "does the task", "draft")
	innerB := mocks.NewScriptedAgent("checker", "verifies", "looks good TERMINATE")
	innerTerm, err := conversation.NewDefaultTermination(4, "")
	require.NoError(t, err)

	inner, err := conversation.NewOrchestrator(
		[]types.Agent{innerA, innerB},
		conversation.WithTermination(innerTerm),
	)
	require.NoError(t, err)

	nested, err := conversation.NewNestedChatAgent("team", "a whole sub-team", inner, nil)
	require.NoError(t, err)

	outer := mocks.NewScriptedAgent("user_proxy", "relays tasks", "please review this")
	outerTerm, err := conversation.NewDefaultTermination(2, "")
	require.NoError(t, err)

	orc, err := conversation.NewOrchestrator(
		[]types.Agent{outer, nested},
		conversation.WithTermination(outerTerm),
	)
	require.NoError(t, err)

	_, err = orc.Step(context.Background())
	require.NoError(t, err)
	entry, err := orc.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "team", entry.Context.Sender)
	require.NotNil(t, entry.Context.Nested)
	assert.Contains(t, entry.Context.Nested.Summary, "looks good")
	assert.GreaterOrEqual(t, len(entry.Context.Nested.History), 2)
	assert.Equal(t, entry.Message.Content, entry.Context.Nested.Summary)
}

func TestLastMessageSummarizerSkipsEmpty(t *testing.T) {
	sum, err := conversation.LastMessageSummarizer{}.Summarize(context.Background(), []types.Message{
		types.NewUserMessage("question"),
		types.NewAssistantMessage("answer"),
		types.NewAssistantMessage(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", sum)
}

func TestLLMSummarizerUsesClient(t *testing.T) {
	backend := mocks.NewReplayBackend("replay").AddText("The team agreed on plan B.", types.RequestUsage{PromptTokens: 30, CompletionTokens: 8})
	client, err := llm.NewClient(backend, "test-model")
	require.NoError(t, err)

	sum, err := conversation.NewLLMSummarizer(client, "")
	require.NoError(t, err)

	got, err := sum.Summarize(context.Background(), []types.Message{
		types.NewSystemMessage("rules"),
		types.NewUserMessage("pick a plan"),
		types.NewAssistantMessage("plan B").WithName("alice"),
	})
	require.NoError(t, err)
	assert.Equal(t, "The team agreed on plan B.", got)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	transcript := calls[0].Messages[len(calls[0].Messages)-1].Content
	assert.Contains(t, transcript, "alice: plan B")
	assert.NotContains(t, transcript, "rules")
}
