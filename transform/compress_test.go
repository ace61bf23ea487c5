package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/testutil/mocks"
	"github.com/microsoft/autogen-sub008/types"
)

func newSummaryClient(t *testing.T, summary string) (*llm.Client, *mocks.ReplayBackend) {
	t.Helper()
	backend := mocks.NewReplayBackend("summarizer")
	if summary != "" {
		backend.AddText(summary, types.RequestUsage{PromptTokens: 50, CompletionTokens: 10})
	}
	client, err := llm.NewClient(backend, "test-model")
	require.NoError(t, err)
	return client, backend
}

func longHistory(n int) []types.Message {
	msgs := []types.Message{types.NewUserMessage("solve the task described here")}
	for i := 1; i < n; i++ {
		role := types.NewAssistantMessage
		if i%2 == 0 {
			role = types.NewUserMessage
		}
		msgs = append(msgs, role(strings.Repeat("progress report with many words ", 6)))
	}
	return msgs
}

func TestCompressorRoundTrip(t *testing.T) {
	t.Parallel()

	client, backend := newSummaryClient(t, "short summary")
	comp, err := NewCompressor(client, estimator(), CompressorConfig{
		TriggerTokens: 50,
		LeaveLast:     2,
	}, nil)
	require.NoError(t, err)

	msgs := longHistory(10)
	tok := estimator()
	before, err := tok.CountMessages(msgs)
	require.NoError(t, err)

	out, compressed, err := comp.Compress(context.Background(), msgs)
	require.NoError(t, err)
	require.True(t, compressed)
	assert.Equal(t, 1, backend.CallCount())

	// head + synthetic summary + tail of 2
	require.Len(t, out, 4)
	assert.Equal(t, msgs[0], out[0])
	assert.Contains(t, out[1].Content, "short summary")
	assert.Equal(t, msgs[len(msgs)-2:], out[2:])

	after, err := tok.CountMessages(out)
	require.NoError(t, err)
	assert.Less(t, after, before, "successful compression must strictly reduce token count")
}

func TestCompressorBelowThresholdSkips(t *testing.T) {
	t.Parallel()

	client, backend := newSummaryClient(t, "unused")
	comp, err := NewCompressor(client, estimator(), CompressorConfig{
		TriggerTokens: 100000,
		LeaveLast:     2,
	}, nil)
	require.NoError(t, err)

	msgs := longHistory(10)
	out, compressed, err := comp.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, msgs, out)
	assert.Equal(t, 0, backend.CallCount(), "trigger not crossed: no model call")
}

func TestCompressorModelFailureKeepsHistory(t *testing.T) {
	t.Parallel()

	backend := mocks.NewReplayBackend("summarizer")
	backend.AddError(&llm.Error{Code: llm.ErrUpstreamError, Message: "summarizer down"})
	client, err := llm.NewClient(backend, "test-model")
	require.NoError(t, err)

	comp, err := NewCompressor(client, estimator(), CompressorConfig{
		TriggerTokens: 50,
		LeaveLast:     2,
	}, nil)
	require.NoError(t, err)

	msgs := longHistory(10)
	out, compressed, err := comp.Compress(context.Background(), msgs)
	assert.Error(t, err)
	assert.False(t, compressed)
	assert.Equal(t, msgs, out, "failed compression keeps the uncompressed history")

	// Through the Transform interface the failure is absorbed entirely.
	out2, err := comp.Apply(context.Background(), msgs)
	assert.NoError(t, err)
	assert.Equal(t, msgs, out2)
}

func TestCompressorDisabledBelowOverhead(t *testing.T) {
	t.Parallel()

	client, backend := newSummaryClient(t, "unused")
	comp, err := NewCompressor(client, estimator(), CompressorConfig{
		TriggerTokens:         100,
		InitialOverheadTokens: 200,
		LeaveLast:             2,
	}, nil)
	require.NoError(t, err)
	assert.True(t, comp.Disabled())

	msgs := longHistory(10)
	out, compressed, err := comp.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, msgs, out)
	assert.Equal(t, 0, backend.CallCount())
}

func TestCompressorConfigValidation(t *testing.T) {
	t.Parallel()

	client, _ := newSummaryClient(t, "unused")

	_, err := NewCompressor(nil, estimator(), CompressorConfig{TriggerTokens: 10}, nil)
	assert.Error(t, err)

	_, err = NewCompressor(client, estimator(), CompressorConfig{TriggerTokens: 10, TriggerRatio: 0.5}, nil)
	assert.Error(t, err, "absolute and ratio triggers are mutually exclusive")

	_, err = NewCompressor(client, estimator(), CompressorConfig{TriggerRatio: 1.5}, nil)
	assert.Error(t, err)

	_, err = NewCompressor(client, estimator(), CompressorConfig{TriggerTokens: 10, LeaveLast: -1}, nil)
	assert.Error(t, err)
}

func TestCompressorRatioResolution(t *testing.T) {
	t.Parallel()

	backend := mocks.NewReplayBackend("summarizer")
	client, err := llm.NewClient(backend, "gpt-4")
	require.NoError(t, err)

	// gpt-4 has a 8192-token window; a 0.5 ratio resolves to 4096.
	comp, err := NewCompressor(client, estimator(), CompressorConfig{
		TriggerRatio: 0.5,
		LeaveLast:    1,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4096, comp.threshold)
}

func TestSerializeForCompressionTags(t *testing.T) {
	t.Parallel()

	msgs := []types.Message{
		types.NewUserMessage("plain user"),
		types.NewAssistantMessage("plain assistant"),
		types.NewUserMessage("named user").WithName("Critic"),
		types.NewAssistantMessage("named assistant").WithName("Planner"),
		types.NewToolCallMessage([]types.ToolCall{{ID: "c1", Name: "run", Arguments: []byte(`{}`)}}),
		types.NewToolResultMessage([]types.ToolResult{{CallID: "c1", Content: "done"}}),
	}

	out := SerializeForCompression(msgs)
	assert.Contains(t, out, "##USER##")
	assert.Contains(t, out, "##ASSISTANT##")
	assert.Contains(t, out, "##Critic(USER)##")
	assert.Contains(t, out, "##Planner(ASSISTANT)##")
	assert.Contains(t, out, "##FUNCTION_CALL##")
	assert.Contains(t, out, "##FUNCTION_RETURN##")
}
