package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/testutil/mocks"
	"github.com/microsoft/autogen-sub008/types"
)

func newPlainClient(t *testing.T, backend *mocks.ReplayBackend, model string) *llm.Client {
	t.Helper()
	client, err := llm.NewClient(backend, model)
	require.NoError(t, err)
	return client
}

func TestChainedClientFailsOverOnTimeout(t *testing.T) {
	t.Parallel()

	primary := mocks.NewReplayBackend("primary")
	primary.AddError(&llm.Error{Code: llm.ErrUpstreamTimeout, Message: "deadline exceeded", Backend: "primary"})
	secondary := mocks.NewReplayBackend("secondary")
	secondary.AddText("rescued", types.RequestUsage{PromptTokens: 1, CompletionTokens: 1})

	chain, err := llm.NewChainedClient([]llm.ModelClient{
		newPlainClient(t, primary, "gpt-4o"),
		newPlainClient(t, secondary, "gpt-4o-mini"),
	}, nil)
	require.NoError(t, err)

	resp, err := chain.Create(context.Background(), &llm.CreateRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "rescued", resp.Content)
	assert.Equal(t, 1, primary.CallCount())
	assert.Equal(t, 1, secondary.CallCount())
}

func TestChainedClientNeverRetriesContentFilter(t *testing.T) {
	t.Parallel()

	primary := mocks.NewReplayBackend("primary")
	primary.AddError(&llm.Error{Code: llm.ErrContentFiltered, Message: "policy verdict", Backend: "primary"})
	secondary := mocks.NewReplayBackend("secondary")
	secondary.AddText("should never be reached", types.RequestUsage{})

	chain, err := llm.NewChainedClient([]llm.ModelClient{
		newPlainClient(t, primary, "gpt-4o"),
		newPlainClient(t, secondary, "gpt-4o-mini"),
	}, nil)
	require.NoError(t, err)

	_, err = chain.Create(context.Background(), &llm.CreateRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.True(t, llm.IsContentFiltered(err))
	assert.Equal(t, 0, secondary.CallCount(), "content filter must not fail over")
}

func TestChainedClientSurfacesLastFailure(t *testing.T) {
	t.Parallel()

	first := mocks.NewReplayBackend("first")
	first.AddError(&llm.Error{Code: llm.ErrUpstreamTimeout, Message: "first timed out"})
	second := mocks.NewReplayBackend("second")
	second.AddError(&llm.Error{Code: llm.ErrUpstreamError, Message: "second exploded"})

	chain, err := llm.NewChainedClient([]llm.ModelClient{
		newPlainClient(t, first, "gpt-4o"),
		newPlainClient(t, second, "gpt-4o-mini"),
	}, nil)
	require.NoError(t, err)

	_, err = chain.Create(context.Background(), &llm.CreateRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second exploded")
	assert.Contains(t, err.Error(), "timeout")
}

func TestChainedClientRequiresClients(t *testing.T) {
	t.Parallel()

	_, err := llm.NewChainedClient(nil, nil)
	assert.Error(t, err)
}

func TestChainedClientAggregatesUsage(t *testing.T) {
	t.Parallel()

	primary := mocks.NewReplayBackend("primary")
	primary.AddError(&llm.Error{Code: llm.ErrUpstreamTimeout, Message: "timeout"})
	primary.AddText("later", types.RequestUsage{PromptTokens: 5, CompletionTokens: 5})
	secondary := mocks.NewReplayBackend("secondary")
	secondary.AddText("rescued", types.RequestUsage{PromptTokens: 3, CompletionTokens: 2})

	chain, err := llm.NewChainedClient([]llm.ModelClient{
		newPlainClient(t, primary, "gpt-4o"),
		newPlainClient(t, secondary, "gpt-4o-mini"),
	}, nil)
	require.NoError(t, err)

	_, err = chain.Create(context.Background(), &llm.CreateRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	usage := chain.ActualUsage()
	assert.Equal(t, 3, usage.PromptTokens)
	assert.Equal(t, 2, usage.CompletionTokens)
}
