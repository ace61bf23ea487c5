package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/types"
)

// Summarizer reduces a finished conversation to a single result string.
type Summarizer interface {
	Summarize(ctx context.Context, history []types.Message) (string, error)
}

// LastMessageSummarizer returns the text of the final message.
type LastMessageSummarizer struct{}

func (LastMessageSummarizer) Summarize(_ context.Context, history []types.Message) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if text := history[i].Text(); text != "" {
			return text, nil
		}
	}
	return "", nil
}

// LLMSummarizer asks a model to reduce the transcript to one result.
type LLMSummarizer struct {
	client llm.ModelClient
	prompt string
}

// DefaultSummarizerPrompt is the default reduction instruction.
const DefaultSummarizerPrompt = "Summarize the outcome of the conversation below in a single short paragraph. State the final answer or decision; omit the back-and-forth."

// NewLLMSummarizer creates a model-backed summarizer.
func NewLLMSummarizer(client llm.ModelClient, prompt string) (*LLMSummarizer, error) {
	if client == nil {
		return nil, fmt.Errorf("conversation: summarizer requires a client")
	}
	if prompt == "" {
		prompt = DefaultSummarizerPrompt
	}
	return &LLMSummarizer{client: client, prompt: prompt}, nil
}

func (s *LLMSummarizer) Summarize(ctx context.Context, history []types.Message) (string, error) {
	var transcript strings.Builder
	for _, msg := range history {
		if msg.Role == types.RoleSystem {
			continue
		}
		name := msg.Name
		if name == "" {
			name = string(msg.Role)
		}
		fmt.Fprintf(&transcript, "%s: %s\n", name, msg.Text())
	}

	resp, err := s.client.Create(ctx, &llm.CreateRequest{
		Messages: []types.Message{
			types.NewSystemMessage(s.prompt),
			types.NewUserMessage(transcript.String()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
