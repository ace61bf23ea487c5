package transform

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/tokenizer"
	"github.com/microsoft/autogen-sub008/types"
)

// DefaultSummaryPrompt instructs the model to compress a serialized
// conversation segment.
const DefaultSummaryPrompt = `Summarize the following conversation segment as concisely as possible while preserving every decision, fact, tool invocation and tool outcome. Reply with the summary only.`

// CompressorConfig configures LLM-driven history compression.
type CompressorConfig struct {
	// TriggerTokens is the absolute token count above which compression
	// fires. Mutually exclusive with TriggerRatio.
	TriggerTokens int `json:"trigger_tokens" yaml:"trigger_tokens"`
	// TriggerRatio expresses the trigger as a fraction of the model's
	// context window, resolved to an absolute count at construction.
	TriggerRatio float64 `json:"trigger_ratio" yaml:"trigger_ratio"`
	// LeaveLast is the length of the recent tail preserved verbatim.
	LeaveLast int `json:"leave_last" yaml:"leave_last"`
	// InitialOverheadTokens is the conversation's fixed overhead: the
	// system message plus tool schema token cost. A trigger below this
	// can never fire usefully, so compression is disabled outright.
	InitialOverheadTokens int `json:"initial_overhead_tokens" yaml:"initial_overhead_tokens"`
	// SummaryPrompt overrides the default summarization system prompt.
	SummaryPrompt string `json:"summary_prompt" yaml:"summary_prompt"`
}

// Compressor replaces a run of messages with one synthesized summary
// message to reclaim token budget. The first message and the LeaveLast
// tail are preserved verbatim.
type Compressor struct {
	client    llm.ModelClient
	tok       tokenizer.Tokenizer
	threshold int
	leaveLast int
	prompt    string
	disabled  bool
	logger    *zap.Logger
}

// NewCompressor resolves the trigger threshold and validates the
// configuration. A missing client is a construction error; a threshold
// at or below the initial overhead disables compression with a
// diagnostic, since it could never fire usefully.
func NewCompressor(client llm.ModelClient, tok tokenizer.Tokenizer, cfg CompressorConfig, logger *zap.Logger) (*Compressor, error) {
	if client == nil {
		return nil, fmt.Errorf("transform: compression requires a model client")
	}
	if tok == nil {
		return nil, fmt.Errorf("transform: compression requires a tokenizer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "compressor"))

	if cfg.TriggerTokens > 0 && cfg.TriggerRatio > 0 {
		return nil, fmt.Errorf("transform: trigger tokens and trigger ratio are mutually exclusive")
	}

	threshold := cfg.TriggerTokens
	if threshold == 0 {
		ratio := cfg.TriggerRatio
		if ratio <= 0 || ratio > 1 {
			return nil, fmt.Errorf("transform: trigger ratio must be in (0, 1], got %v", ratio)
		}
		window := tokenizer.ContextWindow(client.Model())
		if window == 0 {
			window = tok.MaxTokens()
		}
		threshold = int(ratio * float64(window))
	}
	if threshold < 0 {
		return nil, fmt.Errorf("transform: trigger threshold must not be negative")
	}

	leaveLast := cfg.LeaveLast
	if leaveLast < 0 {
		return nil, fmt.Errorf("transform: leave-last must not be negative")
	}

	prompt := cfg.SummaryPrompt
	if prompt == "" {
		prompt = DefaultSummaryPrompt
	}

	c := &Compressor{
		client:    client,
		tok:       tok,
		threshold: threshold,
		leaveLast: leaveLast,
		prompt:    prompt,
		logger:    logger,
	}

	if threshold <= cfg.InitialOverheadTokens {
		c.disabled = true
		logger.Warn("compression disabled: trigger threshold is below the conversation's fixed overhead and can never fire",
			zap.Int("threshold", threshold),
			zap.Int("initial_overhead", cfg.InitialOverheadTokens),
		)
	}
	return c, nil
}

// Disabled reports whether compression was disabled at construction.
func (c *Compressor) Disabled() bool { return c.disabled }

// Apply implements Transform. Compression failures are absorbed: the
// uncompressed messages are returned and the conversation continues.
func (c *Compressor) Apply(ctx context.Context, msgs []types.Message) ([]types.Message, error) {
	out, _, err := c.Compress(ctx, msgs)
	if err != nil {
		return msgs, nil
	}
	return out, nil
}

// Compress synthesizes a summary message when the trigger threshold is
// crossed. It reports whether compression actually happened; a false
// return with nil error means the trigger did not fire or the result
// would not have been smaller.
func (c *Compressor) Compress(ctx context.Context, msgs []types.Message) ([]types.Message, bool, error) {
	if c.disabled {
		return msgs, false, nil
	}
	// Nothing to fold: need a first message, something in the middle,
	// and the preserved tail.
	if len(msgs) <= c.leaveLast+2 {
		return msgs, false, nil
	}

	before, err := c.tok.CountMessages(msgs)
	if err != nil {
		return msgs, false, err
	}
	if before < c.threshold {
		return msgs, false, nil
	}

	head := msgs[0]
	tail := msgs[len(msgs)-c.leaveLast:]
	if c.leaveLast == 0 {
		tail = nil
	}
	middle := msgs[1 : len(msgs)-c.leaveLast]

	summary, err := c.summarize(ctx, middle)
	if err != nil {
		c.logger.Warn("compression model call failed, keeping uncompressed history", zap.Error(err))
		return msgs, false, err
	}

	compressed := make([]types.Message, 0, len(tail)+2)
	compressed = append(compressed, head)
	compressed = append(compressed, types.NewAssistantMessage("Compressed history:\n"+summary))
	compressed = append(compressed, tail...)

	after, err := c.tok.CountMessages(compressed)
	if err != nil {
		return msgs, false, err
	}
	if after >= before {
		c.logger.Warn("compression produced no reduction, skipping",
			zap.Int("before_tokens", before),
			zap.Int("after_tokens", after),
		)
		return msgs, false, nil
	}

	c.logger.Info("history compressed",
		zap.Int("messages_folded", len(middle)),
		zap.Int("before_tokens", before),
		zap.Int("after_tokens", after),
	)
	return compressed, true, nil
}

func (c *Compressor) summarize(ctx context.Context, middle []types.Message) (string, error) {
	resp, err := c.client.Create(ctx, &llm.CreateRequest{
		Messages: []types.Message{
			types.NewSystemMessage(c.prompt),
			types.NewUserMessage(SerializeForCompression(middle)),
		},
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("transform: compression model returned an empty summary")
	}
	return summary, nil
}

// SerializeForCompression folds messages into one synthetic turn,
// tagging each original message by role and, when known, sender name.
func SerializeForCompression(msgs []types.Message) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(compressionTag(msg))
		b.WriteString("\n")
		b.WriteString(msg.Text())
	}
	return b.String()
}

func compressionTag(msg types.Message) string {
	switch msg.Role {
	case types.RoleToolCall:
		return "##FUNCTION_CALL##"
	case types.RoleToolResult:
		return "##FUNCTION_RETURN##"
	case types.RoleUser:
		if msg.Name != "" {
			return fmt.Sprintf("##%s(USER)##", msg.Name)
		}
		return "##USER##"
	case types.RoleAssistant:
		if msg.Name != "" {
			return fmt.Sprintf("##%s(ASSISTANT)##", msg.Name)
		}
		return "##ASSISTANT##"
	default:
		return fmt.Sprintf("##%s##", strings.ToUpper(string(msg.Role)))
	}
}
