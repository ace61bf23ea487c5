package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/types"
)

// Termination decides when a conversation is over. Policies fail open:
// inability to judge means "continue", never an error that aborts the
// conversation.
type Termination interface {
	// Check inspects the history and returns a verdict, or nil to
	// continue.
	Check(ctx context.Context, history []types.Message) *types.TerminationResult
	// TurnTaken notifies the policy that an agent completed a turn.
	TurnTaken(agent types.Agent)
	// Reset clears per-conversation counters.
	Reset()
}

// DefaultKeyword is the termination keyword used when none is
// configured.
const DefaultKeyword = "TERMINATE"

// DefaultTermination terminates on a turn budget, the keyword appearing
// in any non-system message, or an explicit user request anywhere in the
// history. Seed messages are scanned too; system messages are exempt
// from the keyword match so instructions like "reply TERMINATE when
// done" do not end the conversation themselves.
type DefaultTermination struct {
	mu         sync.Mutex
	maxTurns   int
	keyword    string
	turnsTaken int
}

// NewDefaultTermination creates the default policy. maxTurns must be at
// least 1; an empty keyword falls back to DefaultKeyword.
func NewDefaultTermination(maxTurns int, keyword string) (*DefaultTermination, error) {
	if maxTurns < 1 {
		return nil, fmt.Errorf("conversation: max turns must be >= 1, got %d", maxTurns)
	}
	if keyword == "" {
		keyword = DefaultKeyword
	}
	return &DefaultTermination{maxTurns: maxTurns, keyword: keyword}, nil
}

func (t *DefaultTermination) TurnTaken(types.Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnsTaken++
}

func (t *DefaultTermination) Check(_ context.Context, history []types.Message) *types.TerminationResult {
	for _, msg := range history {
		if msg.Role == types.RoleUser && msg.IsTermination {
			return &types.TerminationResult{
				Reason:      types.StopUserRequested,
				Explanation: "the user requested the conversation to end",
			}
		}
		if msg.Role != types.RoleSystem && strings.Contains(msg.Text(), t.keyword) {
			return &types.TerminationResult{
				Reason:      types.StopTerminationKeyword,
				Explanation: fmt.Sprintf("message contained the termination keyword %q", t.keyword),
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.turnsTaken >= t.maxTurns {
		return &types.TerminationResult{
			Reason:      types.StopMaxTurns,
			Explanation: fmt.Sprintf("reached the maximum of %d turns", t.maxTurns),
		}
	}
	return nil
}

func (t *DefaultTermination) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnsTaken = 0
}

// ReflectionTermination asks a model whether a stated goal has been
// reached, starting after a minimum number of turns. The judgment is
// requested as structured JSON; a malformed reply or a missing field
// means "not done", never an error.
type ReflectionTermination struct {
	mu         sync.Mutex
	client     llm.ModelClient
	goal       string
	minTurns   int
	maxChecks  int
	turnsTaken int
	misses     int
	logger     *zap.Logger
}

// ReflectionConfig configures goal-reflection termination.
type ReflectionConfig struct {
	// Goal is the success condition the judge evaluates.
	Goal string
	// MinTurns is how many turns must pass before the first judgment.
	MinTurns int
	// MaxChecks, when positive, bounds how many "not done" judgments
	// are tolerated before the policy gives up with an
	// insufficient-progress verdict. Zero means unbounded.
	MaxChecks int
}

// NewReflectionTermination creates a reflection policy.
func NewReflectionTermination(client llm.ModelClient, cfg ReflectionConfig, logger *zap.Logger) (*ReflectionTermination, error) {
	if client == nil {
		return nil, fmt.Errorf("conversation: reflection termination requires a client")
	}
	if cfg.Goal == "" {
		return nil, fmt.Errorf("conversation: reflection termination requires a goal")
	}
	if cfg.MinTurns < 0 {
		return nil, fmt.Errorf("conversation: min turns must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReflectionTermination{
		client:    client,
		goal:      cfg.Goal,
		minTurns:  cfg.MinTurns,
		maxChecks: cfg.MaxChecks,
		logger:    logger.With(zap.String("component", "reflection_termination")),
	}, nil
}

func (t *ReflectionTermination) TurnTaken(types.Agent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnsTaken++
}

// judgment is the structured verdict requested from the model. Pointer
// fields distinguish "absent" from zero values.
type judgment struct {
	IsDone *bool  `json:"is_done"`
	Reason string `json:"reason"`
}

func (t *ReflectionTermination) Check(ctx context.Context, history []types.Message) *types.TerminationResult {
	t.mu.Lock()
	turns := t.turnsTaken
	t.mu.Unlock()
	if turns < t.minTurns {
		return nil
	}

	var transcript strings.Builder
	for _, msg := range history {
		name := msg.Name
		if name == "" {
			name = string(msg.Role)
		}
		fmt.Fprintf(&transcript, "%s: %s\n", name, msg.Text())
	}

	prompt := fmt.Sprintf(
		"Goal: %s\n\nTranscript:\n%s\nHas the goal been reached? Respond with JSON only: {\"is_done\": true|false, \"reason\": \"...\"}",
		t.goal, transcript.String(),
	)

	resp, err := t.client.Create(ctx, &llm.CreateRequest{
		Messages: []types.Message{types.NewUserMessage(prompt)},
	})
	if err != nil {
		t.logger.Warn("reflection judgment failed, continuing", zap.Error(err))
		return nil
	}

	var j judgment
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &j); err != nil || j.IsDone == nil {
		t.logger.Debug("malformed reflection judgment treated as not done",
			zap.String("response", resp.Content))
		return t.recordMiss()
	}
	if !*j.IsDone {
		return t.recordMiss()
	}
	return &types.TerminationResult{
		Reason:      types.StopGoalReached,
		Explanation: j.Reason,
	}
}

// recordMiss counts a "not done" judgment and gives up with an
// insufficient-progress verdict once MaxChecks is exhausted.
func (t *ReflectionTermination) recordMiss() *types.TerminationResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.misses++
	if t.maxChecks > 0 && t.misses >= t.maxChecks {
		return &types.TerminationResult{
			Reason:      types.StopInsufficientProgress,
			Explanation: fmt.Sprintf("goal not reached after %d judgments", t.misses),
		}
	}
	return nil
}

func (t *ReflectionTermination) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turnsTaken = 0
	t.misses = 0
}

// extractJSON returns the first top-level JSON object in the text, so
// judgments wrapped in prose or code fences still parse.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
