package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/types"
)

// SpeakerSelector picks the agent that produces the next turn.
type SpeakerSelector interface {
	// SelectNext returns the next speaker. The very first call of a
	// conversation has no current speaker; implementations must not
	// assume one exists.
	SelectNext(ctx context.Context, agents []types.Agent, history []types.Message) (types.Agent, error)
	// Reset discards any per-conversation selection state.
	Reset()
}

// RoundRobin cycles through the agent list in stable order, wrapping
// modulo its length. Its only state is one integer cursor.
type RoundRobin struct {
	mu      sync.Mutex
	current int
}

// NewRoundRobin creates a round-robin selector starting at the first
// agent.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (s *RoundRobin) SelectNext(_ context.Context, agents []types.Agent, _ []types.Message) (types.Agent, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("conversation: no agents available")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agent := agents[s.current%len(agents)]
	s.current++
	return agent, nil
}

func (s *RoundRobin) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = 0
}

// ModelSelector asks a model to name the next speaker. The model sees an
// enumeration of every agent's role description plus the running history
// and must mention exactly one agent: zero or multiple mentions is a
// hard error, never a silent fallback, because guessing a speaker would
// corrupt turn attribution.
type ModelSelector struct {
	client llm.ModelClient
}

// NewModelSelector creates a model-driven selector.
func NewModelSelector(client llm.ModelClient) (*ModelSelector, error) {
	if client == nil {
		return nil, fmt.Errorf("conversation: model selector requires a client")
	}
	return &ModelSelector{client: client}, nil
}

func (s *ModelSelector) SelectNext(ctx context.Context, agents []types.Agent, history []types.Message) (types.Agent, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("conversation: no agents available")
	}

	var roles strings.Builder
	var names []string
	for _, a := range agents {
		names = append(names, a.Name())
		fmt.Fprintf(&roles, "%s: %s\n", a.Name(), a.Description())
	}

	prompt := fmt.Sprintf(
		"You are coordinating a conversation between the following participants:\n\n%s\nRead the conversation so far and decide which participant should speak next. Reply with exactly one participant name from this list: %s.",
		roles.String(), strings.Join(names, ", "),
	)

	msgs := make([]types.Message, 0, len(history)+2)
	msgs = append(msgs, types.NewSystemMessage(prompt))
	msgs = append(msgs, history...)
	msgs = append(msgs, types.NewUserMessage("Who should speak next? Answer with one name only."))

	resp, err := s.client.Create(ctx, &llm.CreateRequest{Messages: msgs})
	if err != nil {
		return nil, fmt.Errorf("speaker selection request failed: %w", err)
	}

	mentioned := MentionedAgents(resp.Content, agents)
	switch len(mentioned) {
	case 1:
		return mentioned[0], nil
	case 0:
		return nil, fmt.Errorf("conversation: selection response named no agent: %q", resp.Content)
	default:
		var ns []string
		for _, a := range mentioned {
			ns = append(ns, a.Name())
		}
		return nil, fmt.Errorf("conversation: selection response named multiple agents %v: %q", ns, resp.Content)
	}
}

func (s *ModelSelector) Reset() {}

// MentionedAgents returns the distinct agents whose names appear in the
// text, using word-boundary matching. Underscores in names also match
// the corresponding space-separated form, tolerating models that
// reformat identifiers.
func MentionedAgents(text string, agents []types.Agent) []types.Agent {
	var out []types.Agent
	for _, a := range agents {
		if mentionPattern(a.Name()).MatchString(text) {
			out = append(out, a)
		}
	}
	return out
}

func mentionPattern(name string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(name)
	alternatives := []string{quoted}
	if strings.Contains(name, "_") {
		alternatives = append(alternatives,
			regexp.QuoteMeta(strings.ReplaceAll(name, "_", " ")))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
}
