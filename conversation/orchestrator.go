package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/types"
)

// State is the lifecycle phase of an orchestrated conversation.
type State int

const (
	// StateInitialized means no turn has been taken yet.
	StateInitialized State = iota
	// StateStepping means at least one turn has been taken and no
	// terminal verdict has been reached.
	StateStepping
	// StateDone means a terminal verdict was reached; further stepping
	// is an error.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateStepping:
		return "stepping"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ChatResult is the outcome of a finished conversation.
type ChatResult struct {
	// ID identifies the conversation across logs and traces.
	ID string `json:"id"`
	// Summary is the summarizer's reduction of the transcript.
	Summary string `json:"summary"`
	// StopReason records why the conversation ended.
	StopReason types.TerminationResult `json:"stop_reason"`
	// History is the full transcript including the seed.
	History []types.Message `json:"history"`
	// Turns is the number of agent turns taken.
	Turns int `json:"turns"`
}

// StreamingReplier is optionally implemented by agents whose replies can
// be observed incrementally. The channel follows the llm streaming
// contract: deltas, then exactly one terminal chunk.
type StreamingReplier interface {
	GenerateReplyStream(ctx context.Context, history []types.Message) (<-chan llm.StreamChunk, error)
}

// NestedResulter is optionally implemented by agents that run an inner
// conversation per turn and can expose its full result.
type NestedResulter interface {
	LastNestedResult() *types.NestedChatResult
}

// Orchestrator runs a multi-agent conversation turn by turn: select a
// speaker, collect its reply, record the turn, consult the termination
// policy, and summarize once a terminal verdict arrives. All methods
// are safe for use from a single driving goroutine; History snapshots
// may be read concurrently.
type Orchestrator struct {
	mu          sync.Mutex
	id          string
	agents      []types.Agent
	selector    SpeakerSelector
	termination Termination
	summarizer  Summarizer
	history     *ChatHistory
	seed        []types.Message
	state       State
	turns       int
	result      *ChatResult
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSelector sets the speaker selection strategy.
func WithSelector(s SpeakerSelector) Option {
	return func(o *Orchestrator) { o.selector = s }
}

// WithTermination sets the termination policy.
func WithTermination(t Termination) Option {
	return func(o *Orchestrator) { o.termination = t }
}

// WithSummarizer sets how the finished conversation is reduced to a
// result string.
func WithSummarizer(s Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

// WithSeedMessages seeds the history before the first turn. A system
// message must come first.
func WithSeedMessages(msgs ...types.Message) Option {
	return func(o *Orchestrator) { o.seed = msgs }
}

// WithIntroduction prepends a user message introducing every
// participant by name and role, so model-driven selection and the
// agents themselves see who is present.
func WithIntroduction() Option {
	return func(o *Orchestrator) {
		var b strings.Builder
		b.WriteString("This conversation has the following participants:\n")
		for _, a := range o.agents {
			fmt.Fprintf(&b, "- %s: %s\n", a.Name(), a.Description())
		}
		intro := types.NewUserMessage(b.String())
		if len(o.seed) > 0 && o.seed[0].Role == types.RoleSystem {
			rest := append([]types.Message{intro}, o.seed[1:]...)
			o.seed = append([]types.Message{o.seed[0]}, rest...)
		} else {
			o.seed = append([]types.Message{intro}, o.seed...)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer used for per-turn spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// NewOrchestrator creates an orchestrator over the given agents. Agent
// names must be unique; duplicates are rejected at construction because
// turn attribution and mention matching key on the name.
func NewOrchestrator(agents []types.Agent, opts ...Option) (*Orchestrator, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("conversation: at least one agent is required")
	}
	seen := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("conversation: agent with empty name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("conversation: duplicate agent name %q", name)
		}
		seen[name] = struct{}{}
	}

	o := &Orchestrator{
		id:     uuid.NewString(),
		agents: append([]types.Agent(nil), agents...),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.selector == nil {
		o.selector = NewRoundRobin()
	}
	if o.termination == nil {
		t, err := NewDefaultTermination(10, "")
		if err != nil {
			return nil, err
		}
		o.termination = t
	}
	if o.summarizer == nil {
		o.summarizer = LastMessageSummarizer{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.With(
		zap.String("component", "orchestrator"),
		zap.String("conversation_id", o.id),
	)
	if o.tracer == nil {
		o.tracer = otel.Tracer("conversation")
	}

	history, err := NewChatHistory(o.seed...)
	if err != nil {
		return nil, err
	}
	o.history = history
	return o, nil
}

// ID returns the conversation identifier.
func (o *Orchestrator) ID() string { return o.id }

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns the live history. Snapshots taken from it are safe to
// read concurrently with stepping.
func (o *Orchestrator) History() *ChatHistory { return o.history }

// Result returns the outcome once the conversation is done.
func (o *Orchestrator) Result() (*ChatResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateDone {
		return nil, fmt.Errorf("conversation: not finished, state is %s", o.state)
	}
	return o.result, nil
}

// Step runs exactly one turn: selection, reply, recording, termination
// check. It returns the recorded entry. Calling Step after the
// conversation is done is an error.
func (o *Orchestrator) Step(ctx context.Context) (Entry, error) {
	if err := o.beginTurn(); err != nil {
		return Entry{}, err
	}

	ctx, span := o.startTurnSpan(ctx)
	defer span.End()

	speaker, err := o.selector.SelectNext(ctx, o.agents, o.history.Messages())
	if err != nil {
		return Entry{}, fmt.Errorf("turn %d: %w", o.turnNumber(), err)
	}
	span.SetAttributes(attribute.String("conversation.speaker", speaker.Name()))

	reply, err := speaker.GenerateReply(ctx, o.history.Messages())
	if err != nil {
		return Entry{}, fmt.Errorf("turn %d: agent %q: %w", o.turnNumber(), speaker.Name(), err)
	}

	return o.commitTurn(ctx, speaker, reply)
}

// StepStream runs one turn, emitting reply deltas as they arrive when
// the speaker supports streaming. The shared history is only mutated
// once the reply is complete; consumers of deltas never observe a
// partial turn. The channel is closed after the terminal event.
func (o *Orchestrator) StepStream(ctx context.Context) <-chan Event {
	out := make(chan Event)
	// Sends race against an abandoning consumer, so every emit is
	// guarded by the context. A false return means nobody is listening.
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(out)

		if err := o.beginTurn(); err != nil {
			emit(Event{Kind: EventDone, Err: err})
			return
		}

		ctx, span := o.startTurnSpan(ctx)
		defer span.End()

		speaker, err := o.selector.SelectNext(ctx, o.agents, o.history.Messages())
		if err != nil {
			emit(Event{Kind: EventDone, Err: fmt.Errorf("turn %d: %w", o.turnNumber(), err)})
			return
		}
		span.SetAttributes(attribute.String("conversation.speaker", speaker.Name()))

		reply, err := o.streamReply(ctx, speaker, emit)
		if err != nil {
			emit(Event{Kind: EventDone, Err: fmt.Errorf("turn %d: agent %q: %w", o.turnNumber(), speaker.Name(), err)})
			return
		}

		entry, err := o.commitTurn(ctx, speaker, reply)
		if err != nil {
			emit(Event{Kind: EventDone, Err: err})
			return
		}
		msg := entry.Message
		if !emit(Event{Kind: EventMessage, Speaker: speaker.Name(), Message: &msg}) {
			return
		}

		o.mu.Lock()
		result := o.result
		o.mu.Unlock()
		if result != nil {
			emit(Event{Kind: EventDone, Result: result})
		}
	}()
	return out
}

// streamReply obtains the speaker's reply, forwarding deltas when the
// agent streams and falling back to the blocking path otherwise.
func (o *Orchestrator) streamReply(ctx context.Context, speaker types.Agent, emit func(Event) bool) (types.Message, error) {
	streamer, ok := speaker.(StreamingReplier)
	if !ok {
		return speaker.GenerateReply(ctx, o.history.Messages())
	}

	ch, err := streamer.GenerateReplyStream(ctx, o.history.Messages())
	if err != nil {
		return types.Message{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return types.Message{}, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return types.Message{}, &llm.Error{Code: llm.ErrUpstreamError, Message: "reply stream closed without a final response"}
			}
			if chunk.Err != nil {
				return types.Message{}, chunk.Err
			}
			if chunk.Final != nil {
				return chunk.Final.Message(), nil
			}
			if chunk.Delta != "" {
				if !emit(Event{Kind: EventDelta, Speaker: speaker.Name(), Delta: chunk.Delta}) {
					return types.Message{}, ctx.Err()
				}
			}
		}
	}
}

// Run steps the conversation to completion and returns the result.
func (o *Orchestrator) Run(ctx context.Context) (*ChatResult, error) {
	for {
		if _, err := o.Step(ctx); err != nil {
			return nil, err
		}
		o.mu.Lock()
		done := o.state == StateDone
		result := o.result
		o.mu.Unlock()
		if done {
			return result, nil
		}
	}
}

// Reset restores the orchestrator to its initial state: seed history,
// fresh strategies, reset agents. The conversation keeps its ID.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	history, err := NewChatHistory(o.seed...)
	if err != nil {
		return err
	}
	o.history = history
	o.selector.Reset()
	o.termination.Reset()
	for _, a := range o.agents {
		a.Reset()
	}
	o.state = StateInitialized
	o.turns = 0
	o.result = nil
	o.logger.Debug("conversation reset")
	return nil
}

func (o *Orchestrator) beginTurn() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateDone {
		return fmt.Errorf("conversation: already finished (%s)", o.result.StopReason.Reason)
	}
	o.state = StateStepping
	return nil
}

func (o *Orchestrator) turnNumber() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turns + 1
}

func (o *Orchestrator) startTurnSpan(ctx context.Context) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "conversation.turn",
		trace.WithAttributes(
			attribute.String("conversation.id", o.id),
			attribute.Int("conversation.turn", o.turnNumber()),
		))
}

// commitTurn records the reply, notifies the termination policy and, on
// a terminal verdict, summarizes exactly once and transitions to done.
func (o *Orchestrator) commitTurn(ctx context.Context, speaker types.Agent, reply types.Message) (Entry, error) {
	if reply.Name == "" {
		reply = reply.WithName(speaker.Name())
	}
	mctx := types.MessageContext{Sender: speaker.Name()}
	if nr, ok := speaker.(NestedResulter); ok {
		mctx.Nested = nr.LastNestedResult()
	}
	if err := o.history.Add(reply, mctx); err != nil {
		return Entry{}, err
	}

	o.mu.Lock()
	o.turns++
	turns := o.turns
	o.mu.Unlock()

	o.termination.TurnTaken(speaker)
	o.logger.Debug("turn taken",
		zap.Int("turn", turns),
		zap.String("speaker", speaker.Name()))

	entry := Entry{Message: reply, Context: mctx}
	verdict := o.termination.Check(ctx, o.history.Messages())
	if verdict == nil {
		return entry, nil
	}
	return entry, o.finish(ctx, *verdict)
}

func (o *Orchestrator) finish(ctx context.Context, verdict types.TerminationResult) error {
	summary, err := o.summarizer.Summarize(ctx, o.history.Messages())
	if err != nil {
		o.logger.Warn("summarization failed, using last message", zap.Error(err))
		summary, _ = LastMessageSummarizer{}.Summarize(ctx, o.history.Messages())
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = &ChatResult{
		ID:         o.id,
		Summary:    summary,
		StopReason: verdict,
		History:    o.history.Messages(),
		Turns:      o.turns,
	}
	o.state = StateDone
	o.logger.Info("conversation finished",
		zap.String("stop_reason", string(verdict.Reason)),
		zap.Int("turns", o.turns))
	return nil
}
