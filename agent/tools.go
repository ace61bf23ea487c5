package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/types"
)

// Tool is an executable capability the model may request by name.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON schema of the tool's arguments.
	Schema() json.RawMessage
	// Execute runs the tool. Arguments arrive as the raw JSON the model
	// produced; the returned string becomes the tool result content.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	name        string
	description string
	schema      json.RawMessage
	fn          func(ctx context.Context, args json.RawMessage) (string, error)
}

// NewFuncTool creates a function-backed tool.
func NewFuncTool(name, description string, schema json.RawMessage, fn func(ctx context.Context, args json.RawMessage) (string, error)) (*FuncTool, error) {
	if name == "" {
		return nil, fmt.Errorf("agent: tool requires a name")
	}
	if fn == nil {
		return nil, fmt.Errorf("agent: tool %q requires a function", name)
	}
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return &FuncTool{name: name, description: description, schema: schema, fn: fn}, nil
}

func (t *FuncTool) Name() string            { return t.name }
func (t *FuncTool) Description() string     { return t.description }
func (t *FuncTool) Schema() json.RawMessage { return t.schema }

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.fn(ctx, args)
}

// ToolRegistry holds the tools available to one agent and executes the
// model's tool calls against them.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	strict bool
	logger *zap.Logger
}

// NewToolRegistry creates a registry over the given tools. Duplicate
// names are rejected at construction because calls are dispatched by
// name.
func NewToolRegistry(logger *zap.Logger, tools ...Tool) (*ToolRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ToolRegistry{
		tools:  make(map[string]Tool, len(tools)),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Registering a name twice is an error.
func (r *ToolRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if name == "" {
		return fmt.Errorf("agent: tool requires a name")
	}
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("agent: duplicate tool name %q", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// SetStrict switches the unknown-tool policy. In strict mode a call
// naming an unregistered tool fails the whole batch; otherwise it is
// answered with an error-text result and logged.
func (r *ToolRegistry) SetStrict(strict bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strict = strict
}

// Get returns the named tool.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the request-side tool declarations in registration
// order.
func (r *ToolRegistry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// ExecuteAll runs every requested call concurrently and returns the
// results in the order of the calls, matched by call ID. Outside strict
// mode a call naming an unknown tool yields an error-text result rather
// than failing the batch; a tool's own error likewise becomes its
// result content, so the model sees what went wrong and can recover.
func (r *ToolRegistry) ExecuteAll(ctx context.Context, calls []types.ToolCall) ([]types.ToolResult, error) {
	results := make([]types.ToolResult, len(calls))

	g, ctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			res, err := r.executeOne(ctx, call)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ToolRegistry) executeOne(ctx context.Context, call types.ToolCall) (types.ToolResult, error) {
	tool, ok := r.Get(call.Name)
	if !ok {
		r.mu.RLock()
		strict := r.strict
		r.mu.RUnlock()
		if strict {
			return types.ToolResult{}, fmt.Errorf("agent: unknown tool %q", call.Name)
		}
		r.logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
		return types.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("error: unknown tool %q", call.Name),
		}, nil
	}

	content, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.Error(err))
		return types.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("error: %v", err),
		}, nil
	}
	return types.ToolResult{CallID: call.ID, Content: content}, nil
}
