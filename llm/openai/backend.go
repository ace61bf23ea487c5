// Package openai implements an llm.Backend for OpenAI-compatible chat
// completion APIs. Hosted services that speak the same wire format
// (OpenAI, DeepSeek, local inference servers) only differ in base URL
// and headers.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/types"
)

const defaultBaseURL = "https://api.openai.com"

// Config holds the transport settings of a backend.
type Config struct {
	// Name identifies the backend in logs and errors, e.g. "openai".
	Name string
	// APIKey authenticates requests. A per-request key on the
	// CreateRequest takes precedence.
	APIKey string
	// BaseURL is the API root. Defaults to the hosted OpenAI endpoint.
	BaseURL string
	// Timeout bounds one HTTP round trip. Defaults to 60s.
	Timeout time.Duration
	// EndpointPath overrides the chat completions path.
	EndpointPath string
	// BuildHeaders replaces the default bearer-token headers.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Backend talks to one OpenAI-compatible endpoint.
type Backend struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a backend.
func New(cfg Config, logger *zap.Logger) *Backend {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "openai_backend"), zap.String("backend", cfg.Name)),
	}
}

func (b *Backend) Name() string { return b.cfg.Name }

// wireRequest is the OpenAI chat completions request body.
type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int          `json:"index"`
		FinishReason string       `json:"finish_reason"`
		Message      *wireMessage `json:"message,omitempty"`
		Delta        *wireMessage `json:"delta,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// encodeMessages maps history messages onto the OpenAI wire roles. Tool
// call and result messages become the assistant/tool role pair the API
// expects.
func encodeMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, wireMessage{Role: "system", Content: m.Content})
		case types.RoleUser:
			out = append(out, wireMessage{Role: "user", Content: m.Text(), Name: m.Name})
		case types.RoleAssistant:
			out = append(out, wireMessage{Role: "assistant", Content: m.Content, Name: m.Name})
		case types.RoleToolCall:
			wm := wireMessage{Role: "assistant"}
			for _, tc := range m.ToolCalls {
				wtc := wireToolCall{ID: tc.ID, Type: "function"}
				wtc.Function.Name = tc.Name
				wtc.Function.Arguments = string(tc.Arguments)
				wm.ToolCalls = append(wm.ToolCalls, wtc)
			}
			out = append(out, wm)
		case types.RoleToolResult:
			for _, tr := range m.ToolResults {
				out = append(out, wireMessage{Role: "tool", Content: tr.Content, ToolCallID: tr.CallID})
			}
		}
	}
	return out
}

func encodeTools(tools []llm.ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, len(tools))
	for i, t := range tools {
		out[i] = wireTool{Type: "function", Function: wireFunction{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}}
	}
	return out
}

func (b *Backend) encode(req *llm.CreateRequest, stream bool) wireRequest {
	return wireRequest{
		Model:       req.Model,
		Messages:    encodeMessages(req.Messages),
		Tools:       encodeTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

func (b *Backend) endpoint(req *llm.CreateRequest) string {
	base := b.cfg.BaseURL
	if req.BaseURL != "" {
		base = req.BaseURL
	}
	return strings.TrimRight(base, "/") + b.cfg.EndpointPath
}

func (b *Backend) headers(httpReq *http.Request, req *llm.CreateRequest) {
	apiKey := b.cfg.APIKey
	if req.APIKey != "" {
		apiKey = req.APIKey
	}
	if b.cfg.BuildHeaders != nil {
		b.cfg.BuildHeaders(httpReq, apiKey)
		return
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
}

func (b *Backend) post(ctx context.Context, req *llm.CreateRequest, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(b.encode(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(req), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	b.headers(httpReq, req)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &llm.Error{Code: llm.ErrUpstreamTimeout, Message: err.Error(), Retryable: true, Backend: b.cfg.Name}
		}
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), Retryable: true, Backend: b.cfg.Name}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, b.httpError(resp)
	}
	return resp, nil
}

// httpError maps an HTTP failure status onto the unified error model.
func (b *Backend) httpError(resp *http.Response) error {
	var body wireResponse
	msg := fmt.Sprintf("%s returned status %d", b.cfg.Name, resp.StatusCode)
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil && body.Error != nil {
		msg = body.Error.Message
	}

	e := &llm.Error{Message: msg, Backend: b.cfg.Name}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Code = llm.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Code = llm.ErrRateLimited
		e.Retryable = true
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		e.Code = llm.ErrUpstreamTimeout
		e.Retryable = true
	case resp.StatusCode >= 500:
		e.Code = llm.ErrUpstreamError
		e.Retryable = true
	default:
		e.Code = llm.ErrInvalidRequest
	}
	return e
}

func mapFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "length":
		return llm.FinishLength
	case "tool_calls", "function_call":
		return llm.FinishToolCalls
	case "content_filter":
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}

func decodeToolCalls(calls []wireToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
	}
	return out
}

// Complete performs one blocking completion round trip.
func (b *Backend) Complete(ctx context.Context, req *llm.CreateRequest) (*llm.CreateResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	resp, err := b.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), Retryable: true, Backend: b.cfg.Name}
	}
	if len(body.Choices) == 0 {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "response contained no choices", Retryable: true, Backend: b.cfg.Name}
	}

	choice := body.Choices[0]
	finish := mapFinishReason(choice.FinishReason)
	if finish == llm.FinishContentFilter {
		return nil, &llm.Error{Code: llm.ErrContentFiltered, Message: "completion blocked by content policy", Backend: b.cfg.Name}
	}

	out := &llm.CreateResponse{FinishReason: finish}
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = decodeToolCalls(choice.Message.ToolCalls)
	}
	if body.Usage != nil {
		out.Usage = types.RequestUsage{
			PromptTokens:     body.Usage.PromptTokens,
			CompletionTokens: body.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// Stream performs one streaming round trip, parsing the SSE response
// into deltas and a final aggregate chunk.
func (b *Backend) Stream(ctx context.Context, req *llm.CreateRequest) (<-chan llm.StreamChunk, error) {
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	resp, err := b.post(ctx, req, true)
	if err != nil {
		cancel()
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer cancel()
		defer resp.Body.Close()
		defer close(ch)

		emit := func(chunk llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		}
		fail := func(msg string) {
			emit(llm.StreamChunk{Err: &llm.Error{Code: llm.ErrUpstreamError, Message: msg, Retryable: true, Backend: b.cfg.Name}})
		}

		var content strings.Builder
		var toolCalls []types.ToolCall
		var usage types.RequestUsage
		finish := llm.FinishStop

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					fail(err.Error())
					return
				}
				break
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}

			var body wireResponse
			if err := json.Unmarshal([]byte(data), &body); err != nil {
				fail(fmt.Sprintf("malformed stream event: %v", err))
				return
			}
			if body.Usage != nil {
				usage = types.RequestUsage{
					PromptTokens:     body.Usage.PromptTokens,
					CompletionTokens: body.Usage.CompletionTokens,
				}
			}
			for _, choice := range body.Choices {
				if choice.FinishReason != "" {
					finish = mapFinishReason(choice.FinishReason)
				}
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					content.WriteString(choice.Delta.Content)
					if !emit(llm.StreamChunk{Delta: choice.Delta.Content}) {
						return
					}
				}
				for _, tc := range decodeToolCalls(choice.Delta.ToolCalls) {
					toolCalls = append(toolCalls, tc)
					if !emit(llm.StreamChunk{ToolDelta: &tc}) {
						return
					}
				}
			}
		}

		if finish == llm.FinishContentFilter {
			emit(llm.StreamChunk{Err: &llm.Error{Code: llm.ErrContentFiltered, Message: "completion blocked by content policy", Backend: b.cfg.Name}})
			return
		}
		emit(llm.StreamChunk{Final: &llm.CreateResponse{
			FinishReason: finish,
			Content:      content.String(),
			ToolCalls:    toolCalls,
			Usage:        usage,
		}})
	}()
	return ch, nil
}

var _ llm.Backend = (*Backend)(nil)
