package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/types"
)

// Backend is the raw transport behind a Client: one network round trip,
// no caching, retries, or accounting. Concrete backends (hosted APIs,
// local models, test doubles) implement exactly this.
type Backend interface {
	// Name identifies the backend for logging and error attribution.
	Name() string
	// Complete performs a single blocking completion call.
	Complete(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	// Stream performs a single streaming call.
	Stream(ctx context.Context, req *CreateRequest) (<-chan StreamChunk, error)
}

// Client is the standard ModelClient: it wraps a Backend with request
// caching, cost computation, and dual usage accounting.
type Client struct {
	backend Backend
	model   string
	cache   RequestCache
	prices  *PriceTable
	usage   UsageTracker
	metrics *Metrics
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCache enables request-level caching.
func WithCache(cache RequestCache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithPriceTable overrides the default price table.
func WithPriceTable(t *PriceTable) ClientOption {
	return func(c *Client) { c.prices = t }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the given backend and default model.
func NewClient(backend Backend, model string, opts ...ClientOption) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("llm: backend is required")
	}
	if model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	c := &Client{
		backend: backend,
		model:   model,
		prices:  NewPriceTable(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(
		zap.String("component", "model_client"),
		zap.String("backend", backend.Name()),
	)
	return c, nil
}

// Model returns the client's default model.
func (c *Client) Model() string { return c.model }

// ActualUsage returns the running total for real network calls only.
func (c *Client) ActualUsage() types.RequestUsage { return c.usage.Actual() }

// TotalUsage returns the running total including cache hits.
func (c *Client) TotalUsage() types.RequestUsage { return c.usage.Total() }

// Create dispatches a completion request, consulting the cache first.
func (c *Client) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	req = c.resolve(req)

	var key string
	if c.cache != nil {
		k, err := CacheKey(req)
		if err != nil {
			c.logger.Warn("cache key derivation failed, bypassing cache", zap.Error(err))
		} else {
			key = k
			if cached, err := c.cache.Get(ctx, key); err == nil {
				hit := cached.Clone()
				hit.Cached = true
				c.usage.RecordCached(hit.Usage)
				c.metrics.CacheHit(req.Model)
				c.logger.Debug("request served from cache", zap.String("key", key))
				return hit, nil
			}
			c.metrics.CacheMiss(req.Model)
		}
	}

	resp, err := c.backend.Complete(ctx, req)
	if err != nil {
		c.metrics.Request(req.Model, "error")
		return nil, err
	}

	resp.Usage.Cost = c.prices.Cost(req.Model, resp.Usage)
	resp.Cached = false
	c.usage.RecordActual(resp.Usage)
	c.metrics.Request(req.Model, "ok")
	c.metrics.Tokens(req.Model, resp.Usage)

	if c.cache != nil && key != "" {
		if err := c.cache.Set(ctx, key, resp.Clone()); err != nil {
			c.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, nil
}

// CreateStream dispatches a streaming request. Streams bypass the cache;
// usage is recorded once the final chunk arrives.
func (c *Client) CreateStream(ctx context.Context, req *CreateRequest) (<-chan StreamChunk, error) {
	req = c.resolve(req)

	inner, err := c.backend.Stream(ctx, req)
	if err != nil {
		c.metrics.Request(req.Model, "error")
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for chunk := range inner {
			if chunk.Final != nil {
				chunk.Final.Usage.Cost = c.prices.Cost(req.Model, chunk.Final.Usage)
				c.usage.RecordActual(chunk.Final.Usage)
				c.metrics.Request(req.Model, "ok")
				c.metrics.Tokens(req.Model, chunk.Final.Usage)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// resolve fills request defaults without mutating the caller's request.
func (c *Client) resolve(req *CreateRequest) *CreateRequest {
	if req.Model != "" {
		return req
	}
	out := req.Clone()
	out.Model = c.model
	return out
}
