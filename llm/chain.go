package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008/types"
)

// ChainedClient tries an ordered list of clients, advancing to the next
// on timeout or transient API failure. Content-policy failures are
// re-raised immediately without failover: a different backend will not
// change a policy verdict.
type ChainedClient struct {
	clients []ModelClient
	logger  *zap.Logger
}

// NewChainedClient creates a failover chain. At least one client is
// required.
func NewChainedClient(clients []ModelClient, logger *zap.Logger) (*ChainedClient, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("llm: chained client requires at least one client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainedClient{
		clients: clients,
		logger:  logger.With(zap.String("component", "chained_client")),
	}, nil
}

// Model returns the first client's model.
func (c *ChainedClient) Model() string { return c.clients[0].Model() }

// ActualUsage aggregates network usage across all clients in the chain.
func (c *ChainedClient) ActualUsage() types.RequestUsage {
	var total types.RequestUsage
	for _, cl := range c.clients {
		total.Add(cl.ActualUsage())
	}
	return total
}

// TotalUsage aggregates usage including cache hits across the chain.
func (c *ChainedClient) TotalUsage() types.RequestUsage {
	var total types.RequestUsage
	for _, cl := range c.clients {
		total.Add(cl.TotalUsage())
	}
	return total
}

// Create tries each client in order until one succeeds. Only the last
// client's failure is surfaced, wrapped with timeout tuning guidance.
func (c *ChainedClient) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	var lastErr error
	for i, cl := range c.clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := cl.Create(ctx, req)
		if err == nil {
			return resp, nil
		}
		if IsContentFiltered(err) {
			return nil, err
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("client failed, advancing in chain",
			zap.Int("position", i),
			zap.String("model", cl.Model()),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("all %d clients in chain failed; consider raising per-request timeouts: %w",
		len(c.clients), lastErr)
}

// CreateStream tries each client in order for a streaming request. The
// same failover rules as Create apply, evaluated at stream start.
func (c *ChainedClient) CreateStream(ctx context.Context, req *CreateRequest) (<-chan StreamChunk, error) {
	var lastErr error
	for i, cl := range c.clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ch, err := cl.CreateStream(ctx, req)
		if err == nil {
			return ch, nil
		}
		if IsContentFiltered(err) || !IsTransient(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("stream start failed, advancing in chain",
			zap.Int("position", i),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("all %d clients in chain failed; consider raising per-request timeouts: %w",
		len(c.clients), lastErr)
}
