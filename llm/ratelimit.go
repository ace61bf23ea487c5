package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/microsoft/autogen-sub008/types"
)

// RateLimitedClient throttles requests to an underlying client. Waiting
// for a token is a suspension point: cancellation is observed while
// blocked.
type RateLimitedClient struct {
	inner   ModelClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps a client with a requests-per-second limit.
func NewRateLimitedClient(inner ModelClient, rps float64, burst int) *RateLimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *RateLimitedClient) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.Create(ctx, req)
}

func (c *RateLimitedClient) CreateStream(ctx context.Context, req *CreateRequest) (<-chan StreamChunk, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.CreateStream(ctx, req)
}

func (c *RateLimitedClient) Model() string { return c.inner.Model() }

func (c *RateLimitedClient) ActualUsage() types.RequestUsage { return c.inner.ActualUsage() }

func (c *RateLimitedClient) TotalUsage() types.RequestUsage { return c.inner.TotalUsage() }
