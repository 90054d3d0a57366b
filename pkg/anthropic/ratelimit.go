package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// rateLimitedClient throttles all outbound calls through a shared token
// bucket so burst traffic (e.g. batch session processing) stays inside the
// account's rate limit.
type rateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps a client with a request-per-second limiter.
// rps <= 0 disables throttling and returns the inner client unchanged.
func NewRateLimitedClient(inner Client, rps float64) Client {
	if rps <= 0 {
		return inner
	}
	return &rateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *rateLimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "anthropic: rate limiter wait")
	}
	return nil
}

func (c *rateLimitedClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.CreateMessage(ctx, req)
}

func (c *rateLimitedClient) CreateVisionMessage(ctx context.Context, req MessageRequest, image ImageSource) (*MessageResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.CreateVisionMessage(ctx, req, image)
}

func (c *rateLimitedClient) StreamMessage(ctx context.Context, req MessageRequest, onDelta func(text string) error) (*MessageResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.StreamMessage(ctx, req, onDelta)
}
