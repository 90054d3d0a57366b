package anthropic

import (
	"context"

	"github.com/giftwise/giftwise-cli/internal/resilience"
)

// retryClient retries transient API failures with exponential backoff.
type retryClient struct {
	inner Client
	cfg   resilience.RetryConfig
}

// NewRetryClient wraps a client with retry-on-transient-error behavior.
func NewRetryClient(inner Client, cfg resilience.RetryConfig) Client {
	return &retryClient{inner: inner, cfg: cfg}
}

func (c *retryClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	return resilience.DoVal(ctx, c.retryConfig("create_message"), func(ctx context.Context) (*MessageResponse, error) {
		return c.inner.CreateMessage(ctx, req)
	})
}

func (c *retryClient) CreateVisionMessage(ctx context.Context, req MessageRequest, image ImageSource) (*MessageResponse, error) {
	return resilience.DoVal(ctx, c.retryConfig("create_vision_message"), func(ctx context.Context) (*MessageResponse, error) {
		return c.inner.CreateVisionMessage(ctx, req, image)
	})
}

// StreamMessage is not retried: replaying a partially delivered stream would
// duplicate text at the consumer, so a mid-stream failure surfaces as-is and
// the caller's fallback takes over.
func (c *retryClient) StreamMessage(ctx context.Context, req MessageRequest, onDelta func(text string) error) (*MessageResponse, error) {
	return c.inner.StreamMessage(ctx, req, onDelta)
}

func (c *retryClient) retryConfig(operation string) resilience.RetryConfig {
	cfg := c.cfg
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("anthropic", operation)
	}
	return cfg
}
