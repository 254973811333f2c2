// Package llm wraps a language model provider with retries, a hard per-call
// timeout, a circuit breaker and JSON extraction.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"north-backend/application/ports"
	apperrors "north-backend/pkg/errors"
	"north-backend/pkg/observability"
)

// Request is a single prompt sent to a provider.
type Request struct {
	Prompt string
	// JSON asks the provider for a JSON response body where supported.
	JSON bool
}

// Provider is a concrete model backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Config tunes the client.
type Config struct {
	Timeout time.Duration
	Retry   RetryPolicy
	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker around provider calls.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns the production settings: 300s per call, three
// retries on 429/503 and a breaker that opens at 60% failures.
func DefaultConfig() Config {
	return Config{
		Timeout: 300 * time.Second,
		Retry:   DefaultRetryPolicy(),
		Breaker: BreakerConfig{
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.6,
			MinRequests:  5,
		},
	}
}

// Client implements ports.Completer on top of a Provider.
type Client struct {
	provider Provider
	cfg      Config
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	metrics  *observability.Metrics
}

var _ ports.Completer = (*Client)(nil)

// NewClient creates a completion client.
func NewClient(provider Provider, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = IsTransient
	}

	c := &Client{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("provider", provider.Name())),
		metrics:  metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion-" + provider.Name(),
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.Breaker.MinRequests == 0 || cfg.Breaker.FailureRatio <= 0 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.Breaker.MinRequests && ratio >= cfg.Breaker.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Quota refusals say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsQuota(err)
		},
	})
	return c
}

// CompleteJSON sends prompt in JSON mode and decodes the reply.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (any, error) {
	text, err := c.complete(ctx, Request{Prompt: prompt, JSON: true})
	if err != nil {
		return nil, err
	}

	v, err := ExtractJSON(text)
	if err != nil {
		c.logger.Warn("Model reply is not JSON",
			zap.Int("length", len(text)),
			zap.String("head", head(text, 200)),
		)
		return nil, nil
	}
	return v, nil
}

// CompleteText sends prompt and returns the raw reply.
func (c *Client) CompleteText(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, Request{Prompt: prompt})
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", c.provider.Name()),
		attribute.Bool("llm.json", req.JSON),
	)
	start := time.Now()

	text, err := Retry(ctx, c.cfg.Retry, func(ctx context.Context, attempt int) (string, error) {
		if attempt > 0 {
			c.metrics.RecordCompletionRetry(c.provider.Name())
			c.logger.Warn("Retrying completion",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", c.cfg.Retry.Delay(attempt-1)),
			)
		}
		return c.attempt(ctx, req)
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
		err = c.classify(err)
	}
	c.metrics.RecordCompletion(c.provider.Name(), outcome, time.Since(start))
	observability.EndSpan(span, err)
	return text, err
}

func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generateWithTimeout(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// generateWithTimeout bounds one provider call by the configured timeout even
// when the provider does not honor ctx promptly.
func (c *Client) generateWithTimeout(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := c.provider.Generate(ctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
}

func (c *Client) classify(err error) error {
	name := c.provider.Name()
	switch {
	case IsQuota(err):
		c.logger.Error("Completion quota exhausted", zap.Error(err))
		return apperrors.NewQuotaExceededError(name, err)
	case errors.Is(err, ErrTimeout):
		c.logger.Error("Completion timed out", zap.Duration("timeout", c.cfg.Timeout))
		return apperrors.NewTimeoutError("completion").WithCause(err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Error("Completion circuit open", zap.Error(err))
		return apperrors.NewUnavailableError(name).WithCause(err)
	default:
		c.logger.Error("Completion failed", zap.Error(err))
		return apperrors.NewExternalError(name, err)
	}
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
