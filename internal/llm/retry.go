package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/conclave-ai/conclave/internal/models"
)

// RetryConfig defines backoff behavior for provider calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay grows per attempt.
	Multiplier float64
	// JitterFactor adds randomness to delays (0.0-1.0).
	JitterFactor float64
}

// DefaultRetryConfig returns sensible defaults for provider API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// SendFunc performs a single completion attempt.
type SendFunc func() (*models.ModelResponse, error)

// SendWithRetry executes fn with bounded exponential backoff. Only
// retryable provider errors (rate limit, timeout, overloaded) are retried;
// a server-supplied Retry-After overrides the computed delay. Context
// cancellation aborts immediately, between attempts and during backoff.
func SendWithRetry(ctx context.Context, cfg RetryConfig, fn SendFunc) (*models.ModelResponse, error) {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == cfg.MaxRetries {
			return nil, lastErr
		}

		wait := addJitter(delay, cfg.JitterFactor)
		var pe *ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			wait = pe.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return nil, lastErr
}

// addJitter adds randomness to a duration. Jitter does not need
// cryptographic randomness.
func addJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	jitterRange := float64(d) * factor
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange // #nosec G404
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		result = 0
	}
	return result
}
