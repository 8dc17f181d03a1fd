package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	ErrKindAuth          ErrorKind = "auth"
	ErrKindRateLimit     ErrorKind = "rate_limit"
	ErrKindTimeout       ErrorKind = "timeout"
	ErrKindOverloaded    ErrorKind = "overloaded"
	ErrKindModelNotFound ErrorKind = "model_not_found"
	ErrKindAPI           ErrorKind = "api"
)

// ProviderError is a classified failure from a provider call.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Message  string
	// RetryAfter is the server-suggested wait for rate-limit errors,
	// zero when the server gave none.
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the error class warrants a backoff retry.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrKindRateLimit, ErrKindTimeout, ErrKindOverloaded:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable provider failure.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// JSONExtractionError reports that a JSON-mode response could not be
// parsed even after defensive cleanup.
type JSONExtractionError struct {
	Raw string
	Err error
}

func (e *JSONExtractionError) Error() string {
	return fmt.Sprintf("no parseable JSON in model response (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *JSONExtractionError) Unwrap() error { return e.Err }
