// Package llm defines the provider capability consumed by the deliberation
// engine, plus the shared retry, JSON-extraction, and tool-call plumbing
// every concrete provider uses.
package llm

import (
	"context"

	"github.com/conclave-ai/conclave/internal/models"
)

// Provider is the capability every registered model provider exposes.
// Implementations must be safe for concurrent use: one provider serves
// many simultaneous deliberations.
type Provider interface {
	// ProviderID returns the short identifier this provider registers under.
	ProviderID() string

	// ListModels returns the models this provider serves.
	ListModels() []models.ModelInfo

	// Send performs one completion call. It must honour ctx cancellation
	// and return a *ProviderError for classified failures.
	Send(ctx context.Context, req *models.Request) (*models.ModelResponse, error)

	// HealthCheck reports whether the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// Streamer is optionally implemented by providers that support streaming.
// The deliberation engine does not require it.
type Streamer interface {
	Stream(ctx context.Context, req *models.Request) (<-chan *models.ModelResponse, error)
}
