// Package registry maps provider-qualified model references onto provider
// capabilities and enforces the local rate and cost budgets. A single
// registry is shared by every concurrent deliberation, so all state is
// guarded by one mutex.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/models"
	"go.uber.org/zap"
)

// rateWindow is the sliding window over which per-provider rate limits
// are evaluated.
const rateWindow = 60 * time.Second

// Registry tracks registered providers, their models, the per-provider
// rate windows, and the cumulative cost ledger.
type Registry struct {
	mu         sync.Mutex
	providers  map[string]llm.Provider
	rateLimits map[string]int
	callTimes  map[string][]time.Time
	costLimit  float64
	totalCost  float64
	log        *zap.Logger
	now        func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithCostLimit sets the cumulative cost hard limit in USD (0 = unlimited).
func WithCostLimit(limit float64) Option {
	return func(r *Registry) { r.costLimit = limit }
}

// WithRateLimit sets a provider's GetProvider budget per 60-second window
// (0 = unlimited).
func WithRateLimit(providerID string, limit int) Option {
	return func(r *Registry) { r.rateLimits[providerID] = limit }
}

// WithLogger sets the registry logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithClock overrides the time source; used by rate-window tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		providers:  make(map[string]llm.Provider),
		rateLimits: make(map[string]int),
		callTimes:  make(map[string][]time.Time),
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider. Registration is rejected, not replaced, when
// the id is already present.
func (r *Registry) Register(p llm.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ProviderID()
	if _, exists := r.providers[id]; exists {
		return &DuplicateProviderError{ProviderID: id}
	}
	r.providers[id] = p
	r.log.Debug("provider registered", zap.String("provider", id), zap.Int("models", len(p.ListModels())))
	return nil
}

// Unregister removes a provider and all of its models.
func (r *Registry) Unregister(providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerID]; !exists {
		return &ModelNotFoundError{Ref: providerID}
	}
	delete(r.providers, providerID)
	delete(r.callTimes, providerID)
	return nil
}

// ListAllModels returns a snapshot of every registered model, sorted by
// ref for deterministic iteration.
func (r *Registry) ListAllModels() []models.ModelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.ModelInfo
	for _, p := range r.providers {
		out = append(out, p.ListModels()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref() < out[j].Ref() })
	return out
}

// GetModelInfo resolves a provider-qualified model reference.
func (r *Registry) GetModelInfo(modelRef string) (models.ModelInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	providerID, modelID, ok := splitRef(modelRef)
	if !ok {
		return models.ModelInfo{}, &ModelNotFoundError{Ref: modelRef}
	}
	p, exists := r.providers[providerID]
	if !exists {
		return models.ModelInfo{}, &ModelNotFoundError{Ref: modelRef}
	}
	for _, info := range p.ListModels() {
		if info.ModelID == modelID {
			return info, nil
		}
	}
	return models.ModelInfo{}, &ModelNotFoundError{Ref: modelRef}
}

// GetProvider resolves a model reference to its provider capability and
// bare model id, charging one call against the provider's rate window.
func (r *Registry) GetProvider(modelRef string) (llm.Provider, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	providerID, modelID, ok := splitRef(modelRef)
	if !ok {
		return nil, "", &ModelNotFoundError{Ref: modelRef}
	}
	p, exists := r.providers[providerID]
	if !exists {
		return nil, "", &ModelNotFoundError{Ref: modelRef}
	}

	if limit := r.rateLimits[providerID]; limit > 0 {
		now := r.now()
		recent := pruneWindow(r.callTimes[providerID], now)
		if len(recent) >= limit {
			r.callTimes[providerID] = recent
			return nil, "", &QuotaExceededError{ProviderID: providerID, Limit: limit}
		}
		r.callTimes[providerID] = append(recent, now)
	}

	return p, modelID, nil
}

// RecordUsage accumulates the cost of one call into the ledger and returns
// the incremental cost. Usage that would cross the hard limit is rejected
// and not accumulated.
func (r *Registry) RecordUsage(info models.ModelInfo, usage models.Usage) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cost := (float64(usage.InputTokens)*info.Cost.InputPerMillion +
		float64(usage.OutputTokens)*info.Cost.OutputPerMillion) / 1_000_000

	if r.costLimit > 0 && r.totalCost+cost > r.costLimit {
		return 0, &CostLimitError{Limit: r.costLimit, Current: r.totalCost, Attempted: cost}
	}
	r.totalCost += cost
	r.log.Debug("usage recorded",
		zap.String("model", info.Ref()),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("cost", cost),
		zap.Float64("total_cost", r.totalCost))
	return cost, nil
}

// TotalCost returns the cumulative recorded cost.
func (r *Registry) TotalCost() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalCost
}

// ResetCost clears the cumulative cost ledger.
func (r *Registry) ResetCost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalCost = 0
}

// SetRateLimit updates a provider's per-window call budget.
func (r *Registry) SetRateLimit(providerID string, limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimits[providerID] = limit
}

// SetCostLimit updates the cumulative cost hard limit.
func (r *Registry) SetCostLimit(limit float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.costLimit = limit
}

// pruneWindow drops timestamps older than the rate window.
func pruneWindow(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rateWindow)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func splitRef(ref string) (providerID, modelID string, ok bool) {
	providerID, modelID, found := strings.Cut(ref, ":")
	if !found || providerID == "" || modelID == "" {
		return "", "", false
	}
	return providerID, modelID, true
}
