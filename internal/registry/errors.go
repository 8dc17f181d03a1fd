package registry

import (
	"errors"
	"fmt"
)

// DuplicateProviderError reports a second registration under an id that is
// already taken.
type DuplicateProviderError struct {
	ProviderID string
}

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("provider %q is already registered", e.ProviderID)
}

// ModelNotFoundError reports an unknown model reference or provider id.
type ModelNotFoundError struct {
	Ref string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q is not registered", e.Ref)
}

// QuotaExceededError reports that a provider's local rate budget for the
// sliding window is spent.
type QuotaExceededError struct {
	ProviderID string
	Limit      int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("provider %q exceeded its rate limit of %d calls per minute", e.ProviderID, e.Limit)
}

// CostLimitError reports that recording usage would cross the cumulative
// cost hard limit.
type CostLimitError struct {
	Limit     float64
	Current   float64
	Attempted float64
}

func (e *CostLimitError) Error() string {
	return fmt.Sprintf("cost limit $%.4f exceeded: current $%.4f + attempted $%.4f", e.Limit, e.Current, e.Attempted)
}

// IsCostLimit reports whether err is a cost hard-limit rejection.
func IsCostLimit(err error) bool {
	var ce *CostLimitError
	return errors.As(err, &ce)
}
