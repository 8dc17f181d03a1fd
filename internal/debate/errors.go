package debate

import "fmt"

// ConsensusError is a general deliberation failure: a bad decomposition,
// every challenger failing, or a required context field missing.
type ConsensusError struct {
	Msg string
	Err error
}

func (e *ConsensusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConsensusError) Unwrap() error { return e.Err }

// InsufficientModelsError reports that no registered model is eligible for
// the requested role.
type InsufficientModelsError struct {
	Role string
}

func (e *InsufficientModelsError) Error() string {
	return fmt.Sprintf("no eligible models for role %q", e.Role)
}

// InvalidTransitionError reports an edge that does not exist in the phase
// graph. It indicates a programmer error in the orchestrator.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// GuardError reports a legal edge whose guard predicate failed.
type GuardError struct {
	From   State
	To     State
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("transition %s -> %s rejected: %s", e.From, e.To, e.Reason)
}
