package debate

// The phase graph is a transition table keyed by (from, to) with a guard
// predicate and a side effect per edge. Guards report the specific reason
// they fail; side effects are applied only after the guard passes.

type edge struct {
	guard  func(c *Context) string // "" when the guard holds
	effect func(c *Context)
}

var transitions = map[State]map[State]edge{
	StateIdle: {
		StateDecompose: {
			guard: guardQuestion,
		},
		StatePropose: {
			guard: guardQuestion,
			effect: func(c *Context) {
				c.CurrentRound = 1
				c.clearRound()
			},
		},
	},
	StateDecompose: {
		StatePropose: {
			guard: func(c *Context) string { return "" },
			effect: func(c *Context) {
				if c.CurrentRound == 0 {
					c.CurrentRound = 1
				}
				c.clearRound()
			},
		},
	},
	StatePropose: {
		StateChallenge: {
			guard: func(c *Context) string {
				if c.Proposal == "" {
					return "no proposal set"
				}
				return ""
			},
		},
	},
	StateChallenge: {
		StateRevise: {
			guard: func(c *Context) string {
				if len(c.Challenges) == 0 {
					return "no challenges recorded"
				}
				return ""
			},
		},
	},
	StateRevise: {
		StateCommit: {
			guard: func(c *Context) string {
				if c.Revision == "" {
					return "no revision set"
				}
				return ""
			},
		},
	},
	StateCommit: {
		StatePropose: {
			guard: func(c *Context) string {
				if c.Converged {
					return "already converged"
				}
				if c.CurrentRound >= c.MaxRounds {
					return "round budget exhausted"
				}
				return ""
			},
			effect: func(c *Context) {
				c.archiveRound()
				c.clearRound()
				c.CurrentRound++
			},
		},
		StateComplete: {
			guard: func(c *Context) string {
				if !c.Converged && c.CurrentRound < c.MaxRounds {
					return "not converged, rounds remaining"
				}
				return ""
			},
			effect: func(c *Context) {
				c.archiveRound()
			},
		},
	},
}

func guardQuestion(c *Context) string {
	if c.Question == "" {
		return "question is empty"
	}
	return ""
}

// Apply transitions the context to the requested state, running the edge's
// side effects. Unknown edges return *InvalidTransitionError, failed
// guards *GuardError; the context is untouched on error.
func Apply(c *Context, to State) error {
	if c.State.Terminal() {
		return &InvalidTransitionError{From: c.State, To: to}
	}
	targets, ok := transitions[c.State]
	if !ok {
		return &InvalidTransitionError{From: c.State, To: to}
	}
	e, ok := targets[to]
	if !ok {
		return &InvalidTransitionError{From: c.State, To: to}
	}
	if reason := e.guard(c); reason != "" {
		return &GuardError{From: c.State, To: to, Reason: reason}
	}
	if e.effect != nil {
		e.effect(c)
	}
	c.State = to
	return nil
}

// Fail moves any non-terminal context to StateFailed. The error message is
// required; Failed contexts carry the reason they died.
func Fail(c *Context, msg string) error {
	if c.State.Terminal() {
		return &InvalidTransitionError{From: c.State, To: StateFailed}
	}
	if msg == "" {
		return &GuardError{From: c.State, To: StateFailed, Reason: "error message required"}
	}
	c.State = StateFailed
	c.Err = msg
	return nil
}

// CanTransition reports whether the edge exists and its guard would hold.
func CanTransition(c *Context, to State) bool {
	if to == StateFailed {
		return !c.State.Terminal()
	}
	targets, ok := transitions[c.State]
	if !ok {
		return false
	}
	e, ok := targets[to]
	if !ok {
		return false
	}
	return e.guard(c) == ""
}

// ValidTransitions lists every currently-legal target state.
func ValidTransitions(c *Context) []State {
	var out []State
	for _, to := range []State{StateDecompose, StatePropose, StateChallenge, StateRevise, StateCommit, StateComplete, StateFailed} {
		if CanTransition(c, to) {
			out = append(out, to)
		}
	}
	return out
}
