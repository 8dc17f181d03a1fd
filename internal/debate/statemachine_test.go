package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Transition Table
// =============================================================================

func newIdleContext() *Context {
	return &Context{
		ID:        "test",
		Question:  "What database should a single-user CLI use?",
		MaxRounds: 3,
		State:     StateIdle,
	}
}

func TestApplyHappyPath(t *testing.T) {
	c := newIdleContext()

	require.NoError(t, Apply(c, StatePropose))
	assert.Equal(t, StatePropose, c.State)
	assert.Equal(t, 1, c.CurrentRound)

	c.Proposal = "Use PostgreSQL."
	require.NoError(t, Apply(c, StateChallenge))

	c.Challenges = []ChallengeResult{{ModelRef: "mock:beta", Content: "The flaw is complexity."}}
	require.NoError(t, Apply(c, StateRevise))

	c.Revision = "Use SQLite."
	require.NoError(t, Apply(c, StateCommit))

	c.Decision = c.Revision
	c.Converged = true
	require.NoError(t, Apply(c, StateComplete))
	assert.Equal(t, StateComplete, c.State)
	assert.True(t, c.State.Terminal())
	require.Len(t, c.RoundHistory, 1)
	assert.Equal(t, "Use SQLite.", c.RoundHistory[0].Revision)
}

func TestApplyRejectsUnknownEdges(t *testing.T) {
	c := newIdleContext()

	err := Apply(c, StateCommit)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StateIdle, invalid.From)
	assert.Equal(t, StateCommit, invalid.To)
	assert.Equal(t, StateIdle, c.State, "context must be untouched on error")
}

func TestApplyGuardReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Context)
		to     State
		reason string
	}{
		{
			name:   "empty question",
			mutate: func(c *Context) { c.Question = "" },
			to:     StatePropose,
			reason: "question is empty",
		},
		{
			name: "no proposal",
			mutate: func(c *Context) {
				require.NoError(t, Apply(c, StatePropose))
			},
			to:     StateChallenge,
			reason: "no proposal set",
		},
		{
			name: "no challenges",
			mutate: func(c *Context) {
				require.NoError(t, Apply(c, StatePropose))
				c.Proposal = "p"
				require.NoError(t, Apply(c, StateChallenge))
			},
			to:     StateRevise,
			reason: "no challenges recorded",
		},
		{
			name: "no revision",
			mutate: func(c *Context) {
				require.NoError(t, Apply(c, StatePropose))
				c.Proposal = "p"
				require.NoError(t, Apply(c, StateChallenge))
				c.Challenges = []ChallengeResult{{Content: "c"}}
				require.NoError(t, Apply(c, StateRevise))
			},
			to:     StateCommit,
			reason: "no revision set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newIdleContext()
			tt.mutate(c)
			before := c.State

			err := Apply(c, tt.to)
			var guard *GuardError
			require.ErrorAs(t, err, &guard)
			assert.Equal(t, tt.reason, guard.Reason)
			assert.Equal(t, before, c.State)
		})
	}
}

func TestCommitGuards(t *testing.T) {
	commit := func(t *testing.T) *Context {
		c := newIdleContext()
		require.NoError(t, Apply(c, StatePropose))
		c.Proposal = "p"
		require.NoError(t, Apply(c, StateChallenge))
		c.Challenges = []ChallengeResult{{Content: "c"}}
		require.NoError(t, Apply(c, StateRevise))
		c.Revision = "r"
		require.NoError(t, Apply(c, StateCommit))
		c.Decision = "r"
		return c
	}

	t.Run("complete requires convergence or exhausted budget", func(t *testing.T) {
		c := commit(t)
		err := Apply(c, StateComplete)
		var guard *GuardError
		require.ErrorAs(t, err, &guard)
		assert.Equal(t, "not converged, rounds remaining", guard.Reason)
	})

	t.Run("next round blocked after convergence", func(t *testing.T) {
		c := commit(t)
		c.Converged = true
		err := Apply(c, StatePropose)
		var guard *GuardError
		require.ErrorAs(t, err, &guard)
		assert.Equal(t, "already converged", guard.Reason)
	})

	t.Run("next round blocked when budget exhausted", func(t *testing.T) {
		c := commit(t)
		c.CurrentRound = c.MaxRounds
		err := Apply(c, StatePropose)
		var guard *GuardError
		require.ErrorAs(t, err, &guard)
		assert.Equal(t, "round budget exhausted", guard.Reason)
	})

	t.Run("next round archives and clears", func(t *testing.T) {
		c := commit(t)
		require.NoError(t, Apply(c, StatePropose))
		assert.Equal(t, 2, c.CurrentRound)
		assert.Empty(t, c.Proposal)
		assert.Empty(t, c.Challenges)
		require.Len(t, c.RoundHistory, 1)
		assert.Equal(t, 1, c.RoundHistory[0].RoundNumber)
	})
}

// =============================================================================
// Fail and Terminality
// =============================================================================

func TestFail(t *testing.T) {
	c := newIdleContext()
	require.NoError(t, Apply(c, StatePropose))

	require.NoError(t, Fail(c, "all challengers failed"))
	assert.Equal(t, StateFailed, c.State)
	assert.Equal(t, "all challengers failed", c.Err)
}

func TestFailRequiresMessage(t *testing.T) {
	c := newIdleContext()
	err := Fail(c, "")
	var guard *GuardError
	require.ErrorAs(t, err, &guard)
	assert.NotEqual(t, StateFailed, c.State)
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	for _, state := range []State{StateComplete, StateFailed} {
		c := newIdleContext()
		c.State = state

		for _, to := range []State{StateIdle, StatePropose, StateChallenge, StateRevise, StateCommit, StateComplete, StateFailed} {
			err := Apply(c, to)
			var invalid *InvalidTransitionError
			assert.ErrorAs(t, err, &invalid, "from %s to %s", state, to)
		}
		assert.Error(t, Fail(c, "x"))
		assert.Empty(t, ValidTransitions(c))
	}
}

func TestValidTransitions(t *testing.T) {
	c := newIdleContext()
	targets := ValidTransitions(c)
	assert.ElementsMatch(t, []State{StateDecompose, StatePropose, StateFailed}, targets)

	c.Question = ""
	assert.ElementsMatch(t, []State{StateFailed}, ValidTransitions(c))
}
