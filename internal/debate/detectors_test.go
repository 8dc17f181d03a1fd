package debate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Sycophancy Detector
// =============================================================================

func TestSycophanticMarkers(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"empty", "", false},
		{"genuine critique", "The flaw in this proposal is the missing index.", false},
		{"praise opening", "Great answer! I have nothing to add.", true},
		{"mixed case", "GOOD POINT, the approach is reasonable.", true},
		{"agreement", "I agree with the proposal entirely.", true},
		{"largely agree", "I largely agree, with one nit.", true},
		{"no flaws", "There are no significant flaws here.", true},
		{"sound proposal", "Overall the proposal is sound.", true},
		{"concession deep in body", strings.Repeat("The risk is data loss. ", 20) + "On balance I agree with the mitigation.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sycophantic(tt.content))
		})
	}
}

func TestSycophanticWindowBoundary(t *testing.T) {
	// Marker beginning exactly at the window edge is out of scope.
	padding := strings.Repeat("x", sycophancyWindow)
	assert.False(t, Sycophantic(padding+"great answer"))

	// Marker fully inside the window is caught.
	inside := strings.Repeat("x", sycophancyWindow-len("great answer")) + "great answer"
	assert.True(t, Sycophantic(inside))
}

func TestSycophanticWindowCountsRunes(t *testing.T) {
	// 140 two-byte runes push the marker past byte 200 while keeping it
	// well inside the 200-character window.
	prefix := strings.Repeat("é", sycophancyWindow-60)
	assert.True(t, Sycophantic(prefix+"great answer"))

	// Past the character window it stays out of scope, multibyte or not.
	assert.False(t, Sycophantic(strings.Repeat("é", sycophancyWindow)+"great answer"))
}

func TestSycophanticIsDeterministic(t *testing.T) {
	inputs := []string{"", "Great answer", "The flaw is X.", strings.Repeat("y", 500)}
	for _, in := range inputs {
		assert.Equal(t, Sycophantic(in), Sycophantic(in))
	}
}

// =============================================================================
// Convergence Detector
// =============================================================================

func challengeSet(contents ...string) []ChallengeResult {
	out := make([]ChallengeResult, len(contents))
	for i, c := range contents {
		out[i] = ChallengeResult{ModelRef: "mock:m", Content: c}
	}
	return out
}

func TestFirstRoundNeverConverges(t *testing.T) {
	c := &Context{Challenges: challengeSet("a", "b")}
	assert.False(t, CheckConvergence(c))
	assert.False(t, c.Converged)
}

func TestConvergenceOnIdenticalChallenges(t *testing.T) {
	c := &Context{
		RoundHistory: []RoundResult{{Challenges: challengeSet("The flaw is X.", "The risk is Y.")}},
		Challenges:   challengeSet("The flaw is X.", "The risk is Y."),
	}
	assert.True(t, CheckConvergence(c))
	assert.True(t, c.Converged)
}

func TestConvergenceIgnoresOrderCaseAndWhitespace(t *testing.T) {
	c := &Context{
		RoundHistory: []RoundResult{{Challenges: challengeSet("The flaw is X.", "the RISK is y.")}},
		Challenges:   challengeSet("The  risk\nis Y.", "THE FLAW IS X."),
	}
	assert.True(t, CheckConvergence(c))
}

func TestNoConvergenceOnNewContent(t *testing.T) {
	c := &Context{
		RoundHistory: []RoundResult{{Challenges: challengeSet("The flaw is X.")}},
		Challenges:   challengeSet("A different flaw entirely."),
	}
	assert.False(t, CheckConvergence(c))
}

func TestNoConvergenceOnDifferentCounts(t *testing.T) {
	c := &Context{
		RoundHistory: []RoundResult{{Challenges: challengeSet("a", "b")}},
		Challenges:   challengeSet("a"),
	}
	assert.False(t, CheckConvergence(c))
}

func TestConvergenceComparesMultisets(t *testing.T) {
	// Duplicate counts matter: {a, a} vs {a, b} must not converge.
	c := &Context{
		RoundHistory: []RoundResult{{Challenges: challengeSet("a", "a")}},
		Challenges:   challengeSet("a", "b"),
	}
	assert.False(t, CheckConvergence(c))
}
