package debate

import "strings"

// Convergence is declared when a round's challenges are substantively
// repetitive versus the previous round: the normalised multiset of
// challenge texts is identical. Textual identity is deliberately strict —
// a reworded challenge counts as new information and keeps the
// deliberation running. The check preserves a boolean result shape so a
// semantic detector can replace it later.

// CheckConvergence compares the current round's challenges against the
// most recent archived round, records the verdict on the context, and
// returns it. The first round never converges: there is nothing to
// compare against.
func CheckConvergence(c *Context) bool {
	prev := c.lastRound()
	if prev == nil {
		c.Converged = false
		return false
	}
	c.Converged = sameChallengeSet(prev.Challenges, c.Challenges)
	return c.Converged
}

// sameChallengeSet compares two challenge lists as multisets of
// normalised text.
func sameChallengeSet(a, b []ChallengeResult) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, ch := range a {
		counts[normalizeChallenge(ch.Content)]++
	}
	for _, ch := range b {
		key := normalizeChallenge(ch.Content)
		counts[key]--
		if counts[key] < 0 {
			return false
		}
	}
	return true
}

// normalizeChallenge lowercases and collapses whitespace so formatting
// churn alone does not defeat convergence.
func normalizeChallenge(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
