// Package debate implements the consensus deliberation core: the phase
// state machine, the propose/challenge/revise/commit handlers, the
// convergence and sycophancy detectors, and the engine entry points that
// drive a question through the protocol.
package debate

import (
	"time"

	"github.com/conclave-ai/conclave/internal/llm"
)

// State is a phase of a deliberation.
type State string

const (
	StateIdle      State = "idle"
	StateDecompose State = "decompose"
	StatePropose   State = "propose"
	StateChallenge State = "challenge"
	StateRevise    State = "revise"
	StateCommit    State = "commit"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// Terminal reports whether the state has no outbound transitions.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Framing is the adversarial lens assigned to a challenger.
type Framing string

const (
	FramingFlaw           Framing = "flaw"
	FramingAlternative    Framing = "alternative"
	FramingRisk           Framing = "risk"
	FramingDevilsAdvocate Framing = "devils_advocate"
)

// Framings is the fixed round-robin assignment order for challengers.
var Framings = []Framing{FramingFlaw, FramingAlternative, FramingRisk, FramingDevilsAdvocate}

// ChallengeResult is one challenger's output. Immutable once recorded.
type ChallengeResult struct {
	ModelRef    string  `json:"model_ref"`
	Content     string  `json:"content"`
	Sycophantic bool    `json:"sycophantic"`
	Framing     Framing `json:"framing"`
}

// RoundResult is the archived record of one completed round.
type RoundResult struct {
	RoundNumber   int               `json:"round_number"`
	Proposal      string            `json:"proposal"`
	ProposalModel string            `json:"proposal_model"`
	Challenges    []ChallengeResult `json:"challenges"`
	Revision      string            `json:"revision"`
	RevisionModel string            `json:"revision_model"`
	Decision      string            `json:"decision"`
	Confidence    float64           `json:"confidence"`
	Dissent       string            `json:"dissent,omitempty"`
}

// Taxonomy is the optional best-effort classification attached at commit.
type Taxonomy struct {
	Intent   string `json:"intent"`
	Category string `json:"category"`
	Genus    string `json:"genus,omitempty"`
}

// Context is the mutable working state of one deliberation. It is owned by
// exactly one deliberation task tree and is mutated only by the state
// machine and the phase handlers; no synchronisation is needed.
type Context struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	MaxRounds int       `json:"max_rounds"`
	StartedAt time.Time `json:"started_at"`

	State        State `json:"state"`
	CurrentRound int   `json:"current_round"`

	Proposal      string            `json:"proposal,omitempty"`
	ProposalModel string            `json:"proposal_model,omitempty"`
	Challenges    []ChallengeResult `json:"challenges,omitempty"`
	Revision      string            `json:"revision,omitempty"`
	RevisionModel string            `json:"revision_model,omitempty"`

	Decision   string  `json:"decision,omitempty"`
	Confidence float64 `json:"confidence"`
	Dissent    string  `json:"dissent,omitempty"`

	Converged    bool          `json:"converged"`
	RoundHistory []RoundResult `json:"round_history,omitempty"`

	// ToolCalls is append-only across rounds; it is never cleared.
	ToolCalls []llm.ToolInvocation `json:"tool_calls,omitempty"`

	Taxonomy *Taxonomy `json:"taxonomy,omitempty"`

	// Cost is the cumulative cost of this deliberation's model calls.
	Cost float64 `json:"cost"`

	// Err is non-empty iff State is StateFailed.
	Err string `json:"error,omitempty"`
}

// archiveRound snapshots the current round into RoundHistory.
func (c *Context) archiveRound() {
	challenges := make([]ChallengeResult, len(c.Challenges))
	copy(challenges, c.Challenges)
	c.RoundHistory = append(c.RoundHistory, RoundResult{
		RoundNumber:   c.CurrentRound,
		Proposal:      c.Proposal,
		ProposalModel: c.ProposalModel,
		Challenges:    challenges,
		Revision:      c.Revision,
		RevisionModel: c.RevisionModel,
		Decision:      c.Decision,
		Confidence:    c.Confidence,
		Dissent:       c.Dissent,
	})
}

// clearRound resets per-round fields at the start of a round. ToolCalls
// and RoundHistory survive.
func (c *Context) clearRound() {
	c.Proposal = ""
	c.ProposalModel = ""
	c.Challenges = nil
	c.Revision = ""
	c.RevisionModel = ""
	c.Decision = ""
	c.Confidence = 0
	c.Dissent = ""
}

// lastRound returns the most recent archived round, or nil.
func (c *Context) lastRound() *RoundResult {
	if len(c.RoundHistory) == 0 {
		return nil
	}
	return &c.RoundHistory[len(c.RoundHistory)-1]
}
