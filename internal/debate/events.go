package debate

// EventSink receives progress callbacks from a running deliberation.
// Implementations must be fast; the engine calls them inline. All methods
// are optional — use NopSink as an embedding base.
type EventSink interface {
	PhaseStarted(deliberationID string, round int, state State)
	ChallengeReceived(deliberationID string, round int, ch ChallengeResult)
	RoundCompleted(deliberationID string, result RoundResult)
	DecisionReached(deliberationID string, decision string, confidence float64)
}

// NopSink is an EventSink that ignores everything.
type NopSink struct{}

func (NopSink) PhaseStarted(string, int, State)                {}
func (NopSink) ChallengeReceived(string, int, ChallengeResult) {}
func (NopSink) RoundCompleted(string, RoundResult)             {}
func (NopSink) DecisionReached(string, string, float64)        {}
