package voting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/internal/models"
)

// =============================================================================
// Test Helpers
// =============================================================================

// scriptedCaller answers per model ref and records every call.
type scriptedCaller struct {
	mu       sync.Mutex
	answers  map[string]string
	failures map[string]error
	calls    []string
}

func newScriptedCaller() *scriptedCaller {
	return &scriptedCaller{
		answers:  make(map[string]string),
		failures: make(map[string]error),
	}
}

func (s *scriptedCaller) call(_ context.Context, ref string, msgs []models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ref)
	if err, ok := s.failures[ref]; ok {
		// A judge call for the same ref still succeeds: failures only apply
		// to the first call.
		delete(s.failures, ref)
		return "", err
	}
	if strings.Contains(msgs[0].Content, "meta-judge") {
		return "judged: " + s.answers[ref], nil
	}
	return s.answers[ref], nil
}

// =============================================================================
// Degenerate Cases
// =============================================================================

func TestRunNoVoters(t *testing.T) {
	res, err := Run(context.Background(), "q", nil, AggregationMajority, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Decision)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Votes)
}

func TestRunAllVotesFail(t *testing.T) {
	caller := newScriptedCaller()
	caller.failures["m:a"] = errors.New("down")
	caller.failures["m:b"] = errors.New("down")

	res, err := Run(context.Background(), "q", []string{"m:a", "m:b"}, AggregationMajority, caller.call)
	require.NoError(t, err, "total vote failure is absorbed, not raised")
	assert.Empty(t, res.Decision)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Votes)
}

func TestRunSingleVoteSkipsJudge(t *testing.T) {
	caller := newScriptedCaller()
	caller.answers["m:a"] = "the answer"
	caller.failures["m:b"] = errors.New("down")

	res, err := Run(context.Background(), "q", []string{"m:a", "m:b"}, AggregationWeighted, caller.call)
	require.NoError(t, err)
	assert.Equal(t, "the answer", res.Decision)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Empty(t, res.JudgeModel)
	assert.Len(t, caller.calls, 2, "exactly one call per voter, no judge call")
}

// =============================================================================
// Aggregation
// =============================================================================

func TestRunMajority(t *testing.T) {
	caller := newScriptedCaller()
	caller.answers["m:prime"] = "vote prime"
	caller.answers["m:beta"] = "vote beta"
	caller.answers["m:gamma"] = "vote gamma"

	res, err := Run(context.Background(), "q", []string{"m:prime", "m:beta", "m:gamma"}, AggregationMajority, caller.call)
	require.NoError(t, err)

	assert.Equal(t, "judged: vote prime", res.Decision)
	assert.Equal(t, AggregationMajority, res.Strategy)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Len(t, res.Votes, 3)
	assert.Equal(t, "m:prime", res.JudgeModel, "first voter ref judges")
}

func TestRunWeightedConfidence(t *testing.T) {
	caller := newScriptedCaller()
	caller.answers["m:a"] = "va"
	caller.answers["m:b"] = "vb"

	res, err := Run(context.Background(), "q", []string{"m:a", "m:b"}, AggregationWeighted, caller.call)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
	assert.Equal(t, AggregationWeighted, res.Strategy)
}

func TestRunVoteOrderFollowsVoterOrder(t *testing.T) {
	caller := newScriptedCaller()
	for i, ref := range []string{"m:a", "m:b", "m:c", "m:d"} {
		caller.answers[ref] = fmt.Sprintf("vote %d", i)
	}

	res, err := Run(context.Background(), "q", []string{"m:a", "m:b", "m:c", "m:d"}, AggregationMajority, caller.call)
	require.NoError(t, err)
	require.Len(t, res.Votes, 4)
	for i, vote := range res.Votes {
		assert.Equal(t, fmt.Sprintf("vote %d", i), vote.Content)
	}
}

func TestRunJudgeFailureSurfaces(t *testing.T) {
	var calls atomic.Int32
	_, err := Run(context.Background(), "q", []string{"m:a", "m:b"}, AggregationMajority,
		func(_ context.Context, ref string, msgs []models.Message) (string, error) {
			calls.Add(1)
			if strings.Contains(msgs[0].Content, "meta-judge") {
				return "", errors.New("judge down")
			}
			return "vote", nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "judge m:a")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunUnknownAggregation(t *testing.T) {
	_, err := Run(context.Background(), "q", []string{"m:a"}, Aggregation("plurality"), nil)
	require.Error(t, err)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, "q", []string{"m:a"}, AggregationMajority,
		func(ctx context.Context, _ string, _ []models.Message) (string, error) {
			return "", ctx.Err()
		})
	require.ErrorIs(t, err, context.Canceled)
}
