package decompose

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Scheduling
// =============================================================================

// countingRunner answers each question and records the order questions
// were started in.
type countingRunner struct {
	mu      sync.Mutex
	started []string
}

func (r *countingRunner) run(_ context.Context, question string) (string, float64, error) {
	r.mu.Lock()
	r.started = append(r.started, question)
	r.mu.Unlock()
	return "answer to: " + question, 0.9, nil
}

func TestScheduleDiamondOrdering(t *testing.T) {
	specs := []SubtaskSpec{
		spec("a"),
		spec("b", "a"),
		spec("c", "a"),
		spec("d", "b", "c"),
	}
	runner := &countingRunner{}

	results, err := Schedule(context.Background(), "plan the launch", specs, true, runner.run)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "a", results[0].Label)
	assert.ElementsMatch(t, []string{"b", "c"}, []string{results[1].Label, results[2].Label})
	assert.Equal(t, "d", results[3].Label)

	for _, res := range results {
		assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	}

	// a must start before b and c, which must start before d.
	require.Len(t, runner.started, 4)
	assert.Contains(t, runner.started[0], "desc a")
	assert.Contains(t, runner.started[3], "desc d")
}

func TestScheduleSerialPreservesInputOrder(t *testing.T) {
	specs := []SubtaskSpec{spec("x"), spec("y"), spec("z")}
	runner := &countingRunner{}

	results, err := Schedule(context.Background(), "q", specs, false, runner.run)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, []string{results[0].Label, results[1].Label, results[2].Label})
	assert.Contains(t, runner.started[0], "desc x")
	assert.Contains(t, runner.started[1], "desc y")
	assert.Contains(t, runner.started[2], "desc z")
}

func TestScheduleAugmentsQuestionsWithDependencyResults(t *testing.T) {
	specs := []SubtaskSpec{
		spec("first"),
		spec("second", "first"),
	}
	runner := &countingRunner{}

	_, err := Schedule(context.Background(), "ship the feature", specs, true, runner.run)
	require.NoError(t, err)

	require.Len(t, runner.started, 2)
	for _, q := range runner.started {
		assert.Contains(t, q, "ship the feature", "every sub-task sees the overall question")
	}
	augmented := runner.started[1]
	assert.Contains(t, augmented, "Sub-task: desc second")
	assert.Contains(t, augmented, "Result from first: answer to:")
}

func TestScheduleFailureAbortsDAG(t *testing.T) {
	specs := []SubtaskSpec{
		spec("ok"),
		spec("boom", "ok"),
		spec("never", "boom"),
	}
	ran := make(map[string]bool)
	var mu sync.Mutex

	_, err := Schedule(context.Background(), "q", specs, true, func(_ context.Context, q string) (string, float64, error) {
		mu.Lock()
		ran[q] = true
		mu.Unlock()
		if strings.Contains(q, "desc boom") {
			return "", 0, errors.New("model exploded")
		}
		return "fine", 1.0, nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `subtask "boom"`)
	for q := range ran {
		assert.NotContains(t, q, "desc never", "downstream subtasks must not run")
	}
}

func TestScheduleCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Schedule(ctx, "q", []SubtaskSpec{spec("a"), spec("b")}, true, func(ctx context.Context, _ string) (string, float64, error) {
		return "", 0, ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
