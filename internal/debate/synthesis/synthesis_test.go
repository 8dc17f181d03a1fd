package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/internal/debate/decompose"
	"github.com/conclave-ai/conclave/internal/models"
)

func results(confidences ...float64) []decompose.SubtaskResult {
	out := make([]decompose.SubtaskResult, len(confidences))
	for i, c := range confidences {
		out[i] = decompose.SubtaskResult{
			Label:      string(rune('a' + i)),
			Decision:   "decision " + string(rune('a'+i)),
			Confidence: c,
		}
	}
	return out
}

func echoCaller(captured *[]models.Message) Caller {
	return func(_ context.Context, ref string, msgs []models.Message) (string, error) {
		if captured != nil {
			*captured = msgs
		}
		return "combined answer", nil
	}
}

// =============================================================================
// Synthesis
// =============================================================================

func TestSynthesizeEmptyInput(t *testing.T) {
	_, err := Synthesize(context.Background(), "q", nil, StrategyMerge, "m:prime", nil)
	require.Error(t, err)
}

func TestSynthesizeMeanConfidence(t *testing.T) {
	res, err := Synthesize(context.Background(), "q", results(1.0, 0.5, 0.75), StrategyMerge, "m:prime", echoCaller(nil))
	require.NoError(t, err)
	assert.Equal(t, "combined answer", res.Decision)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
	assert.Equal(t, "m:prime", res.ModelRef)
}

func TestSynthesizeMergeKeepsInputOrder(t *testing.T) {
	var msgs []models.Message
	_, err := Synthesize(context.Background(), "q", results(0.5, 1.0), StrategyMerge, "m:prime", echoCaller(&msgs))
	require.NoError(t, err)

	user := msgs[1].Content
	assert.Less(t, strings.Index(user, "[a]"), strings.Index(user, "[b]"))
}

func TestSynthesizePrioritizeOrdersByConfidence(t *testing.T) {
	var msgs []models.Message
	_, err := Synthesize(context.Background(), "q", results(0.5, 1.0, 0.8), StrategyPrioritize, "m:prime", echoCaller(&msgs))
	require.NoError(t, err)

	user := msgs[1].Content
	assert.Less(t, strings.Index(user, "[b]"), strings.Index(user, "[c]"))
	assert.Less(t, strings.Index(user, "[c]"), strings.Index(user, "[a]"))
}

func TestSynthesizePrioritizeDoesNotMutateInput(t *testing.T) {
	input := results(0.5, 1.0)
	_, err := Synthesize(context.Background(), "q", input, StrategyPrioritize, "m:prime", echoCaller(nil))
	require.NoError(t, err)
	assert.Equal(t, "a", input[0].Label, "caller's slice keeps its order")
}

func TestSynthesizePromptCarriesQuestionAndDecisions(t *testing.T) {
	var msgs []models.Message
	_, err := Synthesize(context.Background(), "the big question", results(0.9), StrategyMerge, "m:prime", echoCaller(&msgs))
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "the big question")
	assert.Contains(t, msgs[1].Content, "decision a")
}

func TestSynthesizeCallFailure(t *testing.T) {
	_, err := Synthesize(context.Background(), "q", results(0.9), StrategyMerge, "m:prime",
		func(context.Context, string, []models.Message) (string, error) {
			return "", errors.New("model down")
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesizer m:prime")
}
