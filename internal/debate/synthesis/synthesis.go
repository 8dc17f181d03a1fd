// Package synthesis merges sub-task decisions into one final answer.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/conclave-ai/conclave/internal/debate/decompose"
	"github.com/conclave-ai/conclave/internal/models"
)

// Strategy selects how sub-task results are presented to the synthesizer.
type Strategy string

const (
	// StrategyMerge presents results in completion order.
	StrategyMerge Strategy = "merge"
	// StrategyPrioritize presents results by descending confidence, so the
	// synthesizer weighs the strongest conclusions first.
	StrategyPrioritize Strategy = "prioritize"
)

// Caller sends one completion to a model ref; the engine provides it.
type Caller func(ctx context.Context, ref string, msgs []models.Message) (content string, err error)

// Result is the synthesized answer.
type Result struct {
	Decision string
	// Confidence is the arithmetic mean of the sub-task confidences.
	Confidence float64
	ModelRef   string
}

// Synthesize merges the sub-task results into one coherent answer using
// the given model. At least one result is required.
func Synthesize(ctx context.Context, question string, results []decompose.SubtaskResult, strategy Strategy, ref string, call Caller) (*Result, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("nothing to synthesize: no subtask results")
	}

	ordered := make([]decompose.SubtaskResult, len(results))
	copy(ordered, results)
	if strategy == StrategyPrioritize {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Confidence > ordered[j].Confidence
		})
	}

	content, err := call(ctx, ref, synthesisMessages(question, ordered))
	if err != nil {
		return nil, fmt.Errorf("synthesizer %s: %w", ref, err)
	}

	var sum float64
	for _, res := range results {
		sum += res.Confidence
	}

	return &Result{
		Decision:   content,
		Confidence: sum / float64(len(results)),
		ModelRef:   ref,
	}, nil
}

const synthesizerSystem = `You are a senior editor combining partial answers into one final answer. Weave the sub-answers into a single coherent response to the original question. Resolve contradictions explicitly in favour of the better-supported conclusion. Never mention sub-tasks, partial answers, or the assembly process.`

func synthesisMessages(question string, results []decompose.SubtaskResult) []models.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\n\nSub-answers:\n", question)
	for _, res := range results {
		fmt.Fprintf(&b, "\n[%s] (confidence %.2f)\n%s\n", res.Label, res.Confidence, res.Decision)
	}
	b.WriteString("\nProduce the final combined answer:")

	return []models.Message{
		{Role: models.RoleSystem, Content: synthesizerSystem},
		{Role: models.RoleUser, Content: b.String()},
	}
}
