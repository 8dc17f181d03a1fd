package decompose

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Runner resolves one sub-task question to a decision with a confidence.
// The engine supplies a nested deliberation; tests supply a stub.
type Runner func(ctx context.Context, question string) (decision string, confidence float64, err error)

// Schedule runs the validated DAG layer by layer. Within a layer,
// sub-tasks run concurrently when parallel is set, otherwise serially in
// input order. Each sub-task's question carries the overall question, the
// node's description, and the decisions of its dependencies. Any sub-task
// failure aborts the whole schedule.
//
// Results come back in topological completion order: layer by layer,
// input order within a layer.
func Schedule(ctx context.Context, question string, specs []SubtaskSpec, parallel bool, run Runner) ([]SubtaskResult, error) {
	layers, err := Layers(specs)
	if err != nil {
		return nil, err
	}

	decisions := make(map[string]SubtaskResult, len(specs))
	var ordered []SubtaskResult

	for _, layer := range layers {
		results := make([]SubtaskResult, len(layer))

		if parallel && len(layer) > 1 {
			g, gctx := errgroup.WithContext(ctx)
			for i, spec := range layer {
				i, spec := i, spec
				g.Go(func() error {
					decision, confidence, err := run(gctx, subtaskQuestion(question, spec, decisions))
					if err != nil {
						return fmt.Errorf("subtask %q: %w", spec.Label, err)
					}
					results[i] = SubtaskResult{Label: spec.Label, Decision: decision, Confidence: confidence}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
		} else {
			for i, spec := range layer {
				decision, confidence, err := run(ctx, subtaskQuestion(question, spec, decisions))
				if err != nil {
					return nil, fmt.Errorf("subtask %q: %w", spec.Label, err)
				}
				results[i] = SubtaskResult{Label: spec.Label, Decision: decision, Confidence: confidence}
			}
		}

		for _, res := range results {
			decisions[res.Label] = res
			ordered = append(ordered, res)
		}
	}
	return ordered, nil
}

// subtaskQuestion is the overall question, the node's description, and
// the dependency decisions in sorted label order so the prompt is
// deterministic. Sub-tasks answer their fragment in the context of the
// whole question, not in isolation.
func subtaskQuestion(question string, spec SubtaskSpec, decisions map[string]SubtaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall question: %s\n\nSub-task: %s", question, spec.Description)

	deps := make([]string, len(spec.Dependencies))
	copy(deps, spec.Dependencies)
	sort.Strings(deps)
	for _, dep := range deps {
		if res, ok := decisions[dep]; ok {
			fmt.Fprintf(&b, "\n\nResult from %s: %s", dep, res.Decision)
		}
	}
	return b.String()
}
