// Package voting implements the parallel single-turn vote protocol with
// meta-judge aggregation, the lightweight alternative to full rounds of
// deliberation.
package voting

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/conclave-ai/conclave/internal/models"
)

// Aggregation selects how votes are combined.
type Aggregation string

const (
	// AggregationMajority has the judge pick the single best vote.
	AggregationMajority Aggregation = "majority"
	// AggregationWeighted has the judge merge the votes.
	AggregationWeighted Aggregation = "weighted"
)

// Confidence is fixed per strategy; the vote set size does not move it.
const (
	majorityConfidence = 0.8
	weightedConfidence = 0.85
)

// VoteResult is one model's vote. Immutable.
type VoteResult struct {
	ModelRef string `json:"model_ref"`
	Content  string `json:"content"`
}

// Result is the aggregated outcome of a vote.
type Result struct {
	Decision   string       `json:"decision"`
	Strategy   Aggregation  `json:"strategy"`
	Confidence float64      `json:"confidence"`
	Votes      []VoteResult `json:"votes"`
	JudgeModel string       `json:"judge_model,omitempty"`
}

// Caller sends one completion to a model ref; the engine provides it.
type Caller func(ctx context.Context, ref string, msgs []models.Message) (content string, err error)

// Run fans the question out to every voter in parallel, drops individual
// failures, and aggregates. Zero successful votes yields an empty result
// with confidence 0; exactly one is returned directly with confidence 1.0
// and no judge call. Two or more go to the judge (the first voter ref,
// which callers pass sorted strongest-first).
func Run(ctx context.Context, question string, voters []string, aggregation Aggregation, call Caller) (*Result, error) {
	if aggregation != AggregationMajority && aggregation != AggregationWeighted {
		return nil, fmt.Errorf("unknown aggregation %q", aggregation)
	}
	if len(voters) == 0 {
		return &Result{Strategy: aggregation}, nil
	}

	contents := make([]string, len(voters))
	errs := make([]error, len(voters))

	var wg sync.WaitGroup
	for i, ref := range voters {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			contents[i], errs[i] = call(ctx, ref, voteMessages(question))
		}(i, ref)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var votes []VoteResult
	for i, ref := range voters {
		if errs[i] != nil {
			continue
		}
		votes = append(votes, VoteResult{ModelRef: ref, Content: contents[i]})
	}

	switch len(votes) {
	case 0:
		return &Result{Strategy: aggregation, Votes: votes}, nil
	case 1:
		return &Result{
			Decision:   votes[0].Content,
			Strategy:   aggregation,
			Confidence: 1.0,
			Votes:      votes,
		}, nil
	}

	judge := voters[0]
	decision, err := call(ctx, judge, judgeMessages(question, votes, aggregation))
	if err != nil {
		return nil, fmt.Errorf("judge %s: %w", judge, err)
	}

	confidence := majorityConfidence
	if aggregation == AggregationWeighted {
		confidence = weightedConfidence
	}
	return &Result{
		Decision:   decision,
		Strategy:   aggregation,
		Confidence: confidence,
		Votes:      votes,
		JudgeModel: judge,
	}, nil
}

const voterSystem = `You are one voter on an expert panel. Give your single best answer to the question: direct, specific, and committed. Do not enumerate options or hedge.`

func voteMessages(question string) []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: voterSystem},
		{Role: models.RoleUser, Content: question},
	}
}

const judgePickSystem = `You are the meta-judge of an expert panel. Read the labelled votes and produce the single best answer, choosing the vote whose position is strongest. Output only the winning answer, restated cleanly; never mention the votes or the panel.`

const judgeMergeSystem = `You are the meta-judge of an expert panel. Read the labelled votes and synthesise them into one merged answer, weighing each vote by the strength of its reasoning. Output only the merged answer; never mention the votes or the panel.`

func judgeMessages(question string, votes []VoteResult, aggregation Aggregation) []models.Message {
	system := judgePickSystem
	if aggregation == AggregationWeighted {
		system = judgeMergeSystem
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nVotes:\n", question)
	for _, vote := range votes {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", vote.ModelRef, vote.Content)
	}

	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: b.String()},
	}
}
