package debate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conclave-ai/conclave/internal/debate/decompose"
	"github.com/conclave-ai/conclave/internal/debate/synthesis"
	"github.com/conclave-ai/conclave/internal/debate/voting"
	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/models"
)

// Result is the outcome of a consensus or decompose run.
type Result struct {
	Decision   string
	Confidence float64
	// Dissent is empty when every challenge was sycophantic.
	Dissent string
	Cost    float64
	Rounds  int
	// Subtasks is populated by the decompose protocol.
	Subtasks []decompose.SubtaskResult
	// Context is the final deliberation context, for inspection and export.
	Context *Context
}

// Run routes the question through the configured protocol. Auto classifies
// the question first: judgment tasks go to voting, everything else to
// consensus.
func (e *Engine) Run(ctx context.Context, question string) (*Result, error) {
	switch e.cfg.Protocol {
	case ProtocolConsensus, "":
		return e.RunConsensus(ctx, question)
	case ProtocolDecompose:
		return e.RunDecompose(ctx, question)
	case ProtocolVoting:
		res, err := e.RunVoting(ctx, question)
		if err != nil {
			return nil, err
		}
		return &Result{
			Decision:   res.Decision,
			Confidence: res.Confidence,
		}, nil
	case ProtocolAuto:
		if e.ClassifyTaskType(ctx, question) == TaskTypeJudgment {
			res, err := e.RunVoting(ctx, question)
			if err != nil {
				return nil, err
			}
			return &Result{Decision: res.Decision, Confidence: res.Confidence}, nil
		}
		return e.RunConsensus(ctx, question)
	default:
		return nil, &ConsensusError{Msg: fmt.Sprintf("unknown protocol %q", e.cfg.Protocol)}
	}
}

// RunConsensus drives the full propose/challenge/revise/commit loop until
// convergence or round exhaustion. A completed deliberation is persisted
// when a store is configured; a persistence failure returns the valid
// result together with a *StorageError.
func (e *Engine) RunConsensus(ctx context.Context, question string) (*Result, error) {
	c := e.newContext(question)
	if err := e.runRounds(ctx, c); err != nil {
		return nil, err
	}

	result := &Result{
		Decision:   c.Decision,
		Confidence: c.Confidence,
		Dissent:    c.Dissent,
		Cost:       c.Cost,
		Rounds:     len(c.RoundHistory),
		Context:    c,
	}
	e.sink.DecisionReached(c.ID, c.Decision, c.Confidence)
	e.log.Info("deliberation complete",
		zap.String("deliberation", c.ID),
		zap.Int("rounds", result.Rounds),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("cost", result.Cost))

	if err := e.persist(ctx, e.record(c, ProtocolConsensus)); err != nil {
		e.log.Warn("deliberation persistence failed", zap.String("deliberation", c.ID), zap.Error(err))
		return result, err
	}
	return result, nil
}

func (e *Engine) newContext(question string) *Context {
	return &Context{
		ID:        uuid.New().String(),
		Question:  question,
		MaxRounds: e.cfg.MaxRounds,
		StartedAt: e.now(),
		State:     StateIdle,
	}
}

// runRounds runs the state machine loop on a prepared context. On any
// failure the context is moved to Failed with the reason; cancellation
// discards partial round data and skips persistence.
func (e *Engine) runRounds(ctx context.Context, c *Context) error {
	fail := func(err error) error {
		msg := err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			msg = "cancelled"
			c.clearRound()
		}
		if c.State != StateFailed {
			_ = Fail(c, msg)
		}
		return err
	}

	if err := Apply(c, StatePropose); err != nil {
		return fail(err)
	}

	for {
		if err := e.propose(ctx, c); err != nil {
			return fail(err)
		}
		if err := Apply(c, StateChallenge); err != nil {
			return fail(err)
		}
		if err := e.challenge(ctx, c); err != nil {
			return fail(err)
		}
		if err := Apply(c, StateRevise); err != nil {
			return fail(err)
		}
		if err := e.revise(ctx, c); err != nil {
			return fail(err)
		}
		if err := Apply(c, StateCommit); err != nil {
			return fail(err)
		}
		if err := e.commit(ctx, c); err != nil {
			return fail(err)
		}

		CheckConvergence(c)
		e.sink.RoundCompleted(c.ID, RoundResult{
			RoundNumber:   c.CurrentRound,
			Proposal:      c.Proposal,
			ProposalModel: c.ProposalModel,
			Challenges:    c.Challenges,
			Revision:      c.Revision,
			RevisionModel: c.RevisionModel,
			Decision:      c.Decision,
			Confidence:    c.Confidence,
			Dissent:       c.Dissent,
		})

		if CanTransition(c, StateComplete) {
			return Apply(c, StateComplete)
		}
		if err := Apply(c, StatePropose); err != nil {
			return fail(err)
		}
	}
}

// RunVoting runs the single-turn vote protocol across all eligible models.
func (e *Engine) RunVoting(ctx context.Context, question string) (*voting.Result, error) {
	if question == "" {
		return nil, &ConsensusError{Msg: "question is empty"}
	}
	eligible := e.eligibleModels(false)
	if len(eligible) == 0 {
		return nil, &InsufficientModelsError{Role: "voter"}
	}

	voters := make([]string, len(eligible))
	for i, info := range eligible {
		voters[i] = info.Ref()
	}

	res, err := voting.Run(ctx, question, voters, voting.Aggregation(e.cfg.VotingAggregation), e.plainCaller())
	if err != nil {
		return nil, err
	}

	if e.repo != nil {
		rec := &Record{
			ID:          uuid.New().String(),
			OwnerID:     e.cfg.Owner,
			Question:    question,
			Protocol:    ProtocolVoting,
			StartedAt:   e.now(),
			CompletedAt: e.now(),
			Decision:    res.Decision,
			Confidence:  res.Confidence,
			Votes:       res.Votes,
		}
		if err := e.persist(ctx, rec); err != nil {
			e.log.Warn("vote persistence failed", zap.Error(err))
			return res, err
		}
	}
	return res, nil
}

// RunDecompose asks the cheapest model for a sub-task DAG, schedules each
// node as a nested consensus deliberation, and synthesizes the final
// answer with the strongest model. A single-subtask decomposition
// short-circuits to a plain consensus run.
func (e *Engine) RunDecompose(ctx context.Context, question string) (*Result, error) {
	if question == "" {
		return nil, &ConsensusError{Msg: "question is empty"}
	}

	cheapest, err := e.cheapestModel()
	if err != nil {
		return nil, err
	}

	var totalCost float64
	resp, err := e.callTracked(ctx, &totalCost, cheapest.Ref(), decomposeMessages(question, e.cfg.DecomposeMaxSubtasks, e.now()), models.ResponseFormatJSON)
	if err != nil {
		return nil, &ConsensusError{Msg: "decomposition call failed", Err: err}
	}

	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil, err
	}
	specs, err := decompose.Parse(raw)
	if err != nil {
		return nil, &ConsensusError{Msg: "malformed decomposition", Err: err}
	}

	// A question that does not split gets a plain deliberation.
	if len(specs) == 1 {
		res, err := e.RunConsensus(ctx, question)
		if err != nil {
			return nil, err
		}
		res.Cost += totalCost
		return res, nil
	}

	if err := decompose.Validate(specs, e.cfg.DecomposeMaxSubtasks); err != nil {
		return nil, &ConsensusError{Msg: "invalid decomposition", Err: err}
	}

	e.log.Info("question decomposed",
		zap.Int("subtasks", len(specs)),
		zap.Bool("parallel", e.cfg.DecomposeParallel))

	nested := *e
	nested.cfg.MaxRounds = e.cfg.DecomposeRounds
	nested.cfg.Protocol = ProtocolConsensus
	nested.repo = nil // sub-tasks are persisted with the parent record

	var costMu sync.Mutex
	results, err := decompose.Schedule(ctx, question, specs, e.cfg.DecomposeParallel, func(ctx context.Context, q string) (string, float64, error) {
		res, err := nested.RunConsensus(ctx, q)
		if err != nil {
			return "", 0, err
		}
		costMu.Lock()
		totalCost += res.Cost
		costMu.Unlock()
		return res.Decision, res.Confidence, nil
	})
	if err != nil {
		return nil, &ConsensusError{Msg: "subtask scheduling failed", Err: err}
	}

	eligible := e.eligibleModels(false)
	if len(eligible) == 0 {
		return nil, &InsufficientModelsError{Role: "synthesizer"}
	}
	synth, err := synthesis.Synthesize(ctx, question, results, synthesis.Strategy(e.cfg.SynthesisStrategy), eligible[0].Ref(),
		func(ctx context.Context, ref string, msgs []models.Message) (string, error) {
			resp, err := e.callTracked(ctx, &totalCost, ref, msgs, "")
			if err != nil {
				return "", err
			}
			return resp.Content, nil
		})
	if err != nil {
		return nil, &ConsensusError{Msg: "synthesis failed", Err: err}
	}

	result := &Result{
		Decision:   synth.Decision,
		Confidence: synth.Confidence,
		Cost:       totalCost,
		Subtasks:   results,
	}
	e.sink.DecisionReached("", result.Decision, result.Confidence)

	if e.repo != nil {
		rec := &Record{
			ID:           uuid.New().String(),
			OwnerID:      e.cfg.Owner,
			Question:     question,
			Protocol:     ProtocolDecompose,
			StartedAt:    e.now(),
			CompletedAt:  e.now(),
			Decision:     result.Decision,
			Confidence:   result.Confidence,
			SubtaskSpecs: specs,
			Subtasks:     results,
			Cost:         totalCost,
		}
		if err := e.persist(ctx, rec); err != nil {
			e.log.Warn("decomposition persistence failed", zap.Error(err))
			return result, err
		}
	}
	return result, nil
}

// TaskType is the auto-protocol classification of a question.
type TaskType string

const (
	TaskTypeReasoning TaskType = "reasoning"
	TaskTypeJudgment  TaskType = "judgment"
	TaskTypeUnknown   TaskType = "unknown"
)

// ClassifyTaskType makes one best-effort JSON call to the cheapest model.
// Any failure, including unparseable output, yields TaskTypeUnknown.
func (e *Engine) ClassifyTaskType(ctx context.Context, question string) TaskType {
	cheapest, err := e.cheapestModel()
	if err != nil {
		return TaskTypeUnknown
	}
	resp, _, _, err := e.callRaw(ctx, cheapest.Ref(), classifyMessages(question, e.now()), models.ResponseFormatJSON)
	if err != nil {
		e.log.Debug("task classification failed", zap.Error(err))
		return TaskTypeUnknown
	}
	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return TaskTypeUnknown
	}
	var out struct {
		TaskType string `json:"task_type"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return TaskTypeUnknown
	}
	switch TaskType(out.TaskType) {
	case TaskTypeReasoning, TaskTypeJudgment:
		return TaskType(out.TaskType)
	}
	return TaskTypeUnknown
}

// callTracked is callRaw with the cost accumulated into a counter instead
// of a deliberation context. Safe for serial use only.
func (e *Engine) callTracked(ctx context.Context, cost *float64, ref string, msgs []models.Message, format string) (*models.ModelResponse, error) {
	resp, incr, _, err := e.callRaw(ctx, ref, msgs, format)
	if err != nil {
		return nil, err
	}
	*cost += incr
	return resp, nil
}

// plainCaller adapts callRaw to the content-only signature the voting and
// synthesis packages consume. Cost accounting happens in the registry, so
// the per-vote increments are not folded into a deliberation context.
func (e *Engine) plainCaller() func(ctx context.Context, ref string, msgs []models.Message) (string, error) {
	return func(ctx context.Context, ref string, msgs []models.Message) (string, error) {
		resp, _, _, err := e.callRaw(ctx, ref, msgs, "")
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}
