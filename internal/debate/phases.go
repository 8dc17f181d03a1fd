package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/models"
	"go.uber.org/zap"
)

// Phase handlers. Each requires the context to be in its state, calls the
// models it needs, records usage, and mutates the context with its output.
// None of them transitions the state — the run loop does.

// propose selects the strongest eligible proposer and produces the
// round's proposal.
func (e *Engine) propose(ctx context.Context, c *Context) error {
	if c.State != StatePropose {
		return &ConsensusError{Msg: fmt.Sprintf("propose called in state %s", c.State)}
	}
	e.sink.PhaseStarted(c.ID, c.CurrentRound, StatePropose)

	eligible := e.eligibleModels(true)
	if len(eligible) == 0 {
		return &InsufficientModelsError{Role: "proposer"}
	}
	proposer := eligible[0]

	resp, err := e.call(ctx, c, proposer.Ref(), proposeMessages(c, e.now()), "")
	if err != nil {
		return fmt.Errorf("proposer %s: %w", proposer.Ref(), err)
	}

	c.Proposal = resp.Content
	c.ProposalModel = proposer.Ref()
	e.log.Info("proposal recorded",
		zap.String("deliberation", c.ID),
		zap.Int("round", c.CurrentRound),
		zap.String("model", proposer.Ref()))
	return nil
}

// selectChallengers picks up to count models other than the proposer,
// strongest first, padding with the proposer itself when the pool is too
// small (same-model self-critique fallback).
func (e *Engine) selectChallengers(c *Context, count int) []models.ModelInfo {
	eligible := e.eligibleModels(false)

	var pool []models.ModelInfo
	var proposer *models.ModelInfo
	for i, info := range eligible {
		if info.Ref() == c.ProposalModel {
			proposer = &eligible[i]
			continue
		}
		pool = append(pool, info)
	}
	if len(pool) > count {
		pool = pool[:count]
	}
	if proposer != nil {
		for len(pool) < count {
			pool = append(pool, *proposer)
		}
	}
	return pool
}

// challenge fans out to the selected challengers in parallel with
// differentiated adversarial framings. Individual failures degrade the
// phase; it fails only when every challenger does. The recorded order
// follows the framing assignment, not completion order.
func (e *Engine) challenge(ctx context.Context, c *Context) error {
	if c.State != StateChallenge {
		return &ConsensusError{Msg: fmt.Sprintf("challenge called in state %s", c.State)}
	}
	e.sink.PhaseStarted(c.ID, c.CurrentRound, StateChallenge)

	challengers := e.selectChallengers(c, e.cfg.Challengers)
	if len(challengers) == 0 {
		return &InsufficientModelsError{Role: "challenger"}
	}

	type slot struct {
		result      ChallengeResult
		cost        float64
		invocations []llm.ToolInvocation
		err         error
	}
	slots := make([]slot, len(challengers))

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make([][]models.Message, len(challengers))
	for i := range challengers {
		msgs[i] = challengeMessages(c, Framings[i%len(Framings)], e.now())
	}

	var wg sync.WaitGroup
	for i, challenger := range challengers {
		framing := Framings[i%len(Framings)]
		wg.Add(1)
		go func(i int, info models.ModelInfo, framing Framing) {
			defer wg.Done()
			resp, cost, invocations, err := e.callRaw(callCtx, info.Ref(), msgs[i], "")
			slots[i].cost = cost
			slots[i].invocations = invocations
			if err != nil {
				slots[i].err = err
				return
			}
			slots[i].result = ChallengeResult{
				ModelRef:    info.Ref(),
				Content:     resp.Content,
				Sycophantic: Sycophantic(resp.Content),
				Framing:     framing,
			}
		}(i, challenger, framing)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	var failures []error
	for _, s := range slots {
		c.Cost += s.cost
		c.ToolCalls = append(c.ToolCalls, s.invocations...)
		if s.err != nil {
			failures = append(failures, s.err)
			e.log.Warn("challenger failed", zap.String("deliberation", c.ID), zap.Error(s.err))
			continue
		}
		c.Challenges = append(c.Challenges, s.result)
		e.sink.ChallengeReceived(c.ID, c.CurrentRound, s.result)
	}

	if len(c.Challenges) == 0 {
		return &ConsensusError{Msg: "All challengers failed", Err: failures[0]}
	}
	return nil
}

// revise asks the reviser (the proposer, unless overridden) to produce an
// improved answer addressing the challenges.
func (e *Engine) revise(ctx context.Context, c *Context) error {
	if c.State != StateRevise {
		return &ConsensusError{Msg: fmt.Sprintf("revise called in state %s", c.State)}
	}
	e.sink.PhaseStarted(c.ID, c.CurrentRound, StateRevise)

	ref := e.cfg.ReviserModel
	if ref == "" {
		ref = c.ProposalModel
	}

	resp, err := e.call(ctx, c, ref, reviseMessages(c, e.now()), "")
	if err != nil {
		return fmt.Errorf("reviser %s: %w", ref, err)
	}

	c.Revision = resp.Content
	c.RevisionModel = ref
	return nil
}

// commit is a pure transformation of the round's data into decision,
// confidence, and dissent. The optional taxonomy call is best-effort and
// cannot fail the phase.
func (e *Engine) commit(ctx context.Context, c *Context) error {
	if c.State != StateCommit {
		return &ConsensusError{Msg: fmt.Sprintf("commit called in state %s", c.State)}
	}
	e.sink.PhaseStarted(c.ID, c.CurrentRound, StateCommit)

	c.Decision = c.Revision
	c.Confidence, c.Dissent = scoreChallenges(c.Challenges)

	if e.cfg.Classify && c.Taxonomy == nil {
		c.Taxonomy = e.classifyTaxonomy(ctx, c)
	}
	return nil
}

// scoreChallenges computes calibrated confidence and the dissent record
// from a round's challenges. Pure function: same challenges, same output.
// Confidence starts at 0.5 and earns the other half from the fraction of
// genuine (non-sycophantic) challenges; dissent collects exactly the
// genuine challenges with model attribution.
func scoreChallenges(challenges []ChallengeResult) (confidence float64, dissent string) {
	if len(challenges) == 0 {
		return 0.5, ""
	}

	var genuine []string
	for _, ch := range challenges {
		if !ch.Sycophantic {
			genuine = append(genuine, fmt.Sprintf("[%s]: %s", ch.ModelRef, ch.Content))
		}
	}

	confidence = 0.5 + float64(len(genuine))/float64(len(challenges))*0.5
	dissent = strings.Join(genuine, "\n\n")
	return confidence, dissent
}

// classifyTaxonomy makes one best-effort JSON call to the cheapest model.
// Every failure path returns nil and the deliberation proceeds untagged.
func (e *Engine) classifyTaxonomy(ctx context.Context, c *Context) *Taxonomy {
	cheapest, err := e.cheapestModel()
	if err != nil {
		return nil
	}
	resp, err := e.call(ctx, c, cheapest.Ref(), taxonomyMessages(c, e.now()), models.ResponseFormatJSON)
	if err != nil {
		e.log.Debug("taxonomy call failed", zap.Error(err))
		return nil
	}
	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil
	}
	var tax Taxonomy
	if err := json.Unmarshal([]byte(raw), &tax); err != nil {
		return nil
	}
	switch tax.Intent {
	case "factual", "judgment", "creative", "strategic", "technical":
	default:
		return nil
	}
	return &tax
}
