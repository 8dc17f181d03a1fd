package debate

import (
	"context"
	"sort"
	"time"

	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/models"
	"github.com/conclave-ai/conclave/internal/registry"
	"go.uber.org/zap"
)

// Protocol selects how a question is answered.
type Protocol string

const (
	ProtocolConsensus Protocol = "consensus"
	ProtocolVoting    Protocol = "voting"
	ProtocolDecompose Protocol = "decompose"
	ProtocolAuto      Protocol = "auto"
)

// Config tunes a deliberation. Zero values fall back to defaults.
type Config struct {
	// MaxRounds bounds the propose/challenge/revise/commit loop.
	MaxRounds int
	// Challengers is how many adversarial reviews each proposal draws.
	Challengers int
	// Panel optionally restricts eligible models to these refs.
	Panel []string
	// ReviserModel overrides the default reviser (the proposer).
	ReviserModel string
	// Owner scopes persisted records; empty means unscoped.
	Owner string
	// Classify enables the best-effort taxonomy call at commit.
	Classify bool
	// Protocol routes the question: consensus, voting, decompose, or auto.
	Protocol Protocol

	MaxTokens   int
	Temperature float64

	// DecomposeMaxSubtasks caps the sub-task DAG size.
	DecomposeMaxSubtasks int
	// DecomposeParallel runs independent sub-tasks concurrently.
	DecomposeParallel bool
	// DecomposeRounds is the round budget of each nested deliberation.
	DecomposeRounds int
	// SynthesisStrategy is "merge" or "prioritize".
	SynthesisStrategy string
	// VotingAggregation is "majority" or "weighted".
	VotingAggregation string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRounds:            3,
		Challengers:          2,
		Protocol:             ProtocolConsensus,
		MaxTokens:            4096,
		Temperature:          0.7,
		DecomposeMaxSubtasks: 7,
		DecomposeParallel:    true,
		DecomposeRounds:      1,
		SynthesisStrategy:    "merge",
		VotingAggregation:    "majority",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.Challengers <= 0 {
		c.Challengers = d.Challengers
	}
	if c.Protocol == "" {
		c.Protocol = d.Protocol
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.DecomposeMaxSubtasks <= 0 {
		c.DecomposeMaxSubtasks = d.DecomposeMaxSubtasks
	}
	if c.DecomposeRounds <= 0 {
		c.DecomposeRounds = d.DecomposeRounds
	}
	if c.SynthesisStrategy == "" {
		c.SynthesisStrategy = d.SynthesisStrategy
	}
	if c.VotingAggregation == "" {
		c.VotingAggregation = d.VotingAggregation
	}
	return c
}

// Engine drives deliberations against a shared provider registry.
type Engine struct {
	reg   *registry.Registry
	cfg   Config
	log   *zap.Logger
	sink  EventSink
	tools llm.ToolRegistry
	repo  Store
	now   func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithSink installs a progress callback sink.
func WithSink(sink EventSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithTools enables tool-augmented model calls through the given registry.
func WithTools(tools llm.ToolRegistry) EngineOption {
	return func(e *Engine) { e.tools = tools }
}

// WithStore persists completed deliberations through the given store.
func WithStore(repo Store) EngineOption {
	return func(e *Engine) { e.repo = repo }
}

// WithClock overrides the time source; used by prompt-dating tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a deliberation engine.
func NewEngine(reg *registry.Registry, cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		reg:  reg,
		cfg:  cfg.withDefaults(),
		log:  zap.NewNop(),
		sink: NopSink{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// eligibleModels returns registered models filtered by the panel and,
// when proposerOnly is set, by proposer eligibility. Sorted by descending
// output cost (the capability proxy), ties broken by ref for determinism.
func (e *Engine) eligibleModels(proposerOnly bool) []models.ModelInfo {
	all := e.reg.ListAllModels()

	var panel map[string]bool
	if len(e.cfg.Panel) > 0 {
		panel = make(map[string]bool, len(e.cfg.Panel))
		for _, ref := range e.cfg.Panel {
			panel[ref] = true
		}
	}

	var out []models.ModelInfo
	for _, info := range all {
		if panel != nil && !panel[info.Ref()] {
			continue
		}
		if proposerOnly && !info.ProposerEligible {
			continue
		}
		out = append(out, info)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cost.OutputPerMillion != out[j].Cost.OutputPerMillion {
			return out[i].Cost.OutputPerMillion > out[j].Cost.OutputPerMillion
		}
		return out[i].Ref() < out[j].Ref()
	})
	return out
}

// cheapestModel returns the eligible model with the lowest output cost.
func (e *Engine) cheapestModel() (models.ModelInfo, error) {
	eligible := e.eligibleModels(false)
	if len(eligible) == 0 {
		return models.ModelInfo{}, &InsufficientModelsError{Role: "classifier"}
	}
	return eligible[len(eligible)-1], nil
}

// call sends one completion to the given model, records usage against the
// registry, and accumulates cost and tool invocations on the deliberation
// context. Serial phases only — the challenge fan-out uses callRaw so
// concurrent challengers never touch the context.
func (e *Engine) call(ctx context.Context, c *Context, ref string, msgs []models.Message, format string) (*models.ModelResponse, error) {
	resp, cost, invocations, err := e.callRaw(ctx, ref, msgs, format)
	if err != nil {
		return nil, err
	}
	if c != nil {
		c.Cost += cost
		c.ToolCalls = append(c.ToolCalls, invocations...)
	}
	return resp, nil
}

// callRaw sends one completion to the given model and records usage
// against the registry, returning the incremental cost and any tool
// invocations instead of mutating shared state. Cancellation is checked
// before the suspension point.
func (e *Engine) callRaw(ctx context.Context, ref string, msgs []models.Message, format string) (*models.ModelResponse, float64, []llm.ToolInvocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, nil, err
	}

	info, err := e.reg.GetModelInfo(ref)
	if err != nil {
		return nil, 0, nil, err
	}
	provider, modelID, err := e.reg.GetProvider(ref)
	if err != nil {
		return nil, 0, nil, err
	}

	req := &models.Request{
		Messages:       msgs,
		ModelID:        modelID,
		MaxTokens:      e.cfg.MaxTokens,
		Temperature:    e.cfg.Temperature,
		ResponseFormat: format,
	}

	var resp *models.ModelResponse
	var invocations []llm.ToolInvocation
	if e.tools != nil && info.SupportsTools && format == "" {
		resp, invocations, err = llm.ToolAugmentedSend(ctx, provider, req, e.tools)
	} else {
		resp, err = provider.Send(ctx, req)
	}
	if err != nil {
		return nil, 0, invocations, err
	}

	cost, err := e.reg.RecordUsage(info, resp.Usage)
	if err != nil {
		return nil, 0, invocations, err
	}

	e.log.Debug("model call completed",
		zap.String("model", ref),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("cost", cost),
		zap.Int64("latency_ms", resp.LatencyMs))
	return resp, cost, invocations, nil
}
