package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conclave-ai/conclave/internal/config"
	"github.com/conclave-ai/conclave/internal/database"
	"github.com/conclave-ai/conclave/internal/debate"
	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/llm/providers/anthropic"
	"github.com/conclave-ai/conclave/internal/llm/providers/openai"
	"github.com/conclave-ai/conclave/internal/models"
	"github.com/conclave-ai/conclave/internal/registry"
)

type rootFlags struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "conclave",
		Short: "Multi-model consensus engine",
		Long: `Conclave drives a question through structured deliberation across a
panel of language models: proposal, adversarial challenge, revision, and
commit, until the panel converges on a decision.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "conclave.yaml", "configuration file")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newAskCommand(flags))
	cmd.AddCommand(newVoteCommand(flags))
	cmd.AddCommand(newDecomposeCommand(flags))
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// setup builds the registry, repository, and engine from the config file.
// The returned cleanup closes what was opened.
func setup(flags *rootFlags, overrides func(*debate.Config)) (*debate.Engine, func(), error) {
	log, err := newLogger(flags.verbose)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}

	regOpts := []registry.Option{registry.WithLogger(log)}
	if cfg.Engine.CostHardLimit > 0 {
		regOpts = append(regOpts, registry.WithCostLimit(cfg.Engine.CostHardLimit))
	}
	for _, p := range cfg.Providers {
		if p.RateLimit > 0 {
			regOpts = append(regOpts, registry.WithRateLimit(p.ID, p.RateLimit))
		}
	}
	reg := registry.New(regOpts...)

	for _, p := range cfg.Providers {
		provider, err := buildProvider(p)
		if err != nil {
			return nil, nil, err
		}
		if err := reg.Register(provider); err != nil {
			return nil, nil, err
		}
	}

	cleanup := func() { _ = log.Sync() }

	engineCfg := debate.Config{
		MaxRounds:            cfg.Engine.MaxRounds,
		Challengers:          cfg.Engine.Challengers,
		Protocol:             debate.Protocol(cfg.Engine.Protocol),
		Classify:             cfg.Engine.Classify,
		Owner:                cfg.Storage.OwnerID,
		MaxTokens:            cfg.Engine.MaxTokens,
		Temperature:          cfg.Engine.Temperature,
		DecomposeMaxSubtasks: cfg.Engine.Decompose.MaxSubtasks,
		DecomposeParallel:    cfg.Engine.Decompose.Parallel == nil || *cfg.Engine.Decompose.Parallel,
		DecomposeRounds:      cfg.Engine.Decompose.Rounds,
		SynthesisStrategy:    cfg.Engine.Decompose.Synthesis,
		VotingAggregation:    cfg.Engine.Voting.Aggregation,
	}
	if overrides != nil {
		overrides(&engineCfg)
	}

	opts := []debate.EngineOption{debate.WithLogger(log)}
	if flags.verbose {
		opts = append(opts, debate.WithSink(consoleSink{}))
	}
	repo, err := buildRepository(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if repo != nil {
		opts = append(opts, debate.WithStore(repo))
		prev := cleanup
		cleanup = func() { _ = repo.Close(); prev() }
	}

	return debate.NewEngine(reg, engineCfg, opts...), cleanup, nil
}

// consoleSink prints deliberation progress to stderr in verbose mode.
type consoleSink struct {
	debate.NopSink
}

func (consoleSink) PhaseStarted(id string, round int, state debate.State) {
	fmt.Fprintf(os.Stderr, "[%s] round %d: %s\n", shortID(id), round, state)
}

func (consoleSink) ChallengeReceived(id string, round int, ch debate.ChallengeResult) {
	fmt.Fprintf(os.Stderr, "[%s] round %d: challenge from %s (%s)\n", shortID(id), round, ch.ModelRef, ch.Framing)
}

func (consoleSink) RoundCompleted(id string, res debate.RoundResult) {
	fmt.Fprintf(os.Stderr, "[%s] round %d committed: confidence %.2f\n", shortID(id), res.RoundNumber, res.Confidence)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func buildProvider(p config.ProviderConfig) (llm.Provider, error) {
	infos := make([]models.ModelInfo, len(p.Models))
	for i, m := range p.Models {
		infos[i] = models.ModelInfo{
			ProviderID: p.ID,
			ModelID:    m.ID,
			Cost: models.TokenCost{
				InputPerMillion:  m.InputPerMillion,
				OutputPerMillion: m.OutputPerMillion,
			},
			SupportsJSON:     m.SupportsJSON,
			SupportsTools:    m.SupportsTools,
			ProposerEligible: m.ProposerEligible,
		}
	}

	switch p.Type {
	case "anthropic":
		return anthropic.New(p.ID, p.APIKey, p.BaseURL, infos), nil
	case "openai":
		return openai.New(p.ID, p.APIKey, p.BaseURL, infos), nil
	case "mock":
		mock := llm.NewMockProvider(p.ID)
		for _, info := range infos {
			mock.AddModel(info)
		}
		return mock, nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", p.Type)
	}
}

func buildRepository(cfg *config.Config) (database.Repository, error) {
	switch cfg.Storage.Backend {
	case "":
		return nil, nil
	case "memory":
		return database.NewMemoryRepository(), nil
	case "sqlite":
		return database.NewSQLiteRepository(cfg.Storage.Path, nil)
	case "postgres":
		return database.NewPostgresRepository(context.Background(), cfg.Storage.DSN, nil)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
