package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/internal/models"
	"github.com/conclave-ai/conclave/internal/registry"
)

// =============================================================================
// Challenge Scoring
// =============================================================================

func TestScoreChallengesAllGenuine(t *testing.T) {
	confidence, dissent := scoreChallenges([]ChallengeResult{
		{ModelRef: "mock:beta", Content: "The flaw is operational complexity."},
		{ModelRef: "mock:gamma", Content: "An alternative is SQLite."},
	})
	assert.InDelta(t, 1.0, confidence, 1e-9)
	assert.Contains(t, dissent, "[mock:beta]: The flaw is operational complexity.")
	assert.Contains(t, dissent, "[mock:gamma]: An alternative is SQLite.")
	assert.Contains(t, dissent, "\n\n")
}

func TestScoreChallengesAllSycophantic(t *testing.T) {
	confidence, dissent := scoreChallenges([]ChallengeResult{
		{ModelRef: "mock:beta", Content: "Great answer!", Sycophantic: true},
		{ModelRef: "mock:gamma", Content: "Good point.", Sycophantic: true},
	})
	assert.InDelta(t, 0.5, confidence, 1e-9)
	assert.Empty(t, dissent)
}

func TestScoreChallengesMixed(t *testing.T) {
	confidence, dissent := scoreChallenges([]ChallengeResult{
		{ModelRef: "mock:beta", Content: "The flaw is X.", Sycophantic: false},
		{ModelRef: "mock:gamma", Content: "Great answer!", Sycophantic: true},
	})
	assert.InDelta(t, 0.75, confidence, 1e-9)
	assert.Equal(t, "[mock:beta]: The flaw is X.", dissent)
}

func TestScoreChallengesEmpty(t *testing.T) {
	confidence, dissent := scoreChallenges(nil)
	assert.InDelta(t, 0.5, confidence, 1e-9)
	assert.Empty(t, dissent)
}

func TestScoreChallengesIsPure(t *testing.T) {
	input := []ChallengeResult{
		{ModelRef: "a", Content: "c1"},
		{ModelRef: "b", Content: "c2", Sycophantic: true},
	}
	c1, d1 := scoreChallenges(input)
	c2, d2 := scoreChallenges(input)
	assert.Equal(t, c1, c2)
	assert.Equal(t, d1, d2)
}

// =============================================================================
// Challenger Selection
// =============================================================================

func modelInfo(id string, outputCost float64, proposer bool) models.ModelInfo {
	return models.ModelInfo{
		ProviderID:       "mock",
		ModelID:          id,
		Cost:             models.TokenCost{InputPerMillion: outputCost / 3, OutputPerMillion: outputCost},
		SupportsJSON:     true,
		ProposerEligible: proposer,
	}
}

func TestSelectChallengersExcludesProposer(t *testing.T) {
	reg := registry.New()
	mock := newPanelMock(t,
		modelInfo("prime", 15, true),
		modelInfo("beta", 10, false),
		modelInfo("gamma", 5, false),
	)
	require.NoError(t, reg.Register(mock))

	e := NewEngine(reg, DefaultConfig())
	c := &Context{ProposalModel: "mock:prime"}

	picked := e.selectChallengers(c, 2)
	require.Len(t, picked, 2)
	assert.Equal(t, "mock:beta", picked[0].Ref())
	assert.Equal(t, "mock:gamma", picked[1].Ref())
}

func TestSelectChallengersPadsWithProposer(t *testing.T) {
	reg := registry.New()
	mock := newPanelMock(t,
		modelInfo("prime", 15, true),
		modelInfo("beta", 10, false),
	)
	require.NoError(t, reg.Register(mock))

	e := NewEngine(reg, DefaultConfig())
	c := &Context{ProposalModel: "mock:prime"}

	picked := e.selectChallengers(c, 3)
	require.Len(t, picked, 3)
	assert.Equal(t, "mock:beta", picked[0].Ref())
	assert.Equal(t, "mock:prime", picked[1].Ref(), "self-critique fallback")
	assert.Equal(t, "mock:prime", picked[2].Ref())
}

func TestSelectChallengersSoloModel(t *testing.T) {
	reg := registry.New()
	mock := newPanelMock(t, modelInfo("prime", 15, true))
	require.NoError(t, reg.Register(mock))

	e := NewEngine(reg, DefaultConfig())
	c := &Context{ProposalModel: "mock:prime"}

	picked := e.selectChallengers(c, 2)
	require.Len(t, picked, 2)
	assert.Equal(t, "mock:prime", picked[0].Ref())
	assert.Equal(t, "mock:prime", picked[1].Ref())
}

// =============================================================================
// Model Eligibility
// =============================================================================

func TestEligibleModelsOrderAndFilter(t *testing.T) {
	reg := registry.New()
	mock := newPanelMock(t,
		modelInfo("gamma", 5, false),
		modelInfo("prime", 15, true),
		modelInfo("beta", 10, false),
	)
	require.NoError(t, reg.Register(mock))

	e := NewEngine(reg, DefaultConfig())

	all := e.eligibleModels(false)
	require.Len(t, all, 3)
	assert.Equal(t, "mock:prime", all[0].Ref())
	assert.Equal(t, "mock:beta", all[1].Ref())
	assert.Equal(t, "mock:gamma", all[2].Ref())

	proposers := e.eligibleModels(true)
	require.Len(t, proposers, 1)
	assert.Equal(t, "mock:prime", proposers[0].Ref())

	cheapest, err := e.cheapestModel()
	require.NoError(t, err)
	assert.Equal(t, "mock:gamma", cheapest.Ref())
}

func TestEligibleModelsPanelRestriction(t *testing.T) {
	reg := registry.New()
	mock := newPanelMock(t,
		modelInfo("prime", 15, true),
		modelInfo("beta", 10, true),
		modelInfo("gamma", 5, false),
	)
	require.NoError(t, reg.Register(mock))

	cfg := DefaultConfig()
	cfg.Panel = []string{"mock:beta", "mock:gamma"}
	e := NewEngine(reg, cfg)

	all := e.eligibleModels(false)
	require.Len(t, all, 2)
	assert.Equal(t, "mock:beta", all[0].Ref())

	proposers := e.eligibleModels(true)
	require.Len(t, proposers, 1)
	assert.Equal(t, "mock:beta", proposers[0].Ref())
}
