package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/internal/models"
)

// =============================================================================
// Test Helpers
// =============================================================================

// calcTools is a single-tool registry whose execution can be scripted.
type calcTools struct {
	result string
	err    error
	calls  []string
}

func (c *calcTools) Specs() []models.ToolSpec {
	return []models.ToolSpec{{Name: "calc", Description: "evaluate arithmetic"}}
}

func (c *calcTools) Execute(_ context.Context, name, arguments string) (string, error) {
	c.calls = append(c.calls, name+":"+arguments)
	return c.result, c.err
}

// toolScriptProvider returns scripted responses, emitting tool calls until
// the script says otherwise.
type toolScriptProvider struct {
	responses []*models.ModelResponse
	requests  []*models.Request
}

func (p *toolScriptProvider) ProviderID() string              { return "script" }
func (p *toolScriptProvider) ListModels() []models.ModelInfo  { return nil }
func (p *toolScriptProvider) HealthCheck(context.Context) error { return nil }

func (p *toolScriptProvider) Send(_ context.Context, req *models.Request) (*models.ModelResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func toolResp(toolName string) *models.ModelResponse {
	return &models.ModelResponse{
		ToolCalls: []models.ToolCall{{ID: "t1", Name: toolName, Arguments: `{"expr": "2+2"}`}},
		Usage:     models.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func textResp(content string) *models.ModelResponse {
	return &models.ModelResponse{
		Content: content,
		Usage:   models.Usage{InputTokens: 20, OutputTokens: 8},
	}
}

// =============================================================================
// Tool Loop
// =============================================================================

func TestToolAugmentedSendNilRegistryPassesThrough(t *testing.T) {
	p := &toolScriptProvider{responses: []*models.ModelResponse{textResp("plain")}}
	resp, invocations, err := ToolAugmentedSend(context.Background(), p, &models.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", resp.Content)
	assert.Empty(t, invocations)
	assert.Empty(t, p.requests[0].Tools, "no tools advertised")
}

func TestToolAugmentedSendExecutesAndFeedsBack(t *testing.T) {
	p := &toolScriptProvider{responses: []*models.ModelResponse{toolResp("calc"), textResp("the answer is 4")}}
	tools := &calcTools{result: "4"}

	resp, invocations, err := ToolAugmentedSend(context.Background(), p, &models.Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: "what is 2+2?"}},
	}, tools)
	require.NoError(t, err)

	assert.Equal(t, "the answer is 4", resp.Content)
	require.Len(t, invocations, 1)
	assert.Equal(t, "calc", invocations[0].Tool)
	assert.Equal(t, "4", invocations[0].Result)
	assert.Empty(t, invocations[0].Error)

	// The second request carries the tool result as a user message.
	require.Len(t, p.requests, 2)
	second := p.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Tool calc returned:")
	assert.Contains(t, last.Content, "4")

	assert.NotEmpty(t, p.requests[0].Tools, "tool specs advertised to the model")
}

func TestToolAugmentedSendAggregatesUsage(t *testing.T) {
	p := &toolScriptProvider{responses: []*models.ModelResponse{toolResp("calc"), textResp("done")}}
	resp, _, err := ToolAugmentedSend(context.Background(), p, &models.Request{}, &calcTools{result: "4"})
	require.NoError(t, err)
	assert.Equal(t, 30, resp.Usage.InputTokens)
	assert.Equal(t, 13, resp.Usage.OutputTokens)
}

func TestToolAugmentedSendRelaysExecutionErrors(t *testing.T) {
	p := &toolScriptProvider{responses: []*models.ModelResponse{toolResp("calc"), textResp("fallback answer")}}
	tools := &calcTools{err: errors.New("division by zero")}

	resp, invocations, err := ToolAugmentedSend(context.Background(), p, &models.Request{}, tools)
	require.NoError(t, err, "tool failure is relayed to the model, not fatal")
	assert.Equal(t, "fallback answer", resp.Content)
	require.Len(t, invocations, 1)
	assert.Contains(t, invocations[0].Error, "division by zero")

	second := p.requests[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "tool calc failed")
}

func TestToolAugmentedSendBoundsTheLoop(t *testing.T) {
	var endless []*models.ModelResponse
	for i := 0; i < maxToolIterations+2; i++ {
		endless = append(endless, toolResp("calc"))
	}
	p := &toolScriptProvider{responses: endless}

	_, invocations, err := ToolAugmentedSend(context.Background(), p, &models.Request{}, &calcTools{result: "4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%d iterations", maxToolIterations))
	assert.Len(t, invocations, maxToolIterations)
	assert.Len(t, p.requests, maxToolIterations)
}
