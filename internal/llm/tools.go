package llm

import (
	"context"
	"fmt"

	"github.com/conclave-ai/conclave/internal/models"
)

// ToolRegistry resolves and executes tools on behalf of a model. The
// engine never issues tool-role messages itself; it loops through
// ToolAugmentedSend until the model stops asking.
type ToolRegistry interface {
	// Specs lists the tools to advertise to the model.
	Specs() []models.ToolSpec
	// Execute runs the named tool with JSON-encoded arguments and returns
	// its textual result.
	Execute(ctx context.Context, name, arguments string) (string, error)
}

// ToolInvocation records one executed tool call.
type ToolInvocation struct {
	ModelRef  string `json:"model_ref"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// maxToolIterations bounds the send → execute → send loop so a model that
// keeps requesting tools cannot spin forever.
const maxToolIterations = 8

// ToolAugmentedSend performs a completion call, executing any tool calls
// the model requests and feeding results back until the model returns a
// plain response. The returned response carries the aggregated usage of
// the whole loop so the caller can record it once. The returned
// invocations include failed executions, whose error text is relayed to
// the model rather than aborting the loop.
func ToolAugmentedSend(ctx context.Context, p Provider, req *models.Request, tools ToolRegistry) (*models.ModelResponse, []ToolInvocation, error) {
	if tools == nil {
		resp, err := p.Send(ctx, req)
		return resp, nil, err
	}

	working := *req
	working.Tools = tools.Specs()
	messages := make([]models.Message, len(req.Messages))
	copy(messages, req.Messages)

	var invocations []ToolInvocation
	var total models.Usage

	for i := 0; i < maxToolIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, invocations, err
		}

		working.Messages = messages
		resp, err := p.Send(ctx, &working)
		if err != nil {
			return nil, invocations, err
		}
		total.InputTokens += resp.Usage.InputTokens
		total.OutputTokens += resp.Usage.OutputTokens
		if len(resp.ToolCalls) == 0 {
			resp.Usage = total
			return resp, invocations, nil
		}

		if resp.Content != "" {
			messages = append(messages, models.Message{Role: models.RoleAssistant, Content: resp.Content})
		}
		for _, call := range resp.ToolCalls {
			inv := ToolInvocation{
				ModelRef:  resp.ModelInfo.Ref(),
				Tool:      call.Name,
				Arguments: call.Arguments,
			}
			result, execErr := tools.Execute(ctx, call.Name, call.Arguments)
			if execErr != nil {
				inv.Error = execErr.Error()
				result = fmt.Sprintf("tool %s failed: %v", call.Name, execErr)
			} else {
				inv.Result = result
			}
			invocations = append(invocations, inv)
			messages = append(messages, models.Message{
				Role:    models.RoleUser,
				Content: fmt.Sprintf("Tool %s returned:\n%s", call.Name, result),
			})
		}
	}

	return nil, invocations, fmt.Errorf("tool loop exceeded %d iterations", maxToolIterations)
}
