// Package models holds the wire-level types shared between the provider
// layer, the registry, and the deliberation engine.
package models

import "encoding/json"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent to a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenCost is the price of a model in USD per million tokens.
type TokenCost struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// ModelInfo describes one model served by a registered provider.
type ModelInfo struct {
	ProviderID string    `json:"provider_id"`
	ModelID    string    `json:"model_id"`
	Cost       TokenCost `json:"cost"`

	SupportsJSON  bool `json:"supports_json"`
	SupportsTools bool `json:"supports_tools"`

	// ProposerEligible is false for models whose output format cannot act
	// as the proposer (e.g. search-grounded models that emit citations).
	ProposerEligible bool `json:"proposer_eligible"`
}

// Ref returns the provider-qualified model reference "providerId:modelId".
func (m ModelInfo) Ref() string {
	return m.ProviderID + ":" + m.ModelID
}

// Usage is the token accounting reported by a provider for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolSpec advertises a callable tool to a model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// ToolCall is a tool invocation requested by a model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded
}

// ResponseFormatJSON asks the provider to return structured JSON. Providers
// that cannot enforce it fall back to prompt instructions; callers must
// still parse defensively.
const ResponseFormatJSON = "json"

// Request is a provider-agnostic completion request.
type Request struct {
	Messages       []Message  `json:"messages"`
	ModelID        string     `json:"model_id"`
	MaxTokens      int        `json:"max_tokens,omitempty"`
	Temperature    float64    `json:"temperature,omitempty"`
	StopSequences  []string   `json:"stop_sequences,omitempty"`
	ResponseFormat string     `json:"response_format,omitempty"`
	Tools          []ToolSpec `json:"tools,omitempty"`
}

// ModelResponse is the provider-agnostic result of one completion call.
type ModelResponse struct {
	Content      string     `json:"content"`
	ModelInfo    ModelInfo  `json:"model_info"`
	Usage        Usage      `json:"usage"`
	FinishReason string     `json:"finish_reason"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	LatencyMs    int64      `json:"latency_ms"`
}
