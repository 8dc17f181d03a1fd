// Package openai implements the provider capability against the OpenAI
// chat completions API. A configurable base URL makes it serve any
// OpenAI-compatible endpoint (OpenRouter, DeepSeek, local gateways).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/models"
)

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// Provider calls an OpenAI-compatible chat completions endpoint.
type Provider struct {
	id         string
	apiKey     string
	baseURL    string
	modelInfos []models.ModelInfo
	httpClient *http.Client
	retry      llm.RetryConfig
}

// New creates an OpenAI-compatible provider serving the given models.
func New(id, apiKey, baseURL string, infos []models.ModelInfo) *Provider {
	if id == "" {
		id = "openai"
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	owned := make([]models.ModelInfo, len(infos))
	copy(owned, infos)
	for i := range owned {
		owned[i].ProviderID = id
	}
	return &Provider{
		id:         id,
		apiKey:     apiKey,
		baseURL:    baseURL,
		modelInfos: owned,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		retry:      llm.DefaultRetryConfig(),
	}
}

type apiRequest struct {
	Model          string          `json:"model"`
	Messages       []apiMessage    `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Tools          []apiTool       `json:"tools,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ProviderID implements llm.Provider.
func (p *Provider) ProviderID() string { return p.id }

// ListModels implements llm.Provider.
func (p *Provider) ListModels() []models.ModelInfo {
	out := make([]models.ModelInfo, len(p.modelInfos))
	copy(out, p.modelInfos)
	return out
}

// Send implements llm.Provider.
func (p *Provider) Send(ctx context.Context, req *models.Request) (*models.ModelResponse, error) {
	return llm.SendWithRetry(ctx, p.retry, func() (*models.ModelResponse, error) {
		return p.sendOnce(ctx, req)
	})
}

func (p *Provider) sendOnce(ctx context.Context, req *models.Request) (*models.ModelResponse, error) {
	start := time.Now()

	apiReq := &apiRequest{
		Model:       req.ModelID,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.StopSequences,
	}
	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, apiMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if req.ResponseFormat == models.ResponseFormatJSON {
		apiReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	for _, tool := range req.Tools {
		params := tool.Schema
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object"}`)
		}
		apiReq.Tools = append(apiReq.Tools, apiTool{
			Type:     "function",
			Function: apiFunction{Name: tool.Name, Description: tool.Description, Parameters: params},
		})
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llm.ProviderError{Provider: p.id, Kind: llm.ErrKindTimeout, Message: "transport failure", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &llm.ProviderError{Provider: p.id, Kind: llm.ErrKindAPI, Message: "read response body", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(p.id, httpResp, respBody)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &llm.ProviderError{Provider: p.id, Kind: llm.ErrKindAPI, Message: "parse response", Err: err}
	}
	if apiResp.Error != nil {
		return nil, &llm.ProviderError{Provider: p.id, Kind: llm.ErrKindAPI, Message: apiResp.Error.Message}
	}
	if len(apiResp.Choices) == 0 {
		return nil, &llm.ProviderError{Provider: p.id, Kind: llm.ErrKindAPI, Message: "empty choices in response"}
	}

	choice := apiResp.Choices[0]
	resp := &models.ModelResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: models.Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}
	for _, call := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	for _, info := range p.modelInfos {
		if info.ModelID == req.ModelID {
			resp.ModelInfo = info
			break
		}
	}
	return resp, nil
}

// HealthCheck implements llm.Provider.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return &llm.ProviderError{Provider: p.id, Kind: llm.ErrKindAuth, Message: "no API key configured"}
	}
	return ctx.Err()
}

func classifyHTTPError(provider string, resp *http.Response, body []byte) error {
	msg := string(body)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindAuth, Message: msg}
	case http.StatusNotFound:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindModelNotFound, Message: msg}
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindRateLimit, Message: msg, RetryAfter: retryAfter}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindTimeout, Message: msg}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindOverloaded, Message: msg}
	default:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindAPI, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)}
	}
}
