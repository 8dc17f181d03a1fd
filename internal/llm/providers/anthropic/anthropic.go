// Package anthropic implements the provider capability against the
// Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conclave-ai/conclave/internal/llm"
	"github.com/conclave-ai/conclave/internal/models"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1/messages"
	apiVersion     = "2023-06-01"
)

// Provider calls the Anthropic Messages API.
type Provider struct {
	id         string
	apiKey     string
	baseURL    string
	modelInfos []models.ModelInfo
	httpClient *http.Client
	retry      llm.RetryConfig
}

// New creates an Anthropic provider serving the given models.
func New(id, apiKey, baseURL string, infos []models.ModelInfo) *Provider {
	if id == "" {
		id = "anthropic"
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
	Model         string       `json:"model"`
	MaxTokens     int          `json:"max_tokens"`
	Temperature   float64      `json:"temperature,omitempty"`
	StopSequences []string     `json:"stop_sequences,omitempty"`
	System        string       `json:"system,omitempty"`
	Messages      []apiMessage `json:"messages"`
	Tools         []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type apiResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		ID    string          `json:"id,omitempty"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	} `json:"content"`
	StopReason *string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
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

	apiReq := p.convertRequest(req)
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

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

	return p.convertResponse(req, &apiResp, time.Since(start)), nil
}

func (p *Provider) convertRequest(req *models.Request) *apiRequest {
	out := &apiRequest{
		Model:         req.ModelID,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		StopSequences: req.StopSequences,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		out.Messages = append(out.Messages, apiMessage{Role: string(msg.Role), Content: msg.Content})
	}
	// The Messages API has no native JSON mode; instruct via system prompt
	// and leave defensive parsing to the caller.
	if req.ResponseFormat == models.ResponseFormatJSON {
		system = append(system, "Respond with a single valid JSON value and nothing else. No prose, no code fences.")
	}
	out.System = strings.Join(system, "\n\n")

	for _, tool := range req.Tools {
		schema := tool.Schema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out.Tools = append(out.Tools, apiTool{Name: tool.Name, Description: tool.Description, InputSchema: schema})
	}
	return out
}

func (p *Provider) convertResponse(req *models.Request, apiResp *apiResponse, latency time.Duration) *models.ModelResponse {
	resp := &models.ModelResponse{
		Usage: models.Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
		},
		LatencyMs: latency.Milliseconds(),
	}
	if apiResp.StopReason != nil {
		resp.FinishReason = *apiResp.StopReason
	}
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	for _, info := range p.modelInfos {
		if info.ModelID == req.ModelID {
			resp.ModelInfo = info
			break
		}
	}
	return resp
}

// HealthCheck implements llm.Provider. A missing key fails fast without a
// network round trip.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return &llm.ProviderError{Provider: p.id, Kind: llm.ErrKindAuth, Message: "no API key configured"}
	}
	return ctx.Err()
}

func classifyHTTPError(provider string, resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindAuth, Message: msg}
	case http.StatusNotFound:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindModelNotFound, Message: msg}
	case http.StatusTooManyRequests:
		return &llm.ProviderError{
			Provider:   provider,
			Kind:       llm.ErrKindRateLimit,
			Message:    msg,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindTimeout, Message: msg}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindOverloaded, Message: msg}
	default:
		return &llm.ProviderError{Provider: provider, Kind: llm.ErrKindAPI, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
