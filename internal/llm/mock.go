package llm

import (
	"context"
	"sync"
	"time"

	"github.com/conclave-ai/conclave/internal/models"
)

// MockProvider is a test-only provider returning canned responses keyed by
// modelId. Responses are consumed as a FIFO script; the last entry repeats
// once the script is exhausted. Every call is recorded for assertions.
type MockProvider struct {
	id string

	mu      sync.Mutex
	models  []models.ModelInfo
	scripts map[string][]mockReply
	funcs   map[string]func(req *models.Request) (string, error)
	calls   []MockCall
}

type mockReply struct {
	content string
	err     error
}

// MockCall records one Send invocation against the mock.
type MockCall struct {
	ModelID        string
	Messages       []models.Message
	ResponseFormat string
	Time           time.Time
}

// NewMockProvider creates a mock provider with the given id.
func NewMockProvider(id string) *MockProvider {
	return &MockProvider{
		id:      id,
		scripts: make(map[string][]mockReply),
		funcs:   make(map[string]func(req *models.Request) (string, error)),
	}
}

// AddModel registers a model on the mock. Cost flags drive the engine's
// proposer/challenger selection, so tests set them deliberately.
func (m *MockProvider) AddModel(info models.ModelInfo) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	info.ProviderID = m.id
	m.models = append(m.models, info)
	return m
}

// Stub queues one or more responses for a model.
func (m *MockProvider) Stub(modelID string, contents ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		m.scripts[modelID] = append(m.scripts[modelID], mockReply{content: c})
	}
	return m
}

// StubError queues a failure for a model.
func (m *MockProvider) StubError(modelID string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[modelID] = append(m.scripts[modelID], mockReply{err: err})
	return m
}

// StubFunc routes a model's calls through fn, overriding any script.
func (m *MockProvider) StubFunc(modelID string, fn func(req *models.Request) (string, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[modelID] = fn
	return m
}

// Calls returns a copy of all recorded calls.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many Send calls the model has received.
func (m *MockProvider) CallCount(modelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.ModelID == modelID {
			n++
		}
	}
	return n
}

// ProviderID implements Provider.
func (m *MockProvider) ProviderID() string { return m.id }

// ListModels implements Provider.
func (m *MockProvider) ListModels() []models.ModelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ModelInfo, len(m.models))
	copy(out, m.models)
	return out
}

// Send implements Provider.
func (m *MockProvider) Send(ctx context.Context, req *models.Request) (*models.ModelResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{
		ModelID:        req.ModelID,
		Messages:       append([]models.Message(nil), req.Messages...),
		ResponseFormat: req.ResponseFormat,
		Time:           time.Now(),
	})

	var info models.ModelInfo
	found := false
	for _, mi := range m.models {
		if mi.ModelID == req.ModelID {
			info = mi
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return nil, &ProviderError{Provider: m.id, Kind: ErrKindModelNotFound, Message: req.ModelID}
	}

	if fn, ok := m.funcs[req.ModelID]; ok {
		m.mu.Unlock()
		content, err := fn(req)
		if err != nil {
			return nil, err
		}
		return m.response(info, content), nil
	}

	script := m.scripts[req.ModelID]
	if len(script) == 0 {
		m.mu.Unlock()
		return nil, &ProviderError{Provider: m.id, Kind: ErrKindAPI, Message: "no scripted response for " + req.ModelID}
	}
	reply := script[0]
	if len(script) > 1 {
		m.scripts[req.ModelID] = script[1:]
	}
	m.mu.Unlock()

	if reply.err != nil {
		return nil, reply.err
	}
	return m.response(info, reply.content), nil
}

func (m *MockProvider) response(info models.ModelInfo, content string) *models.ModelResponse {
	return &models.ModelResponse{
		Content:      content,
		ModelInfo:    info,
		Usage:        models.Usage{InputTokens: 100, OutputTokens: len(content)/4 + 1},
		FinishReason: "stop",
		LatencyMs:    1,
	}
}

// HealthCheck implements Provider.
func (m *MockProvider) HealthCheck(ctx context.Context) error { return ctx.Err() }
