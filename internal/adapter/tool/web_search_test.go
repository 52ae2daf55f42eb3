package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pplx-mcp/internal/domain"
)

// mockSearchBackend implements SearchBackend for testing.
type mockSearchBackend struct {
	mu       sync.Mutex
	answer   *domain.SearchAnswer
	err      error
	requests []domain.SearchRequest
}

func (m *mockSearchBackend) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

func (m *mockSearchBackend) Name() string { return "mock" }

func (m *mockSearchBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func newMockBackend(content string, citations ...string) *mockSearchBackend {
	return &mockSearchBackend{answer: &domain.SearchAnswer{Model: "sonar", Content: content, Citations: citations}}
}

func testOptions() WebSearchOptions {
	return WebSearchOptions{
		Models:             []string{"sonar", "sonar-pro", "sonar-reasoning"},
		DefaultModel:       "sonar",
		DefaultTemperature: 0.7,
		StrictModels:       true,
	}
}

// registered returns web_search as the host sees it: wrapped by the registry.
func registered(t *testing.T, backend SearchBackend, opts WebSearchOptions) domain.Tool {
	t.Helper()
	reg := NewRegistry(newTestLogger())
	require.NoError(t, reg.Register(NewWebSearchTool(backend, opts, newTestLogger())))
	tool, err := reg.Get("web_search")
	require.NoError(t, err)
	return tool
}

func TestWebSearchToolName(t *testing.T) {
	ws := NewWebSearchTool(newMockBackend(""), testOptions(), newTestLogger())
	assert.Equal(t, "web_search", ws.Name())
	assert.NotEmpty(t, ws.Description())
}

func TestWebSearchToolSchema(t *testing.T) {
	ws := NewWebSearchTool(newMockBackend(""), testOptions(), newTestLogger())
	schema := ws.Schema()
	assert.Equal(t, "web_search", schema.Name)

	var params struct {
		Type       string                    `json:"type"`
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(schema.Parameters, &params))

	assert.Equal(t, "object", params.Type)
	assert.Equal(t, []string{"query"}, params.Required)
	assert.Equal(t, "string", params.Properties["query"]["type"])
	assert.Equal(t, []any{"sonar", "sonar-pro", "sonar-reasoning"}, params.Properties["model"]["enum"])
	assert.Equal(t, "sonar", params.Properties["model"]["default"])
	assert.Equal(t, 0.7, params.Properties["temperature"]["default"])
	assert.Equal(t, 0.0, params.Properties["temperature"]["minimum"])
	assert.Equal(t, 1.0, params.Properties["temperature"]["maximum"])
	assert.Equal(t, "integer", params.Properties["max_tokens"]["type"])
}

func TestWebSearchToolSchemaPermissive(t *testing.T) {
	opts := testOptions()
	opts.StrictModels = false
	ws := NewWebSearchTool(newMockBackend(""), opts, newTestLogger())

	var params struct {
		Properties map[string]map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(ws.Schema().Parameters, &params))
	_, hasEnum := params.Properties["model"]["enum"]
	assert.False(t, hasEnum)
	assert.NotNil(t, params.Properties["model"]["examples"])
}

func TestWebSearchCapitalOfFrance(t *testing.T) {
	backend := newMockBackend("Paris.", "https://example.com/a")
	tool := registered(t, backend, testOptions())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"What is the capital of France?"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris.", "\n\nSources:\n1. https://example.com/a"}, result.Content)

	require.Equal(t, 1, backend.callCount())
	req := backend.requests[0]
	assert.Equal(t, "What is the capital of France?", req.Query)
	assert.Equal(t, "sonar", req.Model)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 0, req.MaxTokens)
}

func TestWebSearchNoCitationsSingleBlock(t *testing.T) {
	tool := registered(t, newMockBackend("Just text."), testOptions())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Just text."}, result.Content)
}

func TestWebSearchManyCitations(t *testing.T) {
	tool := registered(t, newMockBackend("Answer", "https://a.example", "https://b.example", "https://c.example"), testOptions())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)
	require.Len(t, result.Content, 2)
	assert.True(t, strings.HasPrefix(result.Content[1], "\n\nSources:"))
	assert.Equal(t, "\n\nSources:\n1. https://a.example\n2. https://b.example\n3. https://c.example", result.Content[1])
}

func TestWebSearchPassesParameters(t *testing.T) {
	backend := newMockBackend("ok")
	tool := registered(t, backend, testOptions())

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q","model":"sonar-pro","temperature":0,"max_tokens":256}`))
	require.NoError(t, err)

	require.Equal(t, 1, backend.callCount())
	req := backend.requests[0]
	assert.Equal(t, "sonar-pro", req.Model)
	assert.Equal(t, 0.0, req.Temperature, "explicit zero temperature must not be replaced by the default")
	assert.Equal(t, 256, req.MaxTokens)
}

func TestWebSearchInvalidInputMakesNoCalls(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		wantMsg string
	}{
		{"missing query", `{}`, "query"},
		{"empty query", `{"query":""}`, "query"},
		{"whitespace query", `{"query":"   "}`, "query: must not be empty"},
		{"temperature above 1", `{"query":"q","temperature":1.2}`, "temperature"},
		{"temperature below 0", `{"query":"q","temperature":-0.5}`, "temperature"},
		{"unknown model", `{"query":"q","model":"gpt-4o"}`, "model"},
		{"max_tokens zero", `{"query":"q","max_tokens":0}`, "max_tokens"},
		{"max_tokens negative", `{"query":"q","max_tokens":-3}`, "max_tokens"},
		{"max_tokens not integer", `{"query":"q","max_tokens":1.5}`, "max_tokens"},
		{"query not a string", `{"query":["a"]}`, "query"},
		{"not an object", `"just a string"`, "arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newMockBackend("never")
			tool := registered(t, backend, testOptions())

			result, err := tool.Execute(context.Background(), json.RawMessage(tt.params))
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, 0, backend.callCount())
		})
	}
}

func TestWebSearchUnwrappedValidation(t *testing.T) {
	// The tool enforces its own constraints even without the schema wrapper.
	backend := newMockBackend("never")
	ws := NewWebSearchTool(backend, testOptions(), newTestLogger())

	for _, params := range []string{`{"query":""}`, `{"query":"q","temperature":2}`, `{"query":"q","model":"x"}`, `{"query":"q","max_tokens":0}`} {
		_, err := ws.Execute(context.Background(), json.RawMessage(params))
		require.Error(t, err, params)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), params)
	}
	assert.Equal(t, 0, backend.callCount())
}

func TestWebSearchPermissiveModels(t *testing.T) {
	opts := testOptions()
	opts.StrictModels = false
	backend := newMockBackend("ok")
	tool := registered(t, backend, opts)

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q","model":"sonar-next"}`))
	require.NoError(t, err)
	require.Equal(t, 1, backend.callCount())
	assert.Equal(t, "sonar-next", backend.requests[0].Model)
}

func TestWebSearchUpstreamError(t *testing.T) {
	backend := &mockSearchBackend{err: &domain.UpstreamError{StatusCode: 429, Body: `{"error":"rate limited"}`}}
	tool := registered(t, backend, testOptions())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.Error(t, err)
	assert.Nil(t, result)

	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, `{"error":"rate limited"}`, ue.Body)
	assert.Equal(t, 1, backend.callCount())
}

func TestWebSearchBackendFailureIsInternal(t *testing.T) {
	backend := &mockSearchBackend{err: errors.New("dial tcp: connection refused")}
	tool := registered(t, backend, testOptions())

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInternal))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWebSearchDefaultModelFallback(t *testing.T) {
	backend := newMockBackend("ok")
	ws := NewWebSearchTool(backend, WebSearchOptions{DefaultTemperature: 0.7}, newTestLogger())

	_, err := ws.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultModel, backend.requests[0].Model)
}

func TestFormatSources(t *testing.T) {
	assert.Equal(t, "\n\nSources:\n1. https://example.com/a", FormatSources([]string{"https://example.com/a"}))
	assert.Equal(t, "\n\nSources:\n1. a\n2. b", FormatSources([]string{"a", "b"}))
}
