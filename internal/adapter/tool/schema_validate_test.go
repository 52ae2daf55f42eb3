package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pplx-mcp/internal/domain"
)

// stubTool is a minimal tool for testing schema validation.
type stubTool struct {
	name   string
	schema json.RawMessage
	result *domain.ToolResult
	calls  int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        s.name,
		Description: "stub",
		Parameters:  s.schema,
	}
}
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	s.calls++
	return s.result, nil
}

const stubSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"temperature": {"type": "number", "minimum": 0, "maximum": 1},
		"max_tokens": {"type": "integer", "minimum": 1}
	},
	"required": ["query"]
}`

func newStub() *stubTool {
	return &stubTool{name: "stub", schema: json.RawMessage(stubSchema), result: TextResult("ok")}
}

func TestSchemaValidation_ValidParams(t *testing.T) {
	inner := newStub()
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{"query":"hi","temperature":0.5,"max_tokens":10}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, result.Content)
	assert.Equal(t, 1, inner.calls)
}

func TestSchemaValidation_Violations(t *testing.T) {
	tests := []struct {
		name      string
		params    string
		wantField string
	}{
		{"missing query", `{}`, "arguments: missing properties"},
		{"empty query", `{"query":""}`, "query: length must be >= 1"},
		{"query wrong type", `{"query":42}`, "query: expected string"},
		{"temperature too high", `{"query":"q","temperature":1.5}`, "temperature: must be <= 1"},
		{"temperature negative", `{"query":"q","temperature":-1}`, "temperature: must be >= 0"},
		{"max_tokens fractional", `{"query":"q","max_tokens":2.5}`, "max_tokens: expected integer"},
		{"max_tokens zero", `{"query":"q","max_tokens":0}`, "max_tokens: must be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := newStub()
			wrapped, err := WithSchemaValidation(inner)
			require.NoError(t, err)

			result, err := wrapped.Execute(context.Background(), json.RawMessage(tt.params))
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.wantField)
			assert.Equal(t, 0, inner.calls, "inner tool must not run")
		})
	}
}

func TestSchemaValidation_InvalidJSON(t *testing.T) {
	inner := newStub()
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)

	_, err = wrapped.Execute(context.Background(), json.RawMessage(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestSchemaValidation_NoSchema(t *testing.T) {
	inner := &stubTool{name: "bare", result: TextResult("ok")}
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)
	assert.Same(t, inner, wrapped)
}

func TestSchemaValidation_BadSchema(t *testing.T) {
	inner := &stubTool{name: "bad", schema: json.RawMessage(`{"type": 12}`)}
	_, err := WithSchemaValidation(inner)
	assert.Error(t, err)
}

func TestSchemaValidation_Delegates(t *testing.T) {
	inner := newStub()
	wrapped, err := WithSchemaValidation(inner)
	require.NoError(t, err)
	assert.Equal(t, "stub", wrapped.Name())
	assert.Equal(t, "stub", wrapped.Description())
	assert.JSONEq(t, stubSchema, string(wrapped.Schema().Parameters))
}
