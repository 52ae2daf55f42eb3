package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"pplx-mcp/internal/domain"
	"pplx-mcp/internal/infra/tracer"
)

// WebSearchOptions configures the defaults and model policy of WebSearchTool.
type WebSearchOptions struct {
	Models             []string
	DefaultModel       string
	DefaultTemperature float64
	StrictModels       bool // reject models outside Models
}

// WebSearchTool answers questions through a SearchBackend and returns the
// answer with its sources.
type WebSearchTool struct {
	backend SearchBackend
	opts    WebSearchOptions
	schema  json.RawMessage
	logger  *slog.Logger
}

// NewWebSearchTool creates a web search tool backed by the given SearchBackend.
func NewWebSearchTool(backend SearchBackend, opts WebSearchOptions, logger *slog.Logger) *WebSearchTool {
	if opts.DefaultModel == "" {
		opts.DefaultModel = domain.DefaultModel
	}
	return &WebSearchTool{
		backend: backend,
		opts:    opts,
		schema:  buildWebSearchSchema(opts),
		logger:  logger,
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web with Perplexity AI and return an answer with numbered sources"
}

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.schema,
	}
}

type webSearchParams struct {
	Query       string   `json:"query"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search", t.logger, params,
		func(ctx context.Context, span trace.Span, p webSearchParams) (any, error) {
			req, err := t.buildRequest(p)
			if err != nil {
				return nil, err
			}

			span.SetAttributes(
				tracer.StringAttr("tool.model", req.Model),
				tracer.Float64Attr("tool.temperature", req.Temperature),
				tracer.IntAttr("tool.max_tokens", req.MaxTokens),
			)

			answer, err := t.backend.Search(ctx, req)
			if err != nil {
				return nil, err
			}

			t.logger.Debug("web search completed",
				"backend", t.backend.Name(),
				"model", answer.Model,
				"citations", len(answer.Citations),
			)
			return formatAnswer(answer), nil
		},
	)
}

// buildRequest applies defaults and validates p. No request is returned
// unless every field is acceptable.
func (t *WebSearchTool) buildRequest(p webSearchParams) (domain.SearchRequest, error) {
	req := domain.SearchRequest{
		Query:       p.Query,
		Model:       p.Model,
		Temperature: t.opts.DefaultTemperature,
	}
	if req.Model == "" {
		req.Model = t.opts.DefaultModel
	}
	if p.Temperature != nil {
		req.Temperature = *p.Temperature
	}

	checks := []error{
		RequireNonBlank("query", req.Query),
		ValidateFloatRange("temperature", req.Temperature, 0, 1),
	}
	if t.opts.StrictModels {
		checks = append(checks, ValidateEnum("model", req.Model, t.opts.Models...))
	}
	if p.MaxTokens != nil {
		checks = append(checks, ValidatePositive("max_tokens", *p.MaxTokens))
		req.MaxTokens = *p.MaxTokens
	}
	if err := ValidateAll(checks...); err != nil {
		return domain.SearchRequest{}, err
	}
	return req, nil
}

// buildWebSearchSchema renders the input schema. Strict mode enumerates the
// model set; otherwise the models are only offered as examples.
func buildWebSearchSchema(opts WebSearchOptions) json.RawMessage {
	model := map[string]any{
		"type":        "string",
		"description": "Perplexity model to use (default: " + opts.DefaultModel + ")",
		"default":     opts.DefaultModel,
	}
	if len(opts.Models) > 0 {
		if opts.StrictModels {
			model["enum"] = opts.Models
		} else {
			model["examples"] = opts.Models
		}
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The search query",
			},
			"model": model,
			"temperature": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     1,
				"default":     opts.DefaultTemperature,
				"description": "Sampling temperature between 0 and 1",
			},
			"max_tokens": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Maximum number of tokens in the answer (optional)",
			},
		},
		"required": []string{"query"},
	}

	data, err := json.Marshal(schema)
	if err != nil {
		// Only static values above; Marshal cannot fail.
		panic(err)
	}
	return data
}
