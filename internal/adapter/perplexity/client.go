// Package perplexity talks to the Perplexity chat-completions API.
package perplexity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"pplx-mcp/internal/domain"
	"pplx-mcp/internal/infra/config"
	"pplx-mcp/internal/infra/tracer"
)

const searchOp = "perplexity.Search"

// Client implements domain.Searcher against the Perplexity API.
type Client struct {
	apiKey       string
	baseURL      string
	systemPrompt string
	client       *http.Client
	logger       *slog.Logger
}

// New creates a client with a pooled transport. The API key is taken from
// cfg once; nothing is read from the environment afterwards.
func New(cfg config.PerplexityConfig, logger *slog.Logger) *Client {
	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		systemPrompt: cfg.SystemPrompt,
		client:       NewHTTPClient(cfg),
		logger:       logger,
	}
}

// Name implements domain.Searcher.
func (c *Client) Name() string { return "perplexity" }

// Search implements domain.Searcher. It issues exactly one POST to
// /chat/completions and never retries.
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchAnswer, error) {
	ctx, span := tracer.StartSpan(ctx, "perplexity.search",
		trace.WithAttributes(
			tracer.StringAttr("perplexity.model", req.Model),
			tracer.Float64Attr("perplexity.temperature", req.Temperature),
		),
	)
	defer span.End()

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(searchOp, domain.ErrInternal, fmt.Sprintf("marshal request: %v", err))
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}

	respBody, err := doJSONRequest(ctx, c.client, c.baseURL+"/chat/completions", body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.Classify(searchOp, err)
	}

	resp, err := decodeResponse(respBody)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(searchOp, domain.ErrInternal, err.Error())
	}
	if len(resp.Choices) == 0 {
		err := domain.NewDomainError(searchOp, domain.ErrInternal, "response has no choices")
		tracer.RecordError(span, err)
		return nil, err
	}

	answer := fromChatResponse(resp)
	span.SetAttributes(
		tracer.IntAttr("perplexity.prompt_tokens", answer.Usage.PromptTokens),
		tracer.IntAttr("perplexity.completion_tokens", answer.Usage.CompletionTokens),
		tracer.IntAttr("perplexity.citations", len(answer.Citations)),
	)
	tracer.SetOK(span)

	c.logger.Debug("perplexity search completed",
		"model", answer.Model,
		"tokens", answer.Usage.TotalTokens,
		"citations", len(answer.Citations),
	)
	return answer, nil
}

func (c *Client) buildRequest(req domain.SearchRequest) chatRequest {
	return chatRequest{
		Model: req.Model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: c.systemPrompt},
			{Role: domain.RoleUser, Content: req.Query},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func fromChatResponse(resp *chatResponse) *domain.SearchAnswer {
	answer := &domain.SearchAnswer{
		ID:        resp.ID,
		Model:     resp.Model,
		Content:   resp.Choices[0].Message.Content,
		Citations: resp.Citations,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if resp.Created > 0 {
		answer.CreatedAt = time.Unix(resp.Created, 0)
	}
	return answer
}

var _ domain.Searcher = (*Client)(nil)
