package domain

import (
	"context"
	"time"
)

// Message roles understood by the search API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "sonar"

// DefaultTemperature is used when a request sets no temperature.
const DefaultTemperature = 0.7

// Message is one entry of the conversation sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchRequest is a validated web search. It is built once per invocation
// and not modified afterwards.
type SearchRequest struct {
	Query       string
	Model       string
	Temperature float64
	MaxTokens   int // 0 = let the API decide
}

// Usage reports token accounting for a completed search.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// SearchAnswer is the normalized answer to a SearchRequest.
type SearchAnswer struct {
	ID        string
	Model     string
	Content   string
	Citations []string
	Usage     Usage
	CreatedAt time.Time
}

// Searcher answers search requests against a remote API.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchAnswer, error)
	// Name returns the backend identifier (e.g. "perplexity").
	Name() string
}
