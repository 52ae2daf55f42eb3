package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a capability advertised to the host.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the outcome of a successful tool execution: an ordered
// sequence of text blocks.
type ToolResult struct {
	Content []string `json:"content"`
}

// Tool is the interface every capability must implement.
// Execute returns an error wrapping one of the invocation error kinds on
// failure; a failed execution yields no content.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup and listing.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
