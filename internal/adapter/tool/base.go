package tool

import (
	"strings"

	"pplx-mcp/internal/domain"
)

// TextResult creates a ToolResult with a single text block.
func TextResult(s string) *domain.ToolResult {
	return &domain.ToolResult{Content: []string{s}}
}

// BlocksResult creates a ToolResult with one text block per argument.
func BlocksResult(blocks ...string) *domain.ToolResult {
	return &domain.ToolResult{Content: blocks}
}

func joinComma(ss []string) string {
	return strings.Join(ss, ", ")
}
