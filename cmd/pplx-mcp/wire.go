package main

import (
	"fmt"
	"log/slog"

	"pplx-mcp/internal/adapter/mcpserver"
	"pplx-mcp/internal/adapter/perplexity"
	"pplx-mcp/internal/adapter/tool"
	"pplx-mcp/internal/infra/config"
	"pplx-mcp/internal/usecase"
)

// buildServer wires the Perplexity client, the tool registry and the bridge
// into an MCP server.
func buildServer(cfg *config.Config, log *slog.Logger) (*mcpserver.Server, error) {
	client := perplexity.New(cfg.Perplexity, log)

	registry := tool.NewRegistry(log)
	webSearch := tool.NewWebSearchTool(client, tool.WebSearchOptions{
		Models:             cfg.Perplexity.Models,
		DefaultModel:       cfg.Perplexity.DefaultModel,
		DefaultTemperature: cfg.Perplexity.DefaultTemperature,
		StrictModels:       cfg.Perplexity.StrictModels,
	}, log)
	if err := registry.Register(webSearch); err != nil {
		return nil, fmt.Errorf("register %s: %w", webSearch.Name(), err)
	}

	bridge := usecase.NewSearchBridge(registry, log)
	return mcpserver.New(bridge, cfg.Server, log), nil
}
