package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"pplx-mcp/internal/adapter/mcpserver"
	"pplx-mcp/internal/infra/logger"
)

// searchArgs holds the parsed arguments of the search command.
type searchArgs struct {
	Query       string
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// arguments returns the web_search tool arguments for a.
func (a searchArgs) arguments() map[string]any {
	args := map[string]any{"query": a.Query}
	if a.Model != "" {
		args["model"] = a.Model
	}
	if a.Temperature != nil {
		args["temperature"] = *a.Temperature
	}
	if a.MaxTokens != nil {
		args["max_tokens"] = *a.MaxTokens
	}
	return args
}

// parseSearchArgs extracts the query and --model, --temperature, --max-tokens
// from args. Positional words are joined into the query.
func parseSearchArgs(args []string) (searchArgs, error) {
	var (
		out   searchArgs
		words []string
	)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		if !strings.HasPrefix(name, "--") {
			words = append(words, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return searchArgs{}, fmt.Errorf("flag %s needs a value", name)
			}
			value = args[i+1]
			i++
		}

		switch name {
		case "--config":
		case "--model":
			out.Model = value
		case "--temperature":
			t, err := cast.ToFloat64E(value)
			if err != nil {
				return searchArgs{}, fmt.Errorf("--temperature: %w", err)
			}
			out.Temperature = &t
		case "--max-tokens":
			n, err := cast.ToIntE(value)
			if err != nil {
				return searchArgs{}, fmt.Errorf("--max-tokens: %w", err)
			}
			out.MaxTokens = &n
		default:
			return searchArgs{}, fmt.Errorf("unknown flag %s", name)
		}
	}

	out.Query = strings.TrimSpace(strings.Join(words, " "))
	if out.Query == "" {
		return searchArgs{}, fmt.Errorf("usage: pplx-mcp search <query> [--model NAME] [--temperature T] [--max-tokens N]")
	}
	return out, nil
}

func runSearch(ctx context.Context, args []string, out io.Writer) error {
	sa, err := parseSearchArgs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath(args))
	if err != nil {
		return err
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	srv, err := buildServer(cfg, log)
	if err != nil {
		return err
	}
	return searchInProcess(ctx, srv, sa, out)
}

// searchInProcess calls web_search through an in-process MCP client so the
// command exercises the same path a host does.
func searchInProcess(ctx context.Context, srv *mcpserver.Server, sa searchArgs, out io.Writer) error {
	c, err := client.NewInProcessClient(srv.MCPServer())
	if err != nil {
		return fmt.Errorf("mcp client: %w", err)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcp client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "pplx-mcp-cli", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initRequest); err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = "web_search"
	req.Params.Arguments = sa.arguments()
	res, err := c.CallTool(ctx, req)
	if err != nil {
		return err
	}

	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			if _, err := io.WriteString(out, text.Text); err != nil {
				return err
			}
		}
	}
	_, err = io.WriteString(out, "\n")
	return err
}
