// Package mcpserver exposes the search bridge over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pplx-mcp/internal/domain"
	"pplx-mcp/internal/infra/config"
	"pplx-mcp/internal/infra/middleware"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

const instructions = "Use web_search for questions that need current information from the web. " +
	"Answers come with numbered sources."

// Bridge is the capability surface served over MCP.
type Bridge interface {
	ListCapabilities() []domain.ToolSchema
	Invoke(ctx context.Context, name string, args map[string]any) (*domain.ToolResult, error)
}

// Server adapts a Bridge to an MCP server.
type Server struct {
	bridge Bridge
	cfg    config.ServerConfig
	mcp    *server.MCPServer
	known  map[string]bool
	logger *slog.Logger
}

// New builds the MCP server and registers every capability the bridge lists.
func New(bridge Bridge, cfg config.ServerConfig, logger *slog.Logger) *Server {
	s := &Server{
		bridge: bridge,
		cfg:    cfg,
		known:  make(map[string]bool),
		logger: logger,
	}

	hooks := &server.Hooks{}
	hooks.AddOnRequestInitialization(s.rejectUnknownTools)

	// Middlewares run in option order, outermost first.
	s.mcp = server.NewMCPServer(cfg.Name, cfg.Version,
		server.WithToolCapabilities(false),
		server.WithInstructions(instructions),
		server.WithHooks(hooks),
		server.WithToolHandlerMiddleware(errorCodes),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(s.logCalls),
	)

	for _, schema := range bridge.ListCapabilities() {
		s.known[schema.Name] = true
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters),
			s.handleCall,
		)
	}
	return s
}

// MCPServer returns the underlying server, e.g. for an in-process client.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve runs the configured transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	switch s.cfg.Transport {
	case "http":
		return s.ServeHTTP(ctx)
	case "stdio", "":
		return s.ServeStdio(ctx, os.Stdin, os.Stdout)
	default:
		return fmt.Errorf("unsupported transport %q", s.cfg.Transport)
	}
}

// ServeStdio speaks newline-delimited JSON-RPC over in and out.
// It returns nil when ctx is cancelled or in reaches EOF.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("mcp server listening", "transport", "stdio", "name", s.cfg.Name, "version", s.cfg.Version)
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("stdio transport: %w", err)
}

// ServeHTTP serves streamable HTTP on cfg.Addr + cfg.EndpointPath and shuts
// down when ctx is cancelled. GET /healthz answers 200 for liveness probes.
func (s *Server) ServeHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.EndpointPath, server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(s.cfg.EndpointPath)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpSrv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           middleware.Chain(mux, middleware.AccessLog(s.logger), middleware.SecurityHeaders),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening", "transport", "http", "addr", s.cfg.Addr, "path", s.cfg.EndpointPath)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http transport: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http transport: %w", err)
	}
	s.logger.Info("mcp server stopped", "transport", "http")
	return nil
}

func (s *Server) handleCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.bridge.Invoke(ctx, req.Params.Name, req.GetArguments())
	if err != nil {
		return nil, err
	}

	content := make([]mcp.Content, 0, len(result.Content))
	for _, block := range result.Content {
		content = append(content, mcp.NewTextContent(block))
	}
	return &mcp.CallToolResult{Content: content}, nil
}

// errorCodes prefixes handler errors with their error code so hosts can
// tell the kinds apart, e.g. "INVALID_INPUT: ...". Anything unclassified,
// recovered panics included, is reported as INTERNAL_ERROR.
func errorCodes(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := next(ctx, req)
		if err != nil {
			return nil, protocolError(err)
		}
		return result, nil
	}
}

// rejectUnknownTools answers tools/call for an unregistered name with an
// UNKNOWN_CAPABILITY error before the server looks the tool up.
func (s *Server) rejectUnknownTools(_ context.Context, _ any, message any) error {
	raw, ok := message.(json.RawMessage)
	if !ok {
		return nil
	}
	var call struct {
		Method string `json:"method"`
		Params struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &call); err != nil || call.Method != string(mcp.MethodToolsCall) {
		return nil
	}
	if s.known[call.Params.Name] {
		return nil
	}
	s.logger.Warn("mcp tool call rejected", "tool", call.Params.Name, "code", domain.CodeUnknownCapability)
	return protocolError(domain.NewDomainError("mcp.CallTool", domain.ErrUnknownCapability, fmt.Sprintf("%q", call.Params.Name)))
}

func protocolError(err error) error {
	err = domain.Classify("mcp.CallTool", err)
	return fmt.Errorf("%s: %w", domain.ErrorCodeOf(err), err)
}

func (s *Server) logCalls(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := next(ctx, req)
		s.logger.Debug("mcp tool call",
			"tool", req.Params.Name,
			"duration", time.Since(start),
			"ok", err == nil,
		)
		return result, err
	}
}
