package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pplx-mcp/internal/infra/config"
	"pplx-mcp/internal/infra/logger"
	"pplx-mcp/internal/infra/tracer"
)

func main() {
	args := os.Args[1:]
	if len(args) >= 1 {
		switch args[0] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd, rest := splitCommand(args)
	var err error
	switch cmd {
	case "serve":
		if err = runServe(rest); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	case "search":
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err = runSearch(ctx, rest, os.Stdout)
		cancel()
	case "doctor":
		err = runDoctor(rest, os.Stdout)
	case "encrypt":
		err = runEncrypt(rest, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'pplx-mcp --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`pplx-mcp - Perplexity web search over the Model Context Protocol

USAGE:
    pplx-mcp [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the MCP server (default)
    search      Run a single web search and print the answer
                Flags: --model NAME, --temperature T, --max-tokens N
    doctor      Run health checks on your setup
    encrypt     Print an enc: value for the config file
                Reads the passphrase from PPLXMCP_CONFIG_KEY

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (optional)
    Environment: PERPLEXITY_API_KEY is required
                 PPLXMCP_* variables override config

EXAMPLES:
    pplx-mcp                                   # Serve MCP over stdio
    pplx-mcp --config /etc/pplx-mcp.yaml       # Serve with custom config
    pplx-mcp search "capital of France"        # One-shot query
    pplx-mcp search "rust async" --model sonar-pro --max-tokens 500
    PPLXMCP_CONFIG_KEY=secret pplx-mcp encrypt pplx-abc123`)
}

// valueFlags take the following argument as their value when not written
// as --flag=value.
var valueFlags = map[string]bool{
	"--config":      true,
	"--model":       true,
	"--temperature": true,
	"--max-tokens":  true,
}

// splitCommand returns the first positional argument as the command
// ("serve" when there is none) and the remaining arguments.
func splitCommand(args []string) (string, []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if valueFlags[arg] {
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		rest := make([]string, 0, len(args)-1)
		rest = append(rest, args[:i]...)
		rest = append(rest, args[i+1:]...)
		return arg, rest
	}
	return "serve", args
}

// configPath resolves the config file from --config, PPLXMCP_CONFIG, or the default.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("PPLXMCP_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// loadConfig loads the config file and refuses to continue without an API key.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func runServe(args []string) error {
	// 1. Config
	cfg, err := loadConfig(configPath(args))
	if err != nil {
		return err
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer, tracer.WithService(cfg.Server.Name, cfg.Server.Version))
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(shutdownCtx); err != nil {
			log.Error("tracer shutdown error", "error", err)
		}
	}()

	// 3. Bridge & MCP server
	srv, err := buildServer(cfg, log)
	if err != nil {
		return err
	}

	log.Info("pplx-mcp starting",
		"transport", cfg.Server.Transport,
		"default_model", cfg.Perplexity.DefaultModel,
		"strict_models", cfg.Perplexity.StrictModels,
	)

	// 4. Serve until SIGINT/SIGTERM or the host closes stdin.
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	log.Info("pplx-mcp stopped")
	return nil
}

func runEncrypt(args []string, out io.Writer) error {
	var value string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" {
			i++
			continue
		}
		if !strings.HasPrefix(args[i], "-") {
			value = args[i]
			break
		}
	}
	if value == "" {
		return fmt.Errorf("usage: pplx-mcp encrypt <value>")
	}

	passphrase := os.Getenv("PPLXMCP_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("PPLXMCP_CONFIG_KEY is not set")
	}

	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "enc:%s\n", enc)
	return err
}
