package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"pplx-mcp/internal/adapter/perplexity"
	"pplx-mcp/internal/domain"
	"pplx-mcp/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const upstreamCheckTimeout = 10 * time.Second

// runDoctor executes all health checks and reports results to out.
func runDoctor(args []string, out io.Writer) error {
	cfgPath := configPath(args)

	// Some checks still run when the config does not load.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "API key", Fn: checkAPIKey},
		{Name: "Models", Fn: checkModels},
		{Name: "Upstream", Fn: checkUpstream},
		{Name: "Transport", Fn: checkTransport},
	}

	fmt.Fprintln(out, "pplx-mcp doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name
		results = append(results, result)

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}
	}

	pass, warn, fail := tally(results)
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn == 0 {
		fmt.Fprintln(out, "\nAll checks passed! pplx-mcp is ready to serve.")
	}
	return nil
}

func tally(results []CheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded.
// A missing file is only a warning because defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Fix %s or the PPLXMCP_* environment variables", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if err := cfg.RequireAPIKey(); err != nil {
		fix := "Set PERPLEXITY_API_KEY in the environment or .env file"
		if errors.Is(err, domain.ErrDecryption) || strings.Contains(err.Error(), "PPLXMCP_CONFIG_KEY") {
			fix = "Set PPLXMCP_CONFIG_KEY to the passphrase used with 'pplx-mcp encrypt'"
		}
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: fix}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: "API key configured (" + maskKey(cfg.Perplexity.APIKey) + ")",
	}
}

// maskKey keeps only the last four characters of key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func checkModels(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	p := cfg.Perplexity
	if !p.StrictModels {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("strict_models is off, any model name is forwarded (default %s)", p.DefaultModel),
		}
	}
	if !slices.Contains(p.Models, p.DefaultModel) {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default model %q is not in perplexity.models", p.DefaultModel),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("default %s, allowed: %s", p.DefaultModel, strings.Join(p.Models, ", ")),
	}
}

// checkUpstream verifies the Perplexity API host answers HTTP at all. Any
// status counts as reachable; authentication is not exercised.
func checkUpstream(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	endpoint := strings.TrimRight(cfg.Perplexity.BaseURL, "/")

	ctx, cancel := context.WithTimeout(context.Background(), upstreamCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	start := time.Now()
	resp, err := perplexity.NewHTTPClient(cfg.Perplexity).Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection, proxy and firewall settings",
		}
	}
	resp.Body.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", endpoint, latency.Milliseconds()),
	}
}

// checkTransport reports the transport and, for http, whether the listen
// address is free.
func checkTransport(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	s := cfg.Server
	if s.Transport != "http" {
		return CheckResult{Status: StatusPass, Message: "stdio"}
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("http on %s: address not available: %v", s.Addr, err),
			Fix:     "Stop the process using the port or change server.addr",
		}
	}
	ln.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("http on %s%s", s.Addr, s.EndpointPath),
	}
}
