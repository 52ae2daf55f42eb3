package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"pplx-mcp/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets callers match validation failures with errors.Is(err, domain.ErrConfigLoad).
func (v *ValidationError) Unwrap() error { return domain.ErrConfigLoad }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validatePerplexity(cfg, ve)
	validateServer(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validatePerplexity(cfg *Config, ve *ValidationError) {
	p := cfg.Perplexity

	u, err := url.Parse(p.BaseURL)
	switch {
	case p.BaseURL == "":
		ve.Add("perplexity.base_url must not be empty")
	case err != nil:
		ve.Add("perplexity.base_url is invalid: %v", err)
	case u.Scheme != "http" && u.Scheme != "https":
		ve.Add("perplexity.base_url scheme must be http or https")
	case u.Host == "":
		ve.Add("perplexity.base_url is missing a host")
	}

	if p.DefaultModel == "" {
		ve.Add("perplexity.default_model must not be empty")
	}
	if p.StrictModels {
		if len(p.Models) == 0 {
			ve.Add("perplexity.models must not be empty when strict_models is enabled")
		} else if p.DefaultModel != "" && !slices.Contains(p.Models, p.DefaultModel) {
			ve.Add("perplexity.default_model %q is not listed in perplexity.models", p.DefaultModel)
		}
	}
	if p.DefaultTemperature < 0 || p.DefaultTemperature > 1 {
		ve.Add("perplexity.default_temperature must be between 0 and 1")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		ve.Add("perplexity.system_prompt must not be empty")
	}
	if p.ConnTimeout < 0 {
		ve.Add("perplexity.conn_timeout must be >= 0")
	}
	if p.RespTimeout < 0 {
		ve.Add("perplexity.resp_timeout must be >= 0")
	}
}

var validTransports = map[string]bool{
	"stdio": true,
	"http":  true,
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.Name == "" {
		ve.Add("server.name must not be empty")
	}
	if s.Version == "" {
		ve.Add("server.version must not be empty")
	}
	if !validTransports[s.Transport] {
		ve.Add("server.transport %q is invalid (want: stdio, http)", s.Transport)
	}
	if s.Transport == "http" {
		if _, _, err := net.SplitHostPort(s.Addr); err != nil {
			ve.Add("server.addr %q is invalid: %v", s.Addr, err)
		}
		if !strings.HasPrefix(s.EndpointPath, "/") {
			ve.Add("server.endpoint_path must start with /")
		}
	}
	if s.Transport == "stdio" && strings.EqualFold(cfg.Logger.Output, "stdout") {
		ve.Add("logger.output must not be stdout when server.transport is stdio")
	}
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
}

var validExporters = map[string]bool{
	"":       true,
	"noop":   true,
	"stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
