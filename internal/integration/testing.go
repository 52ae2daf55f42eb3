// Package integration holds tests that talk to the live Perplexity API.
// They only build with -tags integration and skip without PERPLEXITY_API_KEY.
package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	cfg := &Config{
		APIKey:      os.Getenv("PERPLEXITY_API_KEY"),
		BaseURL:     os.Getenv("PERPLEXITY_BASE_URL"),
		Model:       os.Getenv("PPLXMCP_INTEGRATION_MODEL"),
		TestTimeout: 60 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	return cfg
}

// SkipIfNoAPIKey skips the test if the API key is not set
func SkipIfNoAPIKey(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.APIKey == "" {
		t.Skip("Skipping integration test: PERPLEXITY_API_KEY not set")
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
