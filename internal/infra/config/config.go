package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"pplx-mcp/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Perplexity PerplexityConfig `yaml:"perplexity"`
	Server     ServerConfig     `yaml:"server"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	EnvFile    string           `yaml:"env_file"` // loaded before env overrides; "" disables
}

// PerplexityConfig holds upstream API settings.
type PerplexityConfig struct {
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	DefaultModel       string        `yaml:"default_model"`
	Models             []string      `yaml:"models"`
	StrictModels       bool          `yaml:"strict_models"` // reject models outside Models
	DefaultTemperature float64       `yaml:"default_temperature"`
	SystemPrompt       string        `yaml:"system_prompt"`
	ConnTimeout        time.Duration `yaml:"conn_timeout"`
	RespTimeout        time.Duration `yaml:"resp_timeout"` // 0 = no response timeout
	Pool               PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	Transport    string `yaml:"transport"` // "stdio" or "http"
	Addr         string `yaml:"addr"`
	EndpointPath string `yaml:"endpoint_path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// DefaultModels is the model set advertised when none is configured.
var DefaultModels = []string{
	"sonar",
	"sonar-pro",
	"sonar-reasoning",
	"sonar-reasoning-pro",
	"sonar-deep-research",
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Perplexity: PerplexityConfig{
			BaseURL:            "https://api.perplexity.ai",
			DefaultModel:       domain.DefaultModel,
			Models:             append([]string(nil), DefaultModels...),
			StrictModels:       true,
			DefaultTemperature: domain.DefaultTemperature,
			SystemPrompt:       "Be precise and concise.",
			ConnTimeout:        30 * time.Second,
		},
		Server: ServerConfig{
			Name:         "perplexity-search",
			Version:      "1.0.0",
			Transport:    "stdio",
			Addr:         ":8080",
			EndpointPath: "/mcp",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		EnvFile: ".env",
	}
}

// Load reads a YAML config file, loads the env file, applies env var
// overrides, and decrypts secrets. A missing file yields the defaults.
// The API key is not required here; see RequireAPIKey.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %v", domain.ErrConfigLoad, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfigLoad, err)
	}

	if err := loadEnvFile(cfg.EnvFile); err != nil {
		return nil, err
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	passphrase := os.Getenv("PPLXMCP_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("%w: decrypt secrets: %w", domain.ErrConfigLoad, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireAPIKey fails with domain.ErrMissingAPIKey when no credential is set.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Perplexity.APIKey) == "" {
		return domain.ErrMissingAPIKey
	}
	if strings.HasPrefix(c.Perplexity.APIKey, "enc:") {
		return fmt.Errorf("%w: perplexity.api_key is encrypted but PPLXMCP_CONFIG_KEY is not set", domain.ErrConfigLoad)
	}
	return nil
}

// loadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: load env file %s: %v", domain.ErrConfigLoad, path, err)
	}
	return nil
}

// ApplyEnvOverrides maps PERPLEXITY_* and PPLXMCP_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		cfg.Perplexity.APIKey = v
	}
	if v := os.Getenv("PERPLEXITY_BASE_URL"); v != "" {
		cfg.Perplexity.BaseURL = v
	}
	if v := os.Getenv("PPLXMCP_DEFAULT_MODEL"); v != "" {
		cfg.Perplexity.DefaultModel = v
	}
	if v := os.Getenv("PPLXMCP_MODELS"); v != "" {
		cfg.Perplexity.Models = splitAndTrim(v, ",")
	}
	if v := os.Getenv("PPLXMCP_STRICT_MODELS"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("%w: PPLXMCP_STRICT_MODELS: %v", domain.ErrConfigLoad, err)
		}
		cfg.Perplexity.StrictModels = b
	}
	if v := os.Getenv("PPLXMCP_DEFAULT_TEMPERATURE"); v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("%w: PPLXMCP_DEFAULT_TEMPERATURE: %v", domain.ErrConfigLoad, err)
		}
		cfg.Perplexity.DefaultTemperature = f
	}
	if v := os.Getenv("PPLXMCP_RESP_TIMEOUT"); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("%w: PPLXMCP_RESP_TIMEOUT: %v", domain.ErrConfigLoad, err)
		}
		cfg.Perplexity.RespTimeout = d
	}
	if v := os.Getenv("PPLXMCP_SERVER_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
	}
	if v := os.Getenv("PPLXMCP_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PPLXMCP_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PPLXMCP_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PPLXMCP_TRACER_ENABLED"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("%w: PPLXMCP_TRACER_ENABLED: %v", domain.ErrConfigLoad, err)
		}
		cfg.Tracer.Enabled = b
	}
	if v := os.Getenv("PPLXMCP_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	return nil
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets decrypts "enc:..." values in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	key := cfg.Perplexity.APIKey
	if strings.HasPrefix(key, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("perplexity api_key: %w", err)
		}
		cfg.Perplexity.APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: invalid encrypted format", domain.ErrDecryption)
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %v", domain.ErrDecryption, err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", domain.ErrDecryption, err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat config: %v", domain.ErrConfigLoad, err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("%w: config file %s has insecure permissions %o (want 0600 or 0644)", domain.ErrConfigLoad, path, mode)
	}
	return nil
}
