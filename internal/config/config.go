// Package config provides configuration management for the research digest
// service. Values come from defaults, an optional YAML file, and environment
// variables with the DIGEST_ prefix; API credentials come only from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/pubmed"
)

// Config holds all configuration for the research digest service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// PubMed contains bibliographic source client settings.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// Gemini contains AI enrichment client settings.
	Gemini GeminiConfig `mapstructure:"gemini"`
	// Cache contains TTL settings per data class.
	Cache CacheConfig `mapstructure:"cache"`
	// Digest contains pipeline defaults.
	Digest DigestConfig `mapstructure:"digest"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the keep-alive idle timeout.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// PubMedConfig holds bibliographic source client configuration.
type PubMedConfig struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the NCBI API key. Loaded only from the environment
	// (DIGEST_PUBMED_API_KEY or NCBI_API_KEY). Optional; raises the rate
	// limit from 3 to 10 requests per second.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the maximum burst of requests allowed.
	BurstSize int `mapstructure:"burst_size"`
	// MaxResults is the default result cap per search.
	MaxResults int `mapstructure:"max_results"`
	// RetryMaxAttempts is the total number of attempts per request.
	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`
	// RetryBaseDelay is the delay before the first retry.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// RetryMultiplier scales the delay after each failed attempt.
	RetryMultiplier float64 `mapstructure:"retry_multiplier"`
}

// GeminiConfig holds AI enrichment client configuration.
type GeminiConfig struct {
	// APIKey is the Gemini API key. Loaded only from the environment
	// (DIGEST_GEMINI_API_KEY or GEMINI_API_KEY). Required.
	APIKey string `mapstructure:"-"`
	// Model is the enrichment model identifier.
	Model string `mapstructure:"model"`
	// DeepModel is the model used for deep summaries and weekly reports.
	DeepModel string `mapstructure:"deep_model"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the per-call timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is how many times transient errors are retried.
	MaxRetries int `mapstructure:"max_retries"`
}

// CacheConfig holds the TTL per data class. The tiers are independent:
// raw source responses, fully enriched research results, and guideline
// listings each have their own freshness window.
type CacheConfig struct {
	// ResearchTTL is the freshness window for enriched research results.
	ResearchTTL time.Duration `mapstructure:"research_ttl"`
	// GuidelineTTL is the freshness window for guideline listings.
	GuidelineTTL time.Duration `mapstructure:"guideline_ttl"`
	// RawTTL is the freshness window for raw source responses.
	RawTTL time.Duration `mapstructure:"raw_ttl"`
}

// DigestConfig holds pipeline defaults.
type DigestConfig struct {
	// ResearchDays is the default lookback window for the research digest.
	ResearchDays int `mapstructure:"research_days"`
	// GuidelineDays is the lookback window for guideline listings.
	GuidelineDays int `mapstructure:"guideline_days"`
	// MaxResults caps the identifiers per search, which also bounds the
	// enrichment batch size.
	MaxResults int `mapstructure:"max_results"`
}

// HTTPAddress returns the address for the HTTP server.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the address for the metrics server.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load reads configuration from defaults, an optional config file, and
// environment variables, then validates the result.
func Load() (*Config, error) {
	v := newDefaultsViper()

	v.SetEnvPrefix("DIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/research-digest-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables. These fields use
	// mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets reads API credentials from the environment, preferring the
// DIGEST_-prefixed names and falling back to the conventional unprefixed ones.
func loadSecrets(cfg *Config) {
	for _, name := range []string{"DIGEST_PUBMED_API_KEY", "NCBI_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			cfg.PubMed.APIKey = v
			break
		}
	}
	for _, name := range []string{"DIGEST_GEMINI_API_KEY", "GEMINI_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			cfg.Gemini.APIKey = v
			break
		}
	}
}

// newDefaultsViper returns a viper instance carrying every default value, so
// tests can build a baseline Config the same way Load does.
func newDefaultsViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// PubMed
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.timeout", 15*time.Second)
	v.SetDefault("pubmed.rate_limit", 3.0)
	v.SetDefault("pubmed.burst_size", 3)
	v.SetDefault("pubmed.max_results", 30)
	v.SetDefault("pubmed.retry_max_attempts", 3)
	v.SetDefault("pubmed.retry_base_delay", time.Second)
	v.SetDefault("pubmed.retry_multiplier", 2.0)

	// Gemini
	v.SetDefault("gemini.model", "gemini-3-flash-preview")
	v.SetDefault("gemini.deep_model", "gemini-3-pro-preview")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.timeout", 15*time.Second)
	v.SetDefault("gemini.max_retries", 2)

	// Cache tiers
	v.SetDefault("cache.research_ttl", 24*time.Hour)
	v.SetDefault("cache.guideline_ttl", 7*24*time.Hour)
	v.SetDefault("cache.raw_ttl", time.Hour)

	// Digest
	v.SetDefault("digest.research_days", 7)
	v.SetDefault("digest.guideline_days", 365)
	v.SetDefault("digest.max_results", 30)
}

// Validate checks the configuration for invalid or missing values.
// A missing Gemini API key is reported as a configuration error here so the
// process fails fast at startup rather than on the first enrichment call.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in (0, 65535], got %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("server.metrics_port must be in (0, 65535], got %d", c.Server.MetricsPort)
	}
	if c.Server.HTTPPort == c.Server.MetricsPort {
		return fmt.Errorf("server.http_port and server.metrics_port must differ")
	}

	if c.PubMed.BaseURL == "" {
		return fmt.Errorf("pubmed.base_url must not be empty")
	}
	if c.PubMed.RateLimit <= 0 {
		return fmt.Errorf("pubmed.rate_limit must be positive, got %g", c.PubMed.RateLimit)
	}
	if c.PubMed.MaxResults <= 0 {
		return fmt.Errorf("pubmed.max_results must be positive, got %d", c.PubMed.MaxResults)
	}
	if c.PubMed.RetryMaxAttempts <= 0 {
		return fmt.Errorf("pubmed.retry_max_attempts must be positive, got %d", c.PubMed.RetryMaxAttempts)
	}
	if c.PubMed.RetryMultiplier < 1 {
		return fmt.Errorf("pubmed.retry_multiplier must be at least 1, got %g", c.PubMed.RetryMultiplier)
	}

	if c.Gemini.APIKey == "" {
		return domain.NewConfigurationError("gemini.api_key",
			"set DIGEST_GEMINI_API_KEY or GEMINI_API_KEY in the environment")
	}

	for name, ttl := range map[string]time.Duration{
		"cache.research_ttl":  c.Cache.ResearchTTL,
		"cache.guideline_ttl": c.Cache.GuidelineTTL,
		"cache.raw_ttl":       c.Cache.RawTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, ttl)
		}
	}

	if c.Digest.ResearchDays <= 0 {
		return fmt.Errorf("digest.research_days must be positive, got %d", c.Digest.ResearchDays)
	}
	if c.Digest.GuidelineDays <= 0 {
		return fmt.Errorf("digest.guideline_days must be positive, got %d", c.Digest.GuidelineDays)
	}
	if c.Digest.MaxResults <= 0 {
		return fmt.Errorf("digest.max_results must be positive, got %d", c.Digest.MaxResults)
	}
	// Search results feed efetch in one batch, so a cap above the batch
	// limit would fail every run after a successful search.
	if c.Digest.MaxResults > pubmed.MaxFetchBatch {
		return fmt.Errorf("digest.max_results must not exceed %d, got %d", pubmed.MaxFetchBatch, c.Digest.MaxResults)
	}
	return nil
}
