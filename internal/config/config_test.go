package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/pubmed"
)

func validConfig() *Config {
	v := newDefaultsViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	cfg.Gemini.APIKey = "test-key"
	return &cfg
}

func TestLoad(t *testing.T) {
	t.Run("defaults plus env secrets", func(t *testing.T) {
		t.Setenv("DIGEST_GEMINI_API_KEY", "gem-key")
		t.Setenv("DIGEST_PUBMED_API_KEY", "ncbi-key")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
		assert.Equal(t, "gem-key", cfg.Gemini.APIKey)
		assert.Equal(t, "ncbi-key", cfg.PubMed.APIKey)
		assert.Equal(t, 24*time.Hour, cfg.Cache.ResearchTTL)
		assert.Equal(t, 7*24*time.Hour, cfg.Cache.GuidelineTTL)
		assert.Equal(t, time.Hour, cfg.Cache.RawTTL)
		assert.Equal(t, 7, cfg.Digest.ResearchDays)
		assert.Equal(t, 365, cfg.Digest.GuidelineDays)
	})

	t.Run("unprefixed key names are a fallback", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "fallback-gem")
		t.Setenv("NCBI_API_KEY", "fallback-ncbi")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "fallback-gem", cfg.Gemini.APIKey)
		assert.Equal(t, "fallback-ncbi", cfg.PubMed.APIKey)
	})

	t.Run("prefixed names win over unprefixed", func(t *testing.T) {
		t.Setenv("DIGEST_GEMINI_API_KEY", "prefixed")
		t.Setenv("GEMINI_API_KEY", "unprefixed")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "prefixed", cfg.Gemini.APIKey)
	})

	t.Run("missing gemini key fails fast", func(t *testing.T) {
		t.Setenv("DIGEST_GEMINI_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "")

		_, err := Load()

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMissingCredentials)
	})

	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("DIGEST_GEMINI_API_KEY", "k")
		t.Setenv("DIGEST_SERVER_HTTP_PORT", "9999")
		t.Setenv("DIGEST_DIGEST_RESEARCH_DAYS", "14")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Server.HTTPPort)
		assert.Equal(t, 14, cfg.Digest.ResearchDays)
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("rejects equal server ports", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.MetricsPort = cfg.Server.HTTPPort

		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive TTLs", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.ResearchTTL = 0

		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects zero rate limit", func(t *testing.T) {
		cfg := validConfig()
		cfg.PubMed.RateLimit = 0

		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects max_results beyond the fetch batch cap", func(t *testing.T) {
		cfg := validConfig()
		cfg.Digest.MaxResults = pubmed.MaxFetchBatch + 1

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "digest.max_results")
	})

	t.Run("rejects multiplier under one", func(t *testing.T) {
		cfg := validConfig()
		cfg.PubMed.RetryMultiplier = 0.5

		assert.Error(t, cfg.Validate())
	})

	t.Run("missing gemini key is a configuration error", func(t *testing.T) {
		cfg := validConfig()
		cfg.Gemini.APIKey = ""

		err := cfg.Validate()
		assert.ErrorIs(t, err, domain.ErrMissingCredentials)
	})
}

func TestAddresses(t *testing.T) {
	s := ServerConfig{Host: "0.0.0.0", HTTPPort: 8080, MetricsPort: 9091}

	assert.Equal(t, "0.0.0.0:8080", s.HTTPAddress())
	assert.Equal(t, "0.0.0.0:9091", s.MetricsAddress())
}
