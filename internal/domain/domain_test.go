package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalJSON(t *testing.T) {
	t.Run("marshals to its label", func(t *testing.T) {
		b, err := json.Marshal(Journal{Label: "Anesthesiology", Canonical: true})

		require.NoError(t, err)
		assert.Equal(t, `"Anesthesiology"`, string(b))
	})

	t.Run("unmarshals from a bare string", func(t *testing.T) {
		var j Journal
		require.NoError(t, json.Unmarshal([]byte(`"Br J Anaesth"`), &j))

		assert.Equal(t, "Br J Anaesth", j.Label)
		assert.False(t, j.Canonical, "decoded journals are not trusted as canonical")
	})

	t.Run("round-trips inside a paper", func(t *testing.T) {
		p := Paper{
			ID:      "1",
			Title:   "T",
			Journal: Journal{Label: "Pain", Canonical: true},
		}

		b, err := json.Marshal(p)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"journal":"Pain"`)

		var back Paper
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, "Pain", back.Journal.Label)
	})
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("configuration error", func(t *testing.T) {
		err := NewConfigurationError("gemini.api_key", "not set")

		assert.ErrorIs(t, err, ErrMissingCredentials)

		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "gemini.api_key", ce.Field)
	})

	t.Run("source error wraps its cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewSourceError("esearch", 503, cause)

		assert.ErrorIs(t, err, ErrSourceUnavailable)
		assert.Contains(t, err.Error(), "connection refused")

		var se *SourceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 503, se.StatusCode)
		assert.Equal(t, "esearch", se.Endpoint)
	})

	t.Run("rate limit error carries the retry delay", func(t *testing.T) {
		err := NewRateLimitError("pubmed", 30*time.Second)

		assert.ErrorIs(t, err, ErrRateLimited)

		var rle *RateLimitError
		require.ErrorAs(t, err, &rle)
		assert.Equal(t, 30*time.Second, rle.RetryAfter)
	})

	t.Run("enrichment error records the failing stage", func(t *testing.T) {
		cause := errors.New("api down")
		err := NewEnrichmentError("parse", cause)

		assert.ErrorIs(t, err, ErrEnrichmentUnavailable)
		assert.Contains(t, err.Error(), "api down")

		var ee *EnrichmentError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, "parse", ee.Stage)
	})

	t.Run("sentinels are distinct", func(t *testing.T) {
		sentinels := []error{
			ErrMissingCredentials,
			ErrSourceUnavailable,
			ErrRateLimited,
			ErrEnrichmentUnavailable,
			ErrRefreshInProgress,
			ErrInvalidInput,
		}
		for i, a := range sentinels {
			for j, b := range sentinels {
				if i != j {
					assert.NotErrorIs(t, a, b)
				}
			}
		}
	})
}
