// Package digest exposes the cached, high-level operations of the research
// digest service. It sits between the HTTP layer and the pipeline: every read
// goes through a TTL cache keyed by resource and filter, concurrent fills for
// the same key are coalesced, and a failed refresh never evicts the last good
// result.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/anesthub/research-digest-service/internal/cache"
	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/journals"
	"github.com/anesthub/research-digest-service/internal/observability"
)

// Tier labels used on cache metrics.
const (
	tierResearch   = "research"
	tierGuidelines = "guidelines"
	tierReport     = "report"
)

// Pipeline runs the full search, fetch, and enrichment flow.
type Pipeline interface {
	Research(ctx context.Context, journal string, from, to time.Time, maxResults int) ([]domain.Paper, error)
	Guidelines(ctx context.Context, from, to time.Time, maxResults int) ([]domain.Paper, error)
}

// Summarizer produces long-form prose from already-enriched papers.
type Summarizer interface {
	DeepSummary(ctx context.Context, paper domain.Paper) (string, error)
	WeeklyReport(ctx context.Context, papers []domain.Paper, from, to time.Time) (string, error)
}

// Config holds the cache windows and pipeline defaults for the service.
type Config struct {
	// ResearchTTL is the freshness window for enriched research results.
	ResearchTTL time.Duration
	// GuidelineTTL is the freshness window for guideline listings.
	GuidelineTTL time.Duration
	// ResearchDays is the default lookback window for research queries.
	ResearchDays int
	// GuidelineDays is the lookback window for guideline queries.
	GuidelineDays int
	// MaxResults caps the papers returned per query.
	MaxResults int
}

// Service is the cached facade over the digest pipeline.
type Service struct {
	cfg        Config
	pipeline   Pipeline
	summarizer Summarizer
	papers     *cache.Store[[]domain.Paper]
	reports    *cache.Store[string]
	logger     zerolog.Logger
	metrics    *observability.Metrics
	now        cache.Clock
}

// New creates a Service. The clock is injectable for tests; nil means
// time.Now. Metrics may be nil.
func New(cfg Config, p Pipeline, s Summarizer, logger zerolog.Logger, metrics *observability.Metrics, now cache.Clock) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:        cfg,
		pipeline:   p,
		summarizer: s,
		papers:     cache.New[[]domain.Paper](now),
		reports:    cache.New[string](now),
		logger:     logger.With().Str("component", "digest").Logger(),
		metrics:    metrics,
		now:        now,
	}
}

// Research returns the enriched research digest for the given filters,
// serving from cache when a fresh entry exists. A zero from/to pair selects
// the default lookback window at fill time. journal may be empty to cover
// every tracked journal.
func (s *Service) Research(ctx context.Context, journal string, from, to time.Time) ([]domain.Paper, error) {
	key := researchKey(journal, from, to)
	papers, status, err := s.papers.GetOrFill(ctx, key, s.cfg.ResearchTTL, func(ctx context.Context) ([]domain.Paper, error) {
		f, t := s.researchWindow(from, to)
		return s.pipeline.Research(ctx, journal, f, t, s.cfg.MaxResults)
	})
	s.observe(tierResearch, key, status, err)
	return papers, err
}

// Guidelines returns recent practice guidelines across the tracked journals.
// The lookback window is fixed and long, so results are cached on their own
// slower tier.
func (s *Service) Guidelines(ctx context.Context) ([]domain.Paper, error) {
	const key = "guidelines:all"
	papers, status, err := s.papers.GetOrFill(ctx, key, s.cfg.GuidelineTTL, func(ctx context.Context) ([]domain.Paper, error) {
		to := s.now()
		from := to.AddDate(0, 0, -s.cfg.GuidelineDays)
		return s.pipeline.Guidelines(ctx, from, to, s.cfg.MaxResults)
	})
	s.observe(tierGuidelines, key, status, err)
	return papers, err
}

// Refresh discards the cached research entry for the given filters and runs
// the pipeline again. If a refresh for the same key is already running it
// returns ErrRefreshInProgress instead of queueing behind it; callers should
// retry once the running refresh lands.
func (s *Service) Refresh(ctx context.Context, journal string, from, to time.Time) ([]domain.Paper, error) {
	key := researchKey(journal, from, to)
	if s.papers.InFlight(key) {
		return nil, fmt.Errorf("refresh of %q: %w", key, domain.ErrRefreshInProgress)
	}
	s.papers.Invalidate(key)
	if s.metrics != nil {
		s.metrics.CacheRefreshes.WithLabelValues(tierResearch).Inc()
	}
	return s.Research(ctx, journal, from, to)
}

// DeepSummary produces a structured clinical appraisal of a single paper.
// Results are not cached: the paper arrives in the request body, so there is
// no stable key to reuse across callers.
func (s *Service) DeepSummary(ctx context.Context, paper domain.Paper) (string, error) {
	return s.summarizer.DeepSummary(ctx, paper)
}

// WeeklyReport renders a narrative briefing over the default research window.
// The underlying paper set comes through the research cache, and the rendered
// report is cached separately so repeated reads do not re-run the model.
func (s *Service) WeeklyReport(ctx context.Context) (string, error) {
	const key = "report:weekly"
	report, status, err := s.reports.GetOrFill(ctx, key, s.cfg.ResearchTTL, func(ctx context.Context) (string, error) {
		papers, err := s.Research(ctx, "", time.Time{}, time.Time{})
		if err != nil {
			return "", err
		}
		from, to := s.researchWindow(time.Time{}, time.Time{})
		return s.summarizer.WeeklyReport(ctx, papers, from, to)
	})
	s.observe(tierReport, key, status, err)
	return report, err
}

// Journals returns the canonical journal table.
func (s *Service) Journals() []journals.Spec {
	return journals.Known()
}

func (s *Service) researchWindow(from, to time.Time) (time.Time, time.Time) {
	if !from.IsZero() && !to.IsZero() {
		return from, to
	}
	end := s.now()
	return end.AddDate(0, 0, -s.cfg.ResearchDays), end
}

func (s *Service) observe(tier, key string, status cache.Status, err error) {
	evt := s.logger.Debug().Str("tier", tier).Str("key", key).Str("cache", status.String())
	if err != nil {
		evt = s.logger.Warn().Str("tier", tier).Str("key", key).Str("cache", status.String()).Err(err)
	}
	evt.Msg("digest read")

	if s.metrics == nil {
		return
	}
	switch status {
	case cache.StatusHit:
		s.metrics.CacheHits.WithLabelValues(tier).Inc()
	case cache.StatusMiss:
		s.metrics.CacheMisses.WithLabelValues(tier).Inc()
	case cache.StatusStale:
		s.metrics.CacheStale.WithLabelValues(tier).Inc()
	}
}

// researchKey derives a stable cache key from the request filters. An empty
// journal covers all tracked journals; a zero date pair means the default
// window, which must share one entry regardless of when it is read.
func researchKey(journal string, from, to time.Time) string {
	j := journal
	if j == "" {
		j = "all"
	}
	r := "default"
	if !from.IsZero() && !to.IsZero() {
		r = from.Format("2006-01-02") + ":" + to.Format("2006-01-02")
	}
	return "research:" + j + ":" + r
}
