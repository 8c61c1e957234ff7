// Package pipeline runs the research ingestion and enrichment flow: search
// the bibliographic index, fetch and flatten the matching records, normalize
// journals and infer tags, enrich the batch through the AI service, and merge
// enrichment back onto the records with deterministic fallbacks.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/anesthub/research-digest-service/internal/domain"
	"github.com/anesthub/research-digest-service/internal/journals"
	"github.com/anesthub/research-digest-service/internal/observability"
	"github.com/anesthub/research-digest-service/internal/pubmed"
	"github.com/anesthub/research-digest-service/internal/tags"
)

const (
	// DefaultResearchDays is the lookback window for the research digest
	// when the caller gives no explicit range.
	DefaultResearchDays = 7

	// GuidelineLookbackDays is the lookback window for guideline listings.
	GuidelineLookbackDays = 365

	// defaultClinicalImpact is the placeholder used when enrichment is
	// missing for a record.
	defaultClinicalImpact = "Clinical analysis pending."

	// defaultSummary is the placeholder used when a record has no abstract
	// to derive a summary from.
	defaultSummary = "Detailed abstract not available."

	// summaryAbstractLimit is how much of the abstract seeds the fallback
	// summary.
	summaryAbstractLimit = 200
)

// Source is the bibliographic index client the pipeline consumes.
type Source interface {
	SearchIDs(ctx context.Context, params pubmed.SearchParams) ([]string, error)
	SearchGuidelineIDs(ctx context.Context, from, to time.Time, maxResults int) ([]string, error)
	FetchArticles(ctx context.Context, pmids []string) ([]domain.RawRecord, error)
}

// Enricher is the AI enrichment client the pipeline consumes.
type Enricher interface {
	EnrichRecords(ctx context.Context, records []domain.Record) ([]domain.Enrichment, error)
}

// Runner executes pipeline runs. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	source   Source
	enricher Enricher
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a pipeline runner. metrics may be nil, in which case no
// metrics are recorded.
func NewRunner(source Source, enricher Enricher, logger zerolog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		source:   source,
		enricher: enricher,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		metrics:  metrics,
	}
}

// Research runs the full pipeline for the research digest: journal filter
// (empty for the whole set), a publication date range, and a result cap.
//
// A zero-match search returns an empty paper list without a fetch call.
// Search and fetch failures abort the run. Enrichment failures do not:
// every record still produces a Paper, falling back to defaults, because raw
// bibliographic data without AI commentary is still useful to the caller.
func (r *Runner) Research(ctx context.Context, journal string, from, to time.Time, maxResults int) ([]domain.Paper, error) {
	return r.run(ctx, "research", func(ctx context.Context) ([]string, error) {
		return r.source.SearchIDs(ctx, pubmed.SearchParams{
			Journal:    journal,
			From:       from,
			To:         to,
			MaxResults: maxResults,
		})
	}, nil)
}

// Guidelines runs the pipeline for the guideline listing: guideline and
// consensus publication types across the whole journal set. Guideline papers
// are always categorized as reviews.
func (r *Runner) Guidelines(ctx context.Context, from, to time.Time, maxResults int) ([]domain.Paper, error) {
	force := domain.CategoryReview
	return r.run(ctx, "guidelines", func(ctx context.Context) ([]string, error) {
		return r.source.SearchGuidelineIDs(ctx, from, to, maxResults)
	}, &force)
}

// run is the shared search → fetch → normalize → enrich → merge flow.
func (r *Runner) run(ctx context.Context, resource string, search func(context.Context) ([]string, error), forceCategory *domain.Category) ([]domain.Paper, error) {
	start := time.Now()
	logger := r.logger.With().Str("resource", resource).Logger()

	if r.metrics != nil {
		r.metrics.PipelineRunsStarted.WithLabelValues(resource).Inc()
	}

	papers, err := r.runSteps(ctx, logger, search, forceCategory)
	if err != nil {
		if r.metrics != nil {
			r.metrics.PipelineRunsFailed.WithLabelValues(resource).Inc()
		}
		logger.Error().Err(err).Msg("pipeline run failed")
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.PipelineRunsCompleted.WithLabelValues(resource).Inc()
		r.metrics.PipelineRunDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
		r.metrics.PapersPerRun.WithLabelValues(resource).Observe(float64(len(papers)))
	}
	logger.Info().
		Int("papers", len(papers)).
		Dur("duration", time.Since(start)).
		Msg("pipeline run completed")
	return papers, nil
}

func (r *Runner) runSteps(ctx context.Context, logger zerolog.Logger, search func(context.Context) ([]string, error), forceCategory *domain.Category) ([]domain.Paper, error) {
	ids, err := search(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		// The source affirmatively reported zero matches; fetch with zero
		// ids is invalid, so short-circuit.
		logger.Debug().Msg("search returned no identifiers")
		return []domain.Paper{}, nil
	}

	raw, err := r.source.FetchArticles(ctx, ids)
	if err != nil {
		return nil, err
	}

	records := normalize(raw)
	if len(records) == 0 {
		return []domain.Paper{}, nil
	}

	enrichments, err := r.enricher.EnrichRecords(ctx, records)
	if err != nil {
		// Degrade, never fail: the merge stage fills in defaults.
		logger.Warn().Err(err).Msg("enrichment unavailable, using defaults")
		enrichments = nil
	}

	papers := r.merge(records, enrichments)
	if forceCategory != nil {
		for i := range papers {
			papers[i].Category = *forceCategory
		}
	}
	return papers, nil
}

// normalize turns raw source records into canonical intermediate records:
// journal normalized against the known set, tags inferred from title and
// abstract. Records without an identifier were already dropped at the parse
// boundary.
func normalize(raw []domain.RawRecord) []domain.Record {
	records := make([]domain.Record, 0, len(raw))
	for _, rr := range raw {
		records = append(records, domain.Record{
			PMID:     rr.PMID,
			Title:    rr.Title,
			Abstract: rr.Abstract,
			Journal:  journals.NormalizePair(rr.JournalTitle, rr.JournalAbbrev),
			Authors:  rr.Authors,
			Date:     rr.Date,
			URL:      rr.URL,
			Tags:     tags.Infer(rr.Title, rr.Abstract),
		})
	}
	return records
}

// merge joins enrichment results onto records by identifier, producing
// exactly one Paper per record. Records the enrichment response omitted get
// deterministic defaults: category "Original Article", a fixed impact
// placeholder, a summary cut from the abstract (or a fixed placeholder), and
// no keywords.
func (r *Runner) merge(records []domain.Record, enrichments []domain.Enrichment) []domain.Paper {
	byID := make(map[string]domain.Enrichment, len(enrichments))
	for _, e := range enrichments {
		byID[e.PMID] = e
	}

	papers := make([]domain.Paper, 0, len(records))
	for _, rec := range records {
		paper := domain.Paper{
			ID:       rec.PMID,
			Title:    rec.Title,
			Authors:  rec.Authors,
			Journal:  rec.Journal,
			Date:     rec.Date,
			URL:      rec.URL,
			Abstract: rec.Abstract,
			Tags:     rec.Tags,
		}

		if e, ok := byID[rec.PMID]; ok {
			paper.Category = e.Category
			paper.ClinicalImpact = e.ClinicalImpact
			paper.Summary = e.Summary
			paper.Keywords = e.Keywords
			if paper.Keywords == nil {
				paper.Keywords = []string{}
			}
		} else {
			paper.Category = domain.CategoryOriginal
			paper.ClinicalImpact = defaultClinicalImpact
			paper.Summary = fallbackSummary(rec.Abstract)
			paper.Keywords = []string{}
			if r.metrics != nil {
				r.metrics.EnrichmentFallbacks.Inc()
			}
		}

		papers = append(papers, paper)
	}
	return papers
}

// fallbackSummary derives a summary from the leading part of the abstract,
// or returns a fixed placeholder when there is none. The cut respects rune
// boundaries.
func fallbackSummary(abstract string) string {
	if abstract == "" {
		return defaultSummary
	}
	runes := []rune(abstract)
	if len(runes) <= summaryAbstractLimit {
		return abstract
	}
	return string(runes[:summaryAbstractLimit])
}
