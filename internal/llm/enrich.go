package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anesthub/research-digest-service/internal/domain"
)

// enrichmentSchema is the structured-output contract for batch enrichment:
// an array of per-record objects, every field required.
var enrichmentSchema = &schema{
	Type: "ARRAY",
	Items: &schema{
		Type: "OBJECT",
		Properties: map[string]*schema{
			"pmid":           {Type: "STRING"},
			"category":       {Type: "STRING"},
			"clinicalImpact": {Type: "STRING"},
			"summary":        {Type: "STRING"},
			"keywords":       {Type: "ARRAY", Items: &schema{Type: "STRING"}},
		},
		Required: []string{"pmid", "category", "clinicalImpact", "summary", "keywords"},
	},
}

// EnrichRecords sends one batch call asking for, per input record, a study
// category, a clinical impact statement, a short summary, and 3-5 keywords.
//
// The call is all-or-nothing: on any failure no enrichment is returned and
// the error unwraps to domain.ErrEnrichmentUnavailable with the failing stage
// recorded. Results may omit records the model skipped; the merge stage
// supplies defaults for those.
func (g *Gemini) EnrichRecords(ctx context.Context, records []domain.Record) ([]domain.Enrichment, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: enrichment requires at least one record", domain.ErrInvalidInput)
	}

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: buildEnrichmentPrompt(records)}}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   enrichmentSchema,
		},
	}

	text, err := g.generate(ctx, "enrich", g.model, req)
	if err != nil {
		if errors.Is(err, errEmptyResponse) {
			return nil, domain.NewEnrichmentError("empty_response", err)
		}
		return nil, domain.NewEnrichmentError("request", err)
	}

	var enrichments []domain.Enrichment
	if err := json.Unmarshal([]byte(text), &enrichments); err != nil {
		return nil, domain.NewEnrichmentError("parse", fmt.Errorf("response is not the declared schema: %w", err))
	}
	if len(enrichments) == 0 {
		return nil, domain.NewEnrichmentError("empty_response", fmt.Errorf("response parsed to zero enrichments"))
	}

	for i := range enrichments {
		// The category is a binary choice; anything off-contract becomes
		// the conservative default.
		if enrichments[i].Category != domain.CategoryReview {
			enrichments[i].Category = domain.CategoryOriginal
		}
	}
	return enrichments, nil
}

// buildEnrichmentPrompt renders the batch instruction with one block per
// record, keyed by PMID so results can be joined back.
func buildEnrichmentPrompt(records []domain.Record) string {
	var sb strings.Builder

	sb.WriteString("Act as an expert clinical research assistant in anesthesiology.\n")
	sb.WriteString("I have a list of real research articles recently published on PubMed.\n")
	sb.WriteString("Based on the provided titles and abstracts, generate:\n")
	sb.WriteString("1. A Study Category: \"Review\" or \"Original Article\".\n")
	sb.WriteString("2. A Clinical Impact statement: 1-2 powerful sentences summarizing why this matters at the bedside.\n")
	sb.WriteString("3. A High-level Summary: 2-3 concise sentences explaining the primary findings.\n")
	sb.WriteString("4. Keywords: 3-5 relevant medical keywords for indexing.\n\n")
	sb.WriteString("Articles:\n")

	for i, r := range records {
		abstract := r.Abstract
		if abstract == "" {
			abstract = "(no abstract available)"
		}
		fmt.Fprintf(&sb, "%d. PMID: %s\nTitle: %s\nJournal: %s\nAbstract: %s\n\n",
			i+1, r.PMID, r.Title, r.Journal.Label, abstract)
	}

	sb.WriteString("Return your analysis as a JSON array of objects with keys: pmid, category, clinicalImpact, summary, keywords.")
	return sb.String()
}

// DeepSummary produces a structured clinical critique for one paper using the
// deep model with an extended thinking budget.
func (g *Gemini) DeepSummary(ctx context.Context, paper domain.Paper) (string, error) {
	if paper.ID == "" || paper.Title == "" {
		return "", fmt.Errorf("%w: deep summary requires a paper with id and title", domain.ErrInvalidInput)
	}

	abstract := paper.Abstract
	if abstract == "" {
		abstract = paper.Summary
	}

	var sb strings.Builder
	sb.WriteString("As a world-class academic anesthesiologist and researcher, provide a \"Deep Dive\" clinical critique for the following article.\n\n")
	fmt.Fprintf(&sb, "ARTICLE: %s\n", paper.Title)
	fmt.Fprintf(&sb, "JOURNAL: %s\n", paper.Journal.Label)
	fmt.Fprintf(&sb, "AUTHORS: %s\n", strings.Join(paper.Authors, ", "))
	fmt.Fprintf(&sb, "ABSTRACT: %s\n\n", abstract)
	sb.WriteString("Structure the response with high-impact professional formatting:\n")
	sb.WriteString("1. CLINICAL SIGNIFICANCE: What is the primary question and why does it matter?\n")
	sb.WriteString("2. METHODOLOGICAL RIGOR: Critique the design, sample size, and potential biases.\n")
	sb.WriteString("3. BEDSIDE APPLICATION: Exactly how should this change (or not change) current practice?\n")
	sb.WriteString("4. TAKE-HOME MESSAGE: The single most important takeaway.")

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: sb.String()}}}},
		GenerationConfig: &generationConfig{
			ThinkingConfig: &thinkingConfig{ThinkingBudget: deepThinkingBudget},
		},
	}

	text, err := g.generate(ctx, "deep_summary", g.deepModel, req)
	if err != nil {
		if errors.Is(err, errEmptyResponse) {
			return "", domain.NewEnrichmentError("empty_response", err)
		}
		return "", domain.NewEnrichmentError("request", err)
	}
	return text, nil
}

// WeeklyReport produces a markdown briefing for the given papers grouped by
// journal. Papers may be empty, in which case a fixed notice is returned
// without a model call.
func (g *Gemini) WeeklyReport(ctx context.Context, papers []domain.Paper, from, to time.Time) (string, error) {
	if len(papers) == 0 {
		return "No notable papers were published in the past week.", nil
	}

	// Group by journal, preserving first-seen order.
	order := make([]string, 0)
	groups := make(map[string][]domain.Paper)
	for _, p := range papers {
		label := p.Journal.Label
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], p)
	}

	var sb strings.Builder
	sb.WriteString("Act as a senior medical editor for an anesthesiology research briefing.\n")
	fmt.Fprintf(&sb, "I have a list of research articles published between %s and %s.\n",
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	sb.WriteString("Provide a \"Weekly Research Briefing\" in markdown with three sections:\n")
	sb.WriteString("1. Weekly Overview: a short 2-3 sentence summary of the week's research trends.\n")
	sb.WriteString("2. Key Research by Journal: one \"### **Journal Name**\" heading per journal,\n")
	sb.WriteString("   with one line per study in the form: [title](url) (PMID: id). No extra commentary.\n")
	sb.WriteString("3. Clinical Implications: the overall message of this week's research for clinical practice.\n\n")
	sb.WriteString("Data:\n")

	for _, label := range order {
		fmt.Fprintf(&sb, "\n[%s]\n", label)
		for _, p := range groups[label] {
			fmt.Fprintf(&sb, "- [%s](%s) (PMID: %s)\n", p.Title, p.URL, p.ID)
		}
	}

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: sb.String()}}}},
		GenerationConfig: &generationConfig{
			ThinkingConfig: &thinkingConfig{ThinkingBudget: deepThinkingBudget},
		},
	}

	text, err := g.generate(ctx, "weekly_report", g.deepModel, req)
	if err != nil {
		if errors.Is(err, errEmptyResponse) {
			return "", domain.NewEnrichmentError("empty_response", err)
		}
		return "", domain.NewEnrichmentError("request", err)
	}
	return text, nil
}
