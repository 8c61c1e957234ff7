package pubmed

import (
	"fmt"
	"strings"
	"time"

	"github.com/anesthub/research-digest-service/internal/journals"
)

// guidelinePubTypes are the publication types that qualify as practice
// guidance for the guideline listing.
var guidelinePubTypes = []string{
	"Guideline",
	"Practice Guideline",
	"Consensus Development Conference",
}

// dp formats a time for a PubMed [dp] (publication date) range clause.
func dp(t time.Time) string {
	return t.Format("2006/01/02")
}

// journalClause builds the journal membership OR-list. With a specific
// journal label it restricts to that journal; otherwise it spans the whole
// configured set.
func journalClause(journalLabel string) string {
	if journalLabel != "" {
		if spec, ok := journals.LookupLabel(journalLabel); ok {
			return fmt.Sprintf("(%q[Journal])", spec.TA)
		}
		// Unknown filter: query it verbatim rather than silently widening
		// the search to every journal.
		return fmt.Sprintf("(%q[Journal])", journalLabel)
	}

	specs := journals.Known()
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = fmt.Sprintf("%q[Journal]", s.TA)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// BuildResearchQuery builds the esearch term for the research digest:
// journal membership, publication date range, excluding letters.
func BuildResearchQuery(journalLabel string, from, to time.Time) string {
	return fmt.Sprintf(`%s AND (%q[dp] : %q[dp]) NOT "Letter"[pt]`,
		journalClause(journalLabel), dp(from), dp(to))
}

// BuildGuidelineQuery builds the esearch term for the guideline listing:
// the full journal set, a longer lookback window, constrained to guideline
// and consensus-statement publication types.
func BuildGuidelineQuery(from, to time.Time) string {
	types := make([]string, len(guidelinePubTypes))
	for i, t := range guidelinePubTypes {
		types[i] = fmt.Sprintf("%q[pt]", t)
	}
	return fmt.Sprintf(`%s AND (%q[dp] : %q[dp]) AND (%s)`,
		journalClause(""), dp(from), dp(to), strings.Join(types, " OR "))
}
