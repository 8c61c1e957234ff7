// Package domain defines the core data model for the research digest service:
// bibliographic records at their three stages of refinement (raw, normalized,
// enriched) and the error taxonomy shared across components.
package domain

import "encoding/json"

// Category classifies a paper's study type. The enrichment service is asked
// for a binary choice between the two values below.
type Category string

const (
	// CategoryReview marks review articles, meta-analyses, and guidelines.
	CategoryReview Category = "Review"

	// CategoryOriginal marks original research articles. It is also the
	// deterministic default when enrichment is missing for a record.
	CategoryOriginal Category = "Original Article"
)

// Journal identifies a publishing journal. The service works against a fixed
// set of anesthesiology journals, but PubMed returns an open set of name
// strings, so unrecognized journals pass through with Canonical=false rather
// than being rejected.
type Journal struct {
	// Label is the display name: a canonical label from the known journal set,
	// or the raw source string when no table entry matched.
	Label string

	// Canonical reports whether Label is one of the known journal set.
	Canonical bool
}

// String returns the display label.
func (j Journal) String() string {
	return j.Label
}

// MarshalJSON encodes the journal as its display label.
func (j Journal) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Label)
}

// UnmarshalJSON decodes a journal from its display label. The decoded value
// is not marked canonical; callers that care re-run the normalizer.
func (j *Journal) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	j.Label = label
	j.Canonical = false
	return nil
}

// RawRecord is the flat, source-native shape produced by parsing a PubMed
// efetch response. It is transient: raw records are normalized into Records
// immediately and never persisted.
type RawRecord struct {
	// PMID is PubMed's stable per-article identifier.
	PMID string

	// Title is the article title.
	Title string

	// Abstract is the free-text abstract with structured sections joined by
	// newlines. Empty when the article has no abstract.
	Abstract string

	// JournalTitle is the full journal title as returned by the source.
	JournalTitle string

	// JournalAbbrev is the MEDLINE TA abbreviation as returned by the source.
	JournalAbbrev string

	// Authors holds author display names in source order. An entry is either
	// "LastName Initials" or a collective/organizational name. May be empty.
	Authors []string

	// Date is the publication date formatted as "Year Month Day" with absent
	// components omitted (e.g. "2025 Mar").
	Date string

	// URL is the canonical PubMed URL for the article.
	URL string
}

// Record is the canonical intermediate record: a RawRecord with its journal
// normalized against the known journal set and topical tags inferred from
// title and abstract. PMID is never empty for a Record inside a batch.
type Record struct {
	PMID     string
	Title    string
	Abstract string
	Journal  Journal
	Authors  []string
	Date     string
	URL      string
	Tags     []string
}

// Enrichment is the AI-generated layer for a single record. It is only
// meaningful joined against a Record by PMID and is never persisted on
// its own.
type Enrichment struct {
	PMID           string   `json:"pmid"`
	Category       Category `json:"category"`
	ClinicalImpact string   `json:"clinicalImpact"`
	Summary        string   `json:"summary"`
	Keywords       []string `json:"keywords"`
}

// Paper is the externally visible entity produced by the merge stage:
// a Record with enrichment (or deterministic defaults) applied. Papers are
// immutable after creation; their lifecycle ends when the cache entry that
// holds them is superseded.
type Paper struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Authors        []string `json:"authors"`
	Journal        Journal  `json:"journal"`
	Date           string   `json:"date"`
	URL            string   `json:"url"`
	Abstract       string   `json:"abstract,omitempty"`
	Category       Category `json:"category"`
	ClinicalImpact string   `json:"clinicalImpact"`
	Summary        string   `json:"summary"`
	Tags           []string `json:"tags"`
	Keywords       []string `json:"keywords"`
}
