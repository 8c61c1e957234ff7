// Package journals holds the fixed set of anesthesiology journals the service
// tracks and the normalizer that maps PubMed's many name variants onto it.
package journals

import (
	"strings"

	"github.com/anesthub/research-digest-service/internal/domain"
)

// Spec pairs a journal's canonical display label with its MEDLINE TA
// (title abbreviation), which is both what efetch returns in
// MedlineJournalInfo and what esearch queries use in the [Journal] field.
type Spec struct {
	Label string
	TA    string
}

// known is the canonical journal set. Order matters: it is the display order
// for the journal list endpoint and the OR-clause order in search queries.
var known = []Spec{
	{Label: "Anaesthesia", TA: "Anaesthesia"},
	{Label: "Anaesthesia Critical Care and Pain Medicine", TA: "Anaesth Crit Care Pain Med"},
	{Label: "Anesthesia & Analgesia", TA: "Anesth Analg"},
	{Label: "Anesthesiology", TA: "Anesthesiology"},
	{Label: "BJA Education", TA: "BJA Educ"},
	{Label: "British Journal of Anaesthesia", TA: "Br J Anaesth"},
	{Label: "Canadian Journal of Anesthesia", TA: "Can J Anaesth"},
	{Label: "European Journal of Anaesthesiology", TA: "Eur J Anaesthesiol"},
	{Label: "Journal of Anesthesia", TA: "J Anesth"},
	{Label: "Journal of Cardiothoracic and Vascular Anesthesia", TA: "J Cardiothorac Vasc Anesth"},
	{Label: "Journal of Clinical Anesthesia", TA: "J Clin Anesth"},
	{Label: "Journal of Neurosurgical Anesthesiology", TA: "J Neurosurg Anesthesiol"},
	{Label: "Korean Journal of Anesthesiology", TA: "Korean J Anesthesiol"},
	{Label: "Korean Journal of Pain", TA: "Korean J Pain"},
	{Label: "Paediatric Anaesthesia", TA: "Paediatr Anaesth"},
	{Label: "Pain", TA: "Pain"},
	{Label: "Regional Anesthesia & Pain Medicine", TA: "Reg Anesth Pain Med"},
}

// byName indexes the known set by lowercased label and TA.
var byName = func() map[string]Spec {
	m := make(map[string]Spec, len(known)*2)
	for _, s := range known {
		m[strings.ToLower(s.Label)] = s
		m[strings.ToLower(s.TA)] = s
	}
	return m
}()

// Known returns the canonical journal set in display order.
// The returned slice is a copy; callers may modify it.
func Known() []Spec {
	out := make([]Spec, len(known))
	copy(out, known)
	return out
}

// LookupLabel finds the Spec whose canonical label matches the given string
// case-insensitively. Used to validate journal filters from callers.
func LookupLabel(label string) (Spec, bool) {
	s, ok := byName[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return Spec{}, false
	}
	// Only a label (or exact TA) hit counts as a valid filter; both map to
	// the same Spec, so no further check is needed.
	return s, true
}

// Normalize maps a free-text journal name or abbreviation onto the canonical
// set. Matching is case-insensitive against both the label and the TA of each
// known journal. Unmatched input passes through unchanged with
// Canonical=false: the journal set is open, not closed.
//
// Normalize is pure and total. It never fails, and for non-empty input it
// never returns an empty label.
func Normalize(name string) domain.Journal {
	trimmed := strings.TrimSpace(name)
	if s, ok := byName[strings.ToLower(trimmed)]; ok {
		return domain.Journal{Label: s.Label, Canonical: true}
	}
	return domain.Journal{Label: trimmed, Canonical: false}
}

// NormalizePair normalizes using the MEDLINE abbreviation first, falling back
// to the full journal title. efetch responses carry both and the abbreviation
// is the more stable of the two.
func NormalizePair(title, abbrev string) domain.Journal {
	if abbrev != "" {
		if j := Normalize(abbrev); j.Canonical {
			return j
		}
	}
	if title != "" {
		if j := Normalize(title); j.Canonical {
			return j
		}
	}
	// Neither name is canonical: pass the abbreviation through as-is.
	if abbrev != "" {
		return domain.Journal{Label: strings.TrimSpace(abbrev)}
	}
	return domain.Journal{Label: strings.TrimSpace(title)}
}
