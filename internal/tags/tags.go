// Package tags classifies bibliographic records into topical tags using an
// ordered list of keyword and pattern rules.
package tags

import "regexp"

// Rule pairs a tag label with the patterns that trigger it. A rule fires if
// any of its patterns match anywhere in the text.
type Rule struct {
	Tag      string
	Patterns []*regexp.Regexp
}

// rules is the ordered rule set. Output order follows declaration order.
// All patterns are case-insensitive.
var rules = []Rule{
	{Tag: "ERAS", Patterns: compile(
		`\bERAS\b`, `enhanced recovery`, `fast-track`, `early recovery`, `perioperative pathway`,
	)},
	{Tag: "Regional", Patterns: compile(
		`regional anesthesia`, `\bnerve block\b`, `peripheral nerve block`, `epidural`,
		`spinal anesthesia`, `intrathecal`, `fascial plane`, `\bTAP\b`, `\bESP\b`, `\bPECS?\b`, `\bQL\b`,
	)},
	{Tag: "Opioid-sparing", Patterns: compile(
		`opioid[-\s]?sparing`, `opioid[-\s]?free`, `OFA\b`, `multimodal analges`,
		`ketamine`, `lidocaine`, `dexmedetomidine`, `magnesium`, `NSAID`, `acetaminophen`,
	)},
	{Tag: "PONV", Patterns: compile(
		`\bPONV\b`, `postoperative nausea`, `vomiting`, `antiemetic`,
		`ondansetron`, `dexamethasone`, `droperidol`, `aprepitant`,
	)},
	{Tag: "GI recovery", Patterns: compile(
		`ileus`, `gastrointestinal`, `\bGI\b`, `bowel function`, `tolerance of diet`, `feeding`, `nasogastric`,
	)},
	{Tag: "Airway", Patterns: compile(
		`difficult airway`, `videolaryng`, `intubation`, `supraglottic`,
	)},
	{Tag: "ICU", Patterns: compile(
		`critical care`, `\bICU\b`, `mechanical ventilation`, `sepsis`,
	)},
	{Tag: "Obstetric", Patterns: compile(
		`obstetric`, `cesarean`, `\bC-section\b`, `labor analgesia`,
	)},
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Labels returns the configured tag labels in rule order.
func Labels() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Tag
	}
	return out
}

// Infer returns the deduplicated tags whose rules match the given title and
// abstract. Each rule is evaluated against the concatenated text; a tag
// appears at most once regardless of how many of its patterns matched, and
// the result order follows rule declaration order. No match yields an empty
// list, which is not an error.
//
// Infer is deterministic and side-effect-free.
func Infer(title, abstract string) []string {
	text := title + "\n" + abstract
	var out []string
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.Tag]; dup {
			continue
		}
		for _, p := range r.Patterns {
			if p.MatchString(text) {
				out = append(out, r.Tag)
				seen[r.Tag] = struct{}{}
				break
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
