package llm

import (
	"regexp"
	"sort"
	"strings"
)

// forbiddenEnglishTerms catches obvious English residue in narrative fields
// that must be written in pt-BR. The list is heuristic; "dinai" and "die"
// cover recurring transliteration glitches seen in production output.
var forbiddenEnglishTerms = regexp.MustCompile(`(?i)\b(` +
	`accept|accepted|deny|denied|support|reason|because|therefore|however|` +
	`patient|summary|recommendation|recommended|required|insufficient|` +
	`unknown|none|dinai|die` +
	`)\b`)

// CollectForbiddenTerms returns the sorted unique lowered forbidden tokens
// found across the given narrative texts.
func CollectForbiddenTerms(texts ...string) []string {
	found := make(map[string]bool)
	for _, text := range texts {
		for _, match := range forbiddenEnglishTerms.FindAllString(text, -1) {
			found[strings.ToLower(match)] = true
		}
	}
	if len(found) == 0 {
		return nil
	}
	terms := make([]string, 0, len(found))
	for term := range found {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
