package model

import (
	"strings"
	"unicode"
)

var titleStopwords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {}, "du": {}, "de": {}, "d": {},
	"à": {}, "au": {}, "aux": {}, "faire": {}, "aller": {}, "prendre": {}, "mon": {}, "ma": {},
	"mes": {}, "son": {}, "sa": {}, "ses": {}, "ce": {}, "cette": {}, "ces": {}, "et": {}, "ou": {},
}

// NormalizeTitle lowercases a title, drops stopwords and punctuation, and collapses spaces.
func NormalizeTitle(title string) string {
	words := strings.Fields(strings.ToLower(title))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := titleStopwords[w]; stop {
			continue
		}
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				return r
			}
			return -1
		}, w)
		if w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
