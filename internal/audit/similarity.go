package audit

import (
	"strings"
	"unicode"
)

// ScopeJaccard returns the Jaccard similarity of two scope sets:
// |intersection| / |union|, 0 when either set is empty.
func ScopeJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}

	setB := make(map[string]bool, len(b))
	intersection := 0
	for _, s := range b {
		if setB[s] {
			continue
		}
		setB[s] = true
		if setA[s] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// TitleSimilarity returns the token-set Jaccard similarity of two diagram
// names. Tokens are lowercased runs of letters and digits, so punctuation
// and word order do not matter.
func TitleSimilarity(a, b string) float64 {
	return ScopeJaccard(titleTokens(a), titleTokens(b))
}

func titleTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
