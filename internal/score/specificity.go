package score

import (
	"strings"
	"unicode"
)

// Specificity weighs how informative a passage is independent of its
// similarity to any query. Long/rare tokens, embedded numeric literals, and
// capitalized multi-word sequences (proper nouns) all push the score up.
// Returns a value in [0, 1]; empty or trivial text scores 0.
func Specificity(text string) float64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}

	var longTokens, numericTokens, capPairs int
	prevCapitalized := false
	for _, tok := range tokens {
		trimmed := strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(trimmed) >= 7 {
			longTokens++
		}
		if strings.ContainsFunc(trimmed, unicode.IsDigit) {
			numericTokens++
		}

		capitalized := false
		for _, r := range trimmed {
			capitalized = unicode.IsUpper(r)
			break
		}
		if capitalized && prevCapitalized {
			capPairs++
		}
		prevCapitalized = capitalized
	}

	n := float64(len(tokens))
	s := 0.45*(float64(longTokens)/n) +
		0.30*(float64(numericTokens)/n) +
		0.25*(float64(capPairs)/n)

	// Very short fragments carry little signal regardless of token shape
	if len(tokens) < 3 {
		s *= 0.5
	}
	if s > 1 {
		s = 1
	}
	return s
}
