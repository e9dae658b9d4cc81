package score

import (
	"sort"
	"strings"
)

// Candidate is a retrieval result subject to lexical reranking.
type Candidate struct {
	ID         string
	Text       string
	Similarity float64 // vector similarity in [0, 1]
}

// Blend weights for LexicalRerank. Vector similarity dominates; token
// overlap breaks near-ties between passages the embedder scores alike.
const (
	rerankSimWeight     = 0.7
	rerankOverlapWeight = 0.3
)

// LexicalRerank reorders candidates by a blend of vector similarity and
// Jaccard token-set overlap with the query, returning at most k. The sort
// is stable: ties keep their original order. Empty input is a no-op.
func LexicalRerank(query string, candidates []Candidate, k int) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	queryTokens := tokenSet(query)

	blended := make([]float64, len(candidates))
	for i, c := range candidates {
		blended[i] = rerankSimWeight*c.Similarity + rerankOverlapWeight*jaccard(queryTokens, tokenSet(c.Text))
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return blended[order[a]] > blended[order[b]]
	})

	out := make([]Candidate, 0, len(candidates))
	for _, idx := range order {
		out = append(out, candidates[idx])
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// tokenSet lowercases and splits text into a set of alphanumeric tokens,
// skipping single-character tokens.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	var current strings.Builder
	flush := func() {
		if current.Len() > 1 {
			set[current.String()] = true
		}
		current.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return set
}

// jaccard computes |a∩b| / |a∪b| for two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if b[tok] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// Keywords returns the token set of a query as a slice, for callers that
// match titles or labels lexically.
func Keywords(text string) []string {
	set := tokenSet(text)
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
