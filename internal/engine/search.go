package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/memgarden/memgarden/internal/metrics"
	"github.com/memgarden/memgarden/internal/score"
	"github.com/memgarden/memgarden/internal/vector"
)

// Scored is a knowledge entry ranked by weighted relevance.
type Scored struct {
	Entry      *vector.Entry `json:"entry"`
	Similarity float64       `json:"similarity"`
	Score      float64       `json:"score"`

	embedding []float32
}

// SearchKnowledge ranks entries matching query by weighted score:
// similarity discounted by age and reinforced by past use, with a small
// specificity boost. Types narrow the search; none means all. Per-entry
// scores are memoized in the score cache, keyed to the entry's coherency
// token.
func (e *Engine) SearchKnowledge(ctx context.Context, userID, query string, k int, types ...vector.EntryType) ([]Scored, error) {
	if k <= 0 {
		k = 5
	}
	filter := vector.Filter{"user_id": userID}
	switch len(types) {
	case 0:
	case 1:
		filter["type"] = string(types[0])
	default:
		branches := make([]vector.Filter, len(types))
		for i, typ := range types {
			branches[i] = vector.Filter{"type": string(typ)}
		}
		filter["$or"] = branches
	}
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(vector.CollectionKnowledge).Observe(time.Since(start).Seconds())
	}()
	results, err := e.vectors.Query(ctx, vector.CollectionKnowledge, query, k*3, filter)
	if err != nil {
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues(vector.CollectionKnowledge).Inc()

	fp := queryFingerprint(query)
	now := time.Now()
	lambda := e.cfg.Scoring.DecayLambda
	alpha := e.cfg.Scoring.UsageAlpha

	scored := make([]Scored, 0, len(results))
	for _, r := range results {
		entry := r.Entry
		s, ok := e.cache.Get(fp, entry.ID, entry.CoherencyToken())
		if ok {
			metrics.CacheHit()
		} else {
			metrics.CacheMiss()
			s = score.WeightedScore(r.Similarity, entry.AgeDays(now), float64(entry.UseCount), lambda, alpha)
			s *= 1 + 0.1*score.Specificity(entry.Text)
			e.cache.Set(fp, entry.ID, entry.CoherencyToken(), s)
		}
		scored = append(scored, Scored{Entry: entry, Similarity: r.Similarity, Score: s, embedding: r.Embedding})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.Vitality > scored[j].Entry.Vitality
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func queryFingerprint(query string) string {
	sum := sha256.Sum256([]byte(vector.NormalizeText(query)))
	return hex.EncodeToString(sum[:8])
}
