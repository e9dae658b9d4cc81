// Package score implements the relevance math used across retrieval:
// the weighted similarity/decay/reinforcement score, a specificity
// measure, lexical reranking, and an independent recency curve for
// document ranking. Everything here is a pure function.
package score

import "math"

// WeightedScore combines vector similarity, temporal decay, and usage
// reinforcement:
//
//	clamp(sim, 0, 1) * exp(-lambda * max(ageDays, 0)) * (1 + alpha*useCount)
//
// The result is non-negative, bounded above by sim*(1+alpha*useCount),
// strictly decreasing in ageDays and strictly increasing in useCount.
func WeightedScore(sim, ageDays, useCount, lambda, alpha float64) float64 {
	if sim < 0 {
		sim = 0
	} else if sim > 1 {
		sim = 1
	}
	if ageDays < 0 {
		ageDays = 0
	}
	if useCount < 0 {
		useCount = 0
	}
	return sim * math.Exp(-lambda*ageDays) * (1 + alpha*useCount)
}

// RecencyDecay is the exponential-halving curve used by document ranking:
// 2^(-max(ageDays,0)/halfLife). Distinct from WeightedScore's decay: a
// half-life parameter instead of a rate. A non-positive half-life means
// no decay.
func RecencyDecay(ageDays, halfLife float64) float64 {
	if halfLife <= 0 {
		return 1.0
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp2(-ageDays / halfLife)
}
