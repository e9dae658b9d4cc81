package engine

import (
	"context"
	"log"
	"time"

	"github.com/memgarden/memgarden/internal/metrics"
	"github.com/memgarden/memgarden/internal/notify"
	"github.com/memgarden/memgarden/internal/score"
	"github.com/memgarden/memgarden/internal/vector"
)

// maxRecallsPerMessage bounds how many recalls a single message can
// trigger.
const maxRecallsPerMessage = 3

// Recall is a stored concept that resurfaced in conversation.
type Recall struct {
	Entry      *vector.Entry `json:"entry"`
	Similarity float64       `json:"similarity"`
}

// DetectRecurringConcepts matches a new message against stored knowledge
// and records every recurrence: mention count, thread set, vitality, and
// last-mentioned timestamp all advance, cached scores for the entry are
// invalidated, and subscribers of the session are notified. Entries whose
// only origin thread is the current session are skipped. Read failures
// degrade to no recalls.
func (e *Engine) DetectRecurringConcepts(ctx context.Context, userID, sessionID, message string) ([]Recall, error) {
	results, err := e.vectors.Query(ctx, vector.CollectionKnowledge, message, 10, vector.Filter{"user_id": userID})
	if err != nil {
		log.Printf("engine: recurrence query failed: %v", err)
		return nil, nil
	}

	threshold := e.cfg.Scoring.RecallThreshold
	now := time.Now()

	var recalls []Recall
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		entry := r.Entry
		if len(entry.ThreadIDs) == 1 && entry.ThreadIDs[0] == sessionID {
			continue
		}

		entry.RecordMention(sessionID, now, e.cfg.Scoring.VitalityIncrement)
		if err := e.vectors.Put(ctx, vector.CollectionKnowledge, entry, r.Embedding); err != nil {
			log.Printf("engine: recall update failed for entry %s: %v", entry.ID, err)
			continue
		}
		// The retrieval collection holds a copy of the entry; keep its
		// metadata in step so both collections rank alike.
		if err := e.vectors.Put(ctx, vector.CollectionRetrieval, entry, r.Embedding); err != nil {
			log.Printf("engine: recall mirror failed for entry %s: %v", entry.ID, err)
		}
		e.cache.Invalidate(entry.ID)

		recalls = append(recalls, Recall{Entry: entry, Similarity: r.Similarity})
		if len(recalls) == maxRecallsPerMessage {
			break
		}
	}

	if e.hub != nil {
		for _, rec := range recalls {
			e.hub.Publish(notify.NewRecallEvent(sessionID, rec.Entry.ID, rec.Entry.Text,
				string(rec.Entry.Type), rec.Similarity, rec.Entry.MentionCount))
			metrics.RecallEvents.Inc()
		}
	}
	return recalls, nil
}

// QueryConceptHistory answers explicit "have we discussed X" lookups. It
// uses a lower similarity floor than recurrence detection and never
// mutates entry metadata. Matches above the floor are reranked by a blend
// of similarity and token overlap with the query, so near-verbatim
// phrasings sort ahead of loosely related entries.
func (e *Engine) QueryConceptHistory(ctx context.Context, userID, query string, limit int) ([]Recall, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := e.vectors.Query(ctx, vector.CollectionKnowledge, query, limit, vector.Filter{"user_id": userID})
	if err != nil {
		log.Printf("engine: concept history query failed: %v", err)
		return nil, nil
	}

	threshold := e.cfg.Scoring.HistoryThreshold
	byID := make(map[string]vector.Result, len(results))
	var candidates []score.Candidate
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		byID[r.Entry.ID] = r
		candidates = append(candidates, score.Candidate{ID: r.Entry.ID, Text: r.Entry.Text, Similarity: r.Similarity})
	}

	ranked := score.LexicalRerank(query, candidates, limit)
	recalls := make([]Recall, 0, len(ranked))
	for _, c := range ranked {
		r := byID[c.ID]
		recalls = append(recalls, Recall{Entry: r.Entry, Similarity: r.Similarity})
	}
	return recalls, nil
}
