package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/memgarden/memgarden/internal/metrics"
	"github.com/memgarden/memgarden/internal/store"
	"github.com/memgarden/memgarden/internal/vector"
)

// TendReport summarizes a consolidation run.
type TendReport struct {
	SessionsProcessed int `json:"sessions_processed"`
	NewConcepts       int `json:"new_concepts"`
}

// TendGarden consolidates up to limit of the oldest unconsolidated
// sessions. limit <= 0 uses the configured batch size. A session that
// fails stays unconsolidated and is retried on the next batch; it never
// aborts the rest.
func (e *Engine) TendGarden(ctx context.Context, limit int) (*TendReport, error) {
	if limit <= 0 {
		limit = e.cfg.Garden.BatchSize
	}
	sessions, err := e.db.ListUnconsolidated(limit)
	if err != nil {
		return nil, fmt.Errorf("list unconsolidated: %w", err)
	}

	report := &TendReport{}
	for i := range sessions {
		s := &sessions[i]
		written, err := e.consolidateSession(ctx, s)
		if err != nil {
			log.Printf("engine: consolidation failed for session %s: %v", s.SessionID, err)
			metrics.SessionsConsolidated.WithLabelValues("failed").Inc()
			continue
		}
		metrics.SessionsConsolidated.WithLabelValues("ok").Inc()
		report.SessionsProcessed++
		report.NewConcepts += written
	}
	return report, nil
}

// TendThread consolidates one explicit session. Consolidating an already
// consolidated session is a no-op.
func (e *Engine) TendThread(ctx context.Context, sessionID string) (*TendReport, error) {
	s, err := e.db.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if s.Consolidated() {
		return &TendReport{}, nil
	}

	written, err := e.consolidateSession(ctx, s)
	if err != nil {
		metrics.SessionsConsolidated.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.SessionsConsolidated.WithLabelValues("ok").Inc()
	return &TendReport{SessionsProcessed: 1, NewConcepts: written}, nil
}

// consolidateSession extracts candidates, dedups by entry id, writes the
// remainder, and marks the session consolidated. The mark happens even
// when zero entries result, so each session is visited exactly once.
func (e *Engine) consolidateSession(ctx context.Context, s *store.Session) (int, error) {
	messages, err := e.db.GetMessages(s.SessionID)
	if err != nil {
		return 0, fmt.Errorf("get messages: %w", err)
	}

	// Sessions that arrive without collaborator-supplied NLP fields get
	// them filled here when a summarizer is configured.
	if s.Summary == "" && len(s.Concepts) == 0 && e.summarizer != nil && len(messages) > 0 {
		result, err := e.summarizer.Summarize(ctx, formatTranscript(messages))
		if err != nil {
			return 0, fmt.Errorf("summarize: %w", err)
		}
		if err := e.db.SetNLPColumns(s.SessionID, result.Summary, result.Concepts, result.Entities); err != nil {
			return 0, fmt.Errorf("store summary: %w", err)
		}
		s.Summary = result.Summary
		s.Concepts = result.Concepts
		s.Entities = result.Entities
	}

	candidates := e.candidateEntries(s, messages)

	written := 0
	for _, entry := range candidates {
		existing, err := e.vectors.Get(ctx, vector.CollectionKnowledge, entry.ID)
		if err != nil {
			return written, fmt.Errorf("dedup lookup: %w", err)
		}
		if existing != nil {
			continue
		}
		if err := e.vectors.Add(ctx, vector.CollectionKnowledge, entry); err != nil {
			return written, fmt.Errorf("write knowledge: %w", err)
		}
		if err := e.vectors.Add(ctx, vector.CollectionRetrieval, entry); err != nil {
			return written, fmt.Errorf("write retrieval: %w", err)
		}
		metrics.EntriesWritten.Inc()
		written++
	}

	if err := e.db.MarkConsolidated(s.SessionID); err != nil {
		return written, fmt.Errorf("mark consolidated: %w", err)
	}
	return written, nil
}

// candidateEntries builds the unvalidated candidate set for a session:
// collaborator concepts and entities, plus facts declared in message text.
func (e *Engine) candidateEntries(s *store.Session, messages []store.Message) []*vector.Entry {
	var entries []*vector.Entry
	seen := make(map[string]bool)

	add := func(entry *vector.Entry) {
		if entry.Text == "" || seen[entry.ID] {
			return
		}
		seen[entry.ID] = true
		entries = append(entries, entry)
	}

	for _, concept := range s.Concepts {
		add(vector.NewEntry(s.UserID, vector.TypeConcept, strings.TrimSpace(concept), s.SessionID))
	}
	for _, entity := range s.Entities {
		add(vector.NewEntry(s.UserID, vector.TypeFact, strings.TrimSpace(entity), s.SessionID))
	}
	for _, fact := range ExtractFacts(messages) {
		entry := vector.NewEntry(s.UserID, fact.Type, fact.Text, s.SessionID)
		if fact.Type == vector.TypePreference {
			entry.Confidence = 0.8
		}
		add(entry)
	}
	return entries
}

func formatTranscript(messages []store.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
