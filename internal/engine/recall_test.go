package engine

import (
	"context"
	"testing"

	"github.com/memgarden/memgarden/internal/vector"
)

func addKnowledge(t *testing.T, e *Engine, userID, text, sessionID string) *vector.Entry {
	t.Helper()
	entry := vector.NewEntry(userID, vector.TypeConcept, text, sessionID)
	if err := e.vectors.Add(context.Background(), vector.CollectionKnowledge, entry); err != nil {
		t.Fatalf("add knowledge: %v", err)
	}
	return entry
}

func TestDetectRecurringConcepts(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	entry := addKnowledge(t, e, "u1", "eventual consistency tradeoffs", "s1")

	recalls, err := e.DetectRecurringConcepts(ctx, "u1", "s2", "eventual consistency tradeoffs")
	if err != nil {
		t.Fatalf("DetectRecurringConcepts: %v", err)
	}
	if len(recalls) != 1 {
		t.Fatalf("got %d recalls, want 1", len(recalls))
	}

	got, err := e.vectors.Get(ctx, vector.CollectionKnowledge, entry.ID)
	if err != nil || got == nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.MentionCount != 2 {
		t.Fatalf("MentionCount = %d, want 2", got.MentionCount)
	}
	if len(got.ThreadIDs) != 2 {
		t.Fatalf("ThreadIDs = %v, want both threads", got.ThreadIDs)
	}
	if got.Vitality <= entry.Vitality {
		t.Fatalf("vitality did not grow: %v", got.Vitality)
	}
}

func TestDetectMirrorsMentionIntoRetrieval(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	entry := addKnowledge(t, e, "u1", "eventual consistency tradeoffs", "s1")
	if err := e.vectors.Add(ctx, vector.CollectionRetrieval, entry); err != nil {
		t.Fatalf("add retrieval copy: %v", err)
	}

	if _, err := e.DetectRecurringConcepts(ctx, "u1", "s2", "eventual consistency tradeoffs"); err != nil {
		t.Fatalf("DetectRecurringConcepts: %v", err)
	}

	mirrored, err := e.vectors.Get(ctx, vector.CollectionRetrieval, entry.ID)
	if err != nil || mirrored == nil {
		t.Fatalf("get retrieval copy: %v", err)
	}
	if mirrored.MentionCount != 2 || len(mirrored.ThreadIDs) != 2 {
		t.Fatalf("retrieval copy not mirrored: %+v", mirrored)
	}
}

func TestDetectSkipsOwnThreadOnlyEntries(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	addKnowledge(t, e, "u1", "eventual consistency tradeoffs", "s1")

	// Mentioning a concept in the very thread it was learned from is not
	// a recurrence.
	recalls, err := e.DetectRecurringConcepts(ctx, "u1", "s1", "eventual consistency tradeoffs")
	if err != nil {
		t.Fatalf("DetectRecurringConcepts: %v", err)
	}
	if len(recalls) != 0 {
		t.Fatalf("got %d recalls, want 0", len(recalls))
	}
}

func TestDetectBelowThresholdIgnored(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	addKnowledge(t, e, "u1", "gardening tomatoes in clay soil", "s1")

	recalls, err := e.DetectRecurringConcepts(ctx, "u1", "s2", "kubernetes ingress controllers")
	if err != nil {
		t.Fatalf("DetectRecurringConcepts: %v", err)
	}
	if len(recalls) != 0 {
		t.Fatalf("got %d recalls for unrelated text", len(recalls))
	}
}

func TestDetectScopedToUser(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	addKnowledge(t, e, "u1", "eventual consistency tradeoffs", "s1")

	recalls, err := e.DetectRecurringConcepts(ctx, "u2", "s2", "eventual consistency tradeoffs")
	if err != nil {
		t.Fatalf("DetectRecurringConcepts: %v", err)
	}
	if len(recalls) != 0 {
		t.Fatalf("recalled another user's entry: %+v", recalls)
	}
}

func TestRepeatedMentionsAcrossThreads(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	entry := addKnowledge(t, e, "u1", "raft leader election", "s0")

	threads := []string{"s1", "s2", "s3", "s4"}
	for _, sessionID := range threads {
		recalls, err := e.DetectRecurringConcepts(ctx, "u1", sessionID, "raft leader election")
		if err != nil {
			t.Fatalf("detect in %s: %v", sessionID, err)
		}
		if len(recalls) != 1 {
			t.Fatalf("detect in %s: %d recalls", sessionID, len(recalls))
		}
	}
	// Repeat mention in a known thread: count grows, thread set does not.
	if _, err := e.DetectRecurringConcepts(ctx, "u1", "s1", "raft leader election"); err != nil {
		t.Fatalf("repeat detect: %v", err)
	}

	got, err := e.vectors.Get(ctx, vector.CollectionKnowledge, entry.ID)
	if err != nil || got == nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.MentionCount != 6 {
		t.Fatalf("MentionCount = %d, want 6", got.MentionCount)
	}
	if len(got.ThreadIDs) != 5 {
		t.Fatalf("ThreadIDs = %v, want 5 unique", got.ThreadIDs)
	}
	seen := make(map[string]bool)
	for _, id := range got.ThreadIDs {
		if seen[id] {
			t.Fatalf("duplicate thread id %s", id)
		}
		seen[id] = true
	}
}

func TestQueryConceptHistoryReadOnly(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	entry := addKnowledge(t, e, "u1", "circuit breaker pattern", "s1")

	recalls, err := e.QueryConceptHistory(ctx, "u1", "circuit breaker pattern", 5)
	if err != nil {
		t.Fatalf("QueryConceptHistory: %v", err)
	}
	if len(recalls) != 1 {
		t.Fatalf("got %d recalls, want 1", len(recalls))
	}

	got, err := e.vectors.Get(ctx, vector.CollectionKnowledge, entry.ID)
	if err != nil || got == nil {
		t.Fatalf("get entry: %v", err)
	}
	if got.MentionCount != entry.MentionCount || len(got.ThreadIDs) != len(entry.ThreadIDs) {
		t.Fatalf("history lookup mutated metadata: %+v", got)
	}
}

func TestQueryConceptHistoryNoMatch(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	addKnowledge(t, e, "u1", "circuit breaker pattern", "s1")

	recalls, err := e.QueryConceptHistory(ctx, "u1", "completely unrelated gardening topic", 5)
	if err != nil {
		t.Fatalf("QueryConceptHistory: %v", err)
	}
	if len(recalls) != 0 {
		t.Fatalf("got %d recalls for unrelated query", len(recalls))
	}
}
