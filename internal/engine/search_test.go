package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/memgarden/memgarden/internal/metrics"
	"github.com/memgarden/memgarden/internal/vector"
)

func TestSearchKnowledgeRanksByWeightedScore(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)

	// Same text similarity is impossible (same text means same id), so
	// rank two entries against a query matching one of them exactly.
	hit := addKnowledge(t, e, "u1", "postgres connection pooling", "s1")
	addKnowledge(t, e, "u1", "weekend hiking plans", "s1")

	scored, err := e.SearchKnowledge(ctx, "u1", "postgres connection pooling", 5)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("got %d results, want 2", len(scored))
	}
	if scored[0].Entry.ID != hit.ID {
		t.Fatalf("top result = %q", scored[0].Entry.Text)
	}
	if scored[0].Score <= scored[1].Score {
		t.Fatalf("scores not descending: %v then %v", scored[0].Score, scored[1].Score)
	}
	if scored[0].Score <= 0 {
		t.Fatalf("exact match score = %v", scored[0].Score)
	}
}

func TestSearchKnowledgeUsageReinforcement(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)

	entry := vector.NewEntry("u1", vector.TypeConcept, "postgres connection pooling", "s1")
	if err := e.vectors.Add(ctx, vector.CollectionKnowledge, entry); err != nil {
		t.Fatalf("add: %v", err)
	}

	before, err := e.SearchKnowledge(ctx, "u1", "postgres connection pooling", 1)
	if err != nil || len(before) != 1 {
		t.Fatalf("search: %v (%d results)", err, len(before))
	}

	entry.UseCount = 10
	entry.Touch(time.Now())
	if err := e.vectors.Add(ctx, vector.CollectionKnowledge, entry); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	after, err := e.SearchKnowledge(ctx, "u1", "postgres connection pooling", 1)
	if err != nil || len(after) != 1 {
		t.Fatalf("search: %v (%d results)", err, len(after))
	}
	if after[0].Score <= before[0].Score {
		t.Fatalf("use count did not reinforce: %v -> %v", before[0].Score, after[0].Score)
	}
}

func TestSearchKnowledgeTypeFilter(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)

	concept := vector.NewEntry("u1", vector.TypeConcept, "postgres connection pooling", "s1")
	pref := vector.NewEntry("u1", vector.TypePreference, "prefers pgx over lib/pq", "s1")
	pref.Confidence = 0.9
	if err := e.vectors.Add(ctx, vector.CollectionKnowledge, concept, pref); err != nil {
		t.Fatalf("add: %v", err)
	}

	scored, err := e.SearchKnowledge(ctx, "u1", "postgres", 10, vector.TypeConcept)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(scored) != 1 || scored[0].Entry.Type != vector.TypeConcept {
		t.Fatalf("type filter leaked: %+v", scored)
	}

	both, err := e.SearchKnowledge(ctx, "u1", "postgres", 10, vector.TypeConcept, vector.TypePreference)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(both) != 2 {
		t.Fatalf("multi-type filter = %d results, want 2", len(both))
	}
}

func TestSearchKnowledgeCacheStableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	addKnowledge(t, e, "u1", "postgres connection pooling", "s1")

	first, err := e.SearchKnowledge(ctx, "u1", "postgres connection pooling", 1)
	if err != nil || len(first) != 1 {
		t.Fatalf("first search: %v", err)
	}
	e.cache.Wait()

	second, err := e.SearchKnowledge(ctx, "u1", "postgres connection pooling", 1)
	if err != nil || len(second) != 1 {
		t.Fatalf("second search: %v", err)
	}
	if first[0].Score != second[0].Score {
		t.Fatalf("cached score drifted: %v vs %v", first[0].Score, second[0].Score)
	}
}

func queryDurationSamples(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	obs := metrics.QueryDuration.WithLabelValues(vector.CollectionKnowledge)
	if err := obs.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("read histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestSearchKnowledgeObservesQueryDuration(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	addKnowledge(t, e, "u1", "observability backlog", "s1")

	before := queryDurationSamples(t)
	if _, err := e.SearchKnowledge(ctx, "u1", "observability backlog", 5); err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	// One sample per search, covering the vector query and the scoring
	// pass together.
	if got := queryDurationSamples(t); got != before+1 {
		t.Fatalf("histogram samples = %d, want %d", got, before+1)
	}
}

func TestSearchKnowledgeTruncatesToK(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t, nil)
	for _, text := range []string{"alpha topic", "beta topic", "gamma topic", "delta topic"} {
		addKnowledge(t, e, "u1", text, "s1")
	}

	scored, err := e.SearchKnowledge(ctx, "u1", "topic", 2)
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("got %d results, want 2", len(scored))
	}
}
