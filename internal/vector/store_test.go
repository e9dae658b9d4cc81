package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/memgarden/memgarden/internal/embed"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewInMemory(embed.NewMockEmbedder(64))
}

func TestAddAndQuery(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	entries := []*Entry{
		NewEntry("u1", TypeConcept, "distributed consensus with raft", "s1"),
		NewEntry("u1", TypeConcept, "gardening tomatoes in clay soil", "s1"),
		NewEntry("u2", TypeConcept, "distributed consensus with raft", "s2"),
	}
	if err := s.Add(ctx, CollectionKnowledge, entries...); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := s.Query(ctx, CollectionKnowledge, "distributed consensus with raft", 5, Filter{"user_id": "u1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Entry.Text != "distributed consensus with raft" {
		t.Fatalf("top result = %q", results[0].Entry.Text)
	}
	if results[0].Similarity < 0.999 {
		t.Fatalf("identical text similarity = %v, want ~1", results[0].Similarity)
	}
	for _, r := range results {
		if r.Entry.UserID != "u1" {
			t.Fatalf("filter leaked entry for %s", r.Entry.UserID)
		}
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	s := testStore(t)
	results, err := s.Query(context.Background(), CollectionKnowledge, "anything", 5, nil)
	if err != nil {
		t.Fatalf("Query on empty collection: %v", err)
	}
	if results != nil {
		t.Fatalf("got %v, want nil", results)
	}
}

func TestQueryClampsK(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	if err := s.Add(ctx, CollectionKnowledge, NewEntry("u1", TypeFact, "only one entry", "s1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := s.Query(ctx, CollectionKnowledge, "entry", 50, nil)
	if err != nil {
		t.Fatalf("Query with k > count: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestUpsertByContentHash(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	first := NewEntry("u1", TypeConcept, "event sourcing", "s1")
	if err := s.Add(ctx, CollectionKnowledge, first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	second := NewEntry("u1", TypeConcept, "Event   Sourcing", "s2")
	second.MentionCount = 5
	if err := s.Add(ctx, CollectionKnowledge, second); err != nil {
		t.Fatalf("Add: %v", err)
	}

	count, err := s.Count(CollectionKnowledge)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count = %d, want 1 after upsert", count)
	}

	got, err := s.Get(ctx, CollectionKnowledge, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.MentionCount != 5 {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	if err := s.Add(ctx, CollectionKnowledge, NewEntry("u1", TypeFact, "something", "s1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := s.Get(ctx, CollectionKnowledge, "no-such-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for _, text := range []string{"alpha", "beta", "gamma"} {
		if err := s.Add(ctx, CollectionKnowledge, NewEntry("u1", TypeConcept, text, "s1")); err != nil {
			t.Fatalf("Add %s: %v", text, err)
		}
	}
	if err := s.Add(ctx, CollectionKnowledge, NewEntry("u2", TypeConcept, "delta", "s2")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	all, err := s.Scan(ctx, CollectionKnowledge, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Scan all = %d entries, want 4", len(all))
	}
	for _, r := range all {
		if len(r.Embedding) == 0 {
			t.Fatalf("scan result %s missing embedding", r.Entry.ID)
		}
	}

	mine, err := s.Scan(ctx, CollectionKnowledge, Filter{"user_id": "u1"})
	if err != nil {
		t.Fatalf("Scan filtered: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("Scan filtered = %d entries, want 3", len(mine))
	}
}

func TestDeleteMatchingRejectsAmbiguous(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	if err := s.Add(ctx, CollectionKnowledge, NewEntry("u1", TypeFact, "keep me", "s1")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	for _, filter := range []Filter{
		nil,
		{},
		{"user_id": nil},
		{"$and": []Filter{}},
		{"$and": []Filter{{"user_id": nil}}},
	} {
		if _, err := s.DeleteMatching(ctx, CollectionKnowledge, filter); !errors.Is(err, ErrAmbiguousFilter) {
			t.Fatalf("DeleteMatching(%v) = %v, want ErrAmbiguousFilter", filter, err)
		}
	}

	count, err := s.Count(CollectionKnowledge)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("ambiguous delete removed entries, count = %d", count)
	}
}

func TestDeleteMatching(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	if err := s.Add(ctx, CollectionKnowledge,
		NewEntry("u1", TypeConcept, "session scoped one", "s1"),
		NewEntry("u1", TypeConcept, "session scoped two", "s1"),
		NewEntry("u1", TypeConcept, "other session", "s2"),
	); err != nil {
		t.Fatalf("Add: %v", err)
	}

	deleted, err := s.DeleteMatching(ctx, CollectionKnowledge, Filter{
		"$and": []Filter{{"user_id": "u1"}, {"session_id": "s1"}},
	})
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	remaining, err := s.Scan(ctx, CollectionKnowledge, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Entry.SessionID != "s2" {
		t.Fatalf("remaining = %+v", remaining)
	}
}

func TestDeleteMatchingNoMatches(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	if err := s.Add(ctx, CollectionKnowledge, NewEntry("u1", TypeFact, "keep", "s1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	deleted, err := s.DeleteMatching(ctx, CollectionKnowledge, Filter{"user_id": "nobody"})
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}
}

func TestPutPreservesEmbedding(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	e := NewEntry("u1", TypeConcept, "moves between collections", "s1")
	if err := s.Add(ctx, CollectionKnowledge, e); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := s.Scan(ctx, CollectionKnowledge, nil)
	if err != nil || len(results) != 1 {
		t.Fatalf("Scan: %v (%d results)", err, len(results))
	}

	archived := results[0].Entry
	archived.ArchivedAt = 1
	archived.OriginalCollection = CollectionKnowledge
	if err := s.Put(ctx, ArchiveName(CollectionKnowledge), archived, results[0].Embedding); err != nil {
		t.Fatalf("Put: %v", err)
	}

	moved, err := s.Scan(ctx, ArchiveName(CollectionKnowledge), nil)
	if err != nil || len(moved) != 1 {
		t.Fatalf("Scan archive: %v (%d results)", err, len(moved))
	}
	if moved[0].Entry.OriginalCollection != CollectionKnowledge {
		t.Fatalf("archival header lost: %+v", moved[0].Entry)
	}
	for i := range results[0].Embedding {
		if moved[0].Embedding[i] != results[0].Embedding[i] {
			t.Fatal("embedding changed across Put")
		}
	}
}

func TestCorruptStoreMovedAsideAndRecreated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")

	// Persist a store, then wreck it: a regular file where the store
	// directory should be makes chromem refuse to open.
	first := New(path, false, embed.NewMockEmbedder(64))
	if err := first.Add(ctx, CollectionKnowledge, NewEntry("u1", TypeConcept, "survives restarts", "s1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("remove store: %v", err)
	}
	if err := os.WriteFile(path, []byte("not a vector store"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	s := New(path, false, embed.NewMockEmbedder(64))
	entry := NewEntry("u1", TypeConcept, "fresh after recovery", "s1")
	if err := s.Add(ctx, CollectionKnowledge, entry); err != nil {
		t.Fatalf("Add after corruption: %v", err)
	}
	got, err := s.Get(ctx, CollectionKnowledge, entry.ID)
	if err != nil || got == nil {
		t.Fatalf("Get after recovery: %v", err)
	}

	backups, err := filepath.Glob(path + ".corrupt-*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("backups = %v, want exactly one", backups)
	}
}

func TestConcurrentFirstUseInitializesOnce(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "vectors"), false, embed.NewMockEmbedder(64))

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := NewEntry("u1", TypeConcept, fmt.Sprintf("concurrent entry %d", i), "s1")
			errs[i] = s.Add(ctx, CollectionKnowledge, e)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}
	count, err := s.Count(CollectionKnowledge)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != writers {
		t.Fatalf("count = %d, want %d", count, writers)
	}
}
