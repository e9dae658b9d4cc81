// Package vector persists knowledge entries in an embedded vector database
// and layers the metadata filter language on top of it.
package vector

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/memgarden/memgarden/internal/embed"
)

const (
	// CollectionKnowledge holds consolidated long-term entries.
	CollectionKnowledge = "knowledge"
	// CollectionRetrieval holds the secondary retrieval-optimized copies.
	CollectionRetrieval = "retrieval"
	// ArchiveSuffix marks the parallel collection entries are moved to
	// when garbage collection retires them.
	ArchiveSuffix = "_archived"
)

// ArchiveName returns the archive collection paired with name.
func ArchiveName(name string) string {
	return name + ArchiveSuffix
}

// Result is a stored entry plus the similarity of the query that found it.
// Scan results carry the stored embedding so entries can be moved between
// collections without re-embedding.
type Result struct {
	Entry      *Entry
	Similarity float64
	Embedding  []float32
}

// Store wraps a chromem database. Opening is lazy: the first operation that
// needs the database initializes it, and an unreadable store directory is
// moved aside and recreated rather than taking every request down with it.
type Store struct {
	path     string
	compress bool
	embedder embed.Embedder

	mu   sync.RWMutex
	db   *chromem.DB
	cols map[string]*chromem.Collection
}

// New returns a store persisted under path. No I/O happens until first use.
func New(path string, compress bool, embedder embed.Embedder) *Store {
	return &Store{
		path:     path,
		compress: compress,
		embedder: embedder,
		cols:     make(map[string]*chromem.Collection),
	}
}

// NewInMemory returns a store with no persistence, for tests and ephemeral
// runs.
func NewInMemory(embedder embed.Embedder) *Store {
	return &Store{
		embedder: embedder,
		cols:     make(map[string]*chromem.Collection),
	}
}

func (s *Store) ensureDB() (*chromem.DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	if s.path == "" {
		s.db = chromem.NewDB()
		return s.db, nil
	}

	db, err := chromem.NewPersistentDB(s.path, s.compress)
	if err != nil {
		// A partially written or corrupt store would otherwise block
		// startup forever. Move it aside and start fresh; the backup
		// stays on disk for manual recovery.
		backup := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().Format("20060102-150405"))
		log.Printf("vector: store at %s unreadable (%v), moving aside to %s", s.path, err, backup)
		if mvErr := os.Rename(s.path, backup); mvErr != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		db, err = chromem.NewPersistentDB(s.path, s.compress)
		if err != nil {
			return nil, fmt.Errorf("recreate vector store: %w", err)
		}
	}
	s.db = db
	return db, nil
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	col := s.cols[name]
	s.mu.RUnlock()
	if col != nil {
		return col, nil
	}

	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col := s.cols[name]; col != nil {
		return col, nil
	}
	col, err = db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	s.cols[name] = col
	return col, nil
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

// Add validates, embeds and upserts entries into the named collection.
// Entries share their content-hash ID, so writing the same text twice for
// the same user overwrites in place.
func (s *Store) Add(ctx context.Context, collection string, entries ...*Entry) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		vec, err := s.embedder.Embed(ctx, e.Text)
		if err != nil {
			return fmt.Errorf("embed entry %s: %w", e.ID, err)
		}
		doc := chromem.Document{
			ID:        e.ID,
			Content:   e.Text,
			Embedding: vec,
			Metadata:  e.Metadata(),
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// Put upserts an entry with a known embedding, skipping the embedder. Used
// when entries move between collections.
func (s *Store) Put(ctx context.Context, collection string, e *Entry, embedding []float32) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        e.ID,
		Content:   e.Text,
		Embedding: embedding,
		Metadata:  e.Metadata(),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("put entry %s: %w", e.ID, err)
	}
	return nil
}

// Query embeds text and returns up to k filtered matches, most similar
// first. k is clamped to the collection size; an empty collection returns
// no results and no error.
func (s *Store) Query(ctx context.Context, collection, text string, k int, filter Filter) ([]Result, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.QueryEmbedding(ctx, collection, vec, k, filter)
}

// QueryEmbedding is Query with a precomputed vector.
func (s *Store) QueryEmbedding(ctx context.Context, collection string, vec []float32, k int, filter Filter) ([]Result, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	// Filtering happens after the query. chromem's where clause caps
	// nResults at the filtered count, which is unknowable up front, so
	// over-fetch to the collection size instead and match the tree here.
	n := k
	if filter != nil {
		n = count
	}
	if n > count {
		n = count
	}
	raw, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	results := make([]Result, 0, k)
	for _, r := range raw {
		e := entryFromMetadata(r.ID, r.Content, r.Metadata)
		if filter != nil && !filter.Matches(r.Metadata) {
			continue
		}
		results = append(results, Result{
			Entry:      e,
			Similarity: float64(r.Similarity),
			Embedding:  r.Embedding,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Scan enumerates every entry in the collection matching filter. chromem
// has no list primitive, so this queries with a probe vector and k equal
// to the collection size; similarity in the results is meaningless.
func (s *Store) Scan(ctx context.Context, collection string, filter Filter) ([]Result, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	probe := make([]float32, s.embedder.Dimensions())
	probe[0] = 1
	raw, err := col.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		if filter != nil && !filter.Matches(r.Metadata) {
			continue
		}
		results = append(results, Result{
			Entry:     entryFromMetadata(r.ID, r.Content, r.Metadata),
			Embedding: r.Embedding,
		})
	}
	return results, nil
}

// Get returns the entry with the given ID, or nil if absent. chromem has
// no point lookup, so this is a scan and match.
func (s *Store) Get(ctx context.Context, collection, id string) (*Entry, error) {
	results, err := s.Scan(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Entry.ID == id {
			return r.Entry, nil
		}
	}
	return nil, nil
}

// DeleteByID removes entries by ID. Missing IDs are not an error.
func (s *Store) DeleteByID(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

// DeleteMatching removes every entry matching filter and returns how many
// were removed. The filter must name at least one concrete value; an
// ambiguous filter is rejected rather than interpreted as match-all.
func (s *Store) DeleteMatching(ctx context.Context, collection string, filter Filter) (int, error) {
	if filter == nil {
		return 0, ErrAmbiguousFilter
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	results, err := s.Scan(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Entry.ID
	}
	if err := s.DeleteByID(ctx, collection, ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Count returns the number of entries in the collection.
func (s *Store) Count(collection string) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Embedder exposes the store's embedder for callers that score raw text.
func (s *Store) Embedder() embed.Embedder {
	return s.embedder
}
