package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/memgarden/memgarden/internal/metrics"
	"github.com/memgarden/memgarden/internal/vector"
)

// GCReport describes one garbage collection pass.
type GCReport struct {
	Collection  string   `json:"collection"`
	Scanned     int      `json:"scanned"`
	Archived    int      `json:"archived"`
	Retained    int      `json:"retained"`
	DryRun      bool     `json:"dry_run"`
	ArchivedIDs []string `json:"archived_ids,omitempty"`
}

// RunGC moves entries idle longer than inactiveAfterDays into the paired
// archive collection. Inactivity comes from last_used_at, falling back to
// created_at; an entry with neither date is archived unconditionally.
// With dryRun the identical scan runs and the report is filled, but
// nothing is written or deleted.
func (e *Engine) RunGC(ctx context.Context, collection string, inactiveAfterDays int, dryRun bool) (*GCReport, error) {
	if collection == "" {
		collection = vector.CollectionKnowledge
	}
	if inactiveAfterDays <= 0 {
		inactiveAfterDays = e.cfg.Garden.InactiveAfterDays
	}

	results, err := e.vectors.Scan(ctx, collection, nil)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}

	report := &GCReport{Collection: collection, Scanned: len(results), DryRun: dryRun}
	now := time.Now()
	archive := vector.ArchiveName(collection)

	for _, r := range results {
		entry := r.Entry
		if !gcCandidate(entry, now, inactiveAfterDays) {
			report.Retained++
			continue
		}
		report.Archived++
		report.ArchivedIDs = append(report.ArchivedIDs, entry.ID)
		if dryRun {
			continue
		}

		entry.ArchivedAt = now.UnixMilli()
		entry.OriginalCollection = collection
		if err := e.vectors.Put(ctx, archive, entry, r.Embedding); err != nil {
			log.Printf("engine: gc archive failed for entry %s: %v", entry.ID, err)
			report.Archived--
			report.Retained++
			report.ArchivedIDs = report.ArchivedIDs[:len(report.ArchivedIDs)-1]
			continue
		}
		if err := e.vectors.DeleteByID(ctx, collection, entry.ID); err != nil {
			log.Printf("engine: gc delete failed for entry %s: %v", entry.ID, err)
			continue
		}
		e.cache.Invalidate(entry.ID)
		metrics.GCArchived.WithLabelValues(collection).Inc()
	}
	return report, nil
}

// gcCandidate reports whether the entry is idle past the cutoff.
func gcCandidate(entry *vector.Entry, now time.Time, inactiveAfterDays int) bool {
	last := entry.LastUsedAt
	if last == 0 {
		last = entry.CreatedAt
	}
	if last == 0 {
		return true
	}
	idleDays := float64(now.UnixMilli()-last) / float64(24*time.Hour/time.Millisecond)
	return idleDays > float64(inactiveAfterDays)
}

// Restore moves an archived entry back to its original collection with
// the archival fields stripped. The archive collections of both standard
// collections are searched when the caller does not name one.
func (e *Engine) Restore(ctx context.Context, entryID string) error {
	for _, source := range []string{vector.CollectionKnowledge, vector.CollectionRetrieval} {
		archive := vector.ArchiveName(source)
		results, err := e.vectors.Scan(ctx, archive, nil)
		if err != nil {
			log.Printf("engine: restore scan of %s failed: %v", archive, err)
			continue
		}
		for _, r := range results {
			if r.Entry.ID != entryID {
				continue
			}
			entry := r.Entry
			target := entry.OriginalCollection
			if target == "" {
				target = source
			}
			entry.ArchivedAt = 0
			entry.OriginalCollection = ""
			if err := e.vectors.Put(ctx, target, entry, r.Embedding); err != nil {
				return fmt.Errorf("restore entry %s: %w", entryID, err)
			}
			if err := e.vectors.DeleteByID(ctx, archive, entryID); err != nil {
				return fmt.Errorf("remove archived entry %s: %w", entryID, err)
			}
			metrics.GCRestored.Inc()
			return nil
		}
	}
	return fmt.Errorf("entry %s not found in any archive", entryID)
}
