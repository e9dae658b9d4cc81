// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts vector queries by collection.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memgarden_queries_total",
			Help: "Total number of vector queries",
		},
		[]string{"collection"},
	)

	// QueryDuration tracks vector query latency by collection.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memgarden_query_duration_seconds",
			Help:    "Duration of vector queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// CacheEvents counts score cache hits and misses.
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memgarden_score_cache_events_total",
			Help: "Score cache hits and misses",
		},
		[]string{"result"},
	)

	// SessionsConsolidated counts sessions processed by the tend pipeline.
	SessionsConsolidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memgarden_sessions_consolidated_total",
			Help: "Sessions processed by consolidation, by outcome",
		},
		[]string{"outcome"},
	)

	// EntriesWritten counts knowledge entries written during consolidation.
	EntriesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memgarden_entries_written_total",
			Help: "Knowledge entries written by consolidation",
		},
	)

	// RecallEvents counts recurring-concept detections published to
	// subscribers.
	RecallEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memgarden_recall_events_total",
			Help: "Recurring-concept recall events published",
		},
	)

	// GCArchived counts entries moved to archive collections.
	GCArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memgarden_gc_archived_total",
			Help: "Entries archived by garbage collection",
		},
		[]string{"collection"},
	)

	// GCRestored counts entries restored out of archive collections.
	GCRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memgarden_gc_restored_total",
			Help: "Entries restored from archive",
		},
	)
)

// CacheHit and CacheMiss record score cache outcomes.
func CacheHit()  { CacheEvents.WithLabelValues("hit").Inc() }
func CacheMiss() { CacheEvents.WithLabelValues("miss").Inc() }
