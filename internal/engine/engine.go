// Package engine ties the stores, scorer and collaborators together into
// the memory pipeline: consolidation, recall tracking, retrieval, and
// garbage collection.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/memgarden/memgarden/internal/config"
	"github.com/memgarden/memgarden/internal/notify"
	"github.com/memgarden/memgarden/internal/score"
	"github.com/memgarden/memgarden/internal/store"
	"github.com/memgarden/memgarden/internal/summarize"
	"github.com/memgarden/memgarden/internal/vector"
)

// Engine owns the memory pipeline. All methods are safe for concurrent
// use; entry metadata updates are last-write-wins.
type Engine struct {
	db         *store.DB
	vectors    *vector.Store
	cache      *score.Cache
	hub        *notify.Hub
	summarizer summarize.Summarizer
	cfg        config.Config

	cron       *cron.Cron
	tending    atomic.Bool
	collecting atomic.Bool
}

// New wires an engine. hub and summarizer may be nil; the features that
// need them degrade to no-ops.
func New(db *store.DB, vectors *vector.Store, cache *score.Cache, hub *notify.Hub, summarizer summarize.Summarizer, cfg config.Config) *Engine {
	return &Engine{
		db:         db,
		vectors:    vectors,
		cache:      cache,
		hub:        hub,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

// StartScheduler registers the configured tend and GC cron jobs and starts
// the scheduler. Empty schedules disable the corresponding job.
func (e *Engine) StartScheduler() error {
	tendSpec := e.cfg.Garden.TendSchedule
	gcSpec := e.cfg.Garden.GCSchedule
	if tendSpec == "" && gcSpec == "" {
		return nil
	}

	e.cron = cron.New()
	if tendSpec != "" {
		if _, err := e.cron.AddFunc(tendSpec, e.scheduledTend); err != nil {
			return fmt.Errorf("tend schedule %q: %w", tendSpec, err)
		}
	}
	if gcSpec != "" {
		if _, err := e.cron.AddFunc(gcSpec, e.scheduledGC); err != nil {
			return fmt.Errorf("gc schedule %q: %w", gcSpec, err)
		}
	}
	e.cron.Start()
	log.Printf("engine: scheduler started (tend=%q gc=%q)", tendSpec, gcSpec)
	return nil
}

// StopScheduler stops the cron scheduler and waits for running jobs.
func (e *Engine) StopScheduler() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
}

// scheduledTend runs a tend batch unless one is already in flight.
func (e *Engine) scheduledTend() {
	if !e.tending.CompareAndSwap(false, true) {
		log.Printf("engine: tend already running, skipping scheduled run")
		return
	}
	defer e.tending.Store(false)

	report, err := e.TendGarden(context.Background(), 0)
	if err != nil {
		log.Printf("engine: scheduled tend failed: %v", err)
		return
	}
	if report.SessionsProcessed > 0 {
		log.Printf("engine: scheduled tend processed %d sessions, %d new concepts",
			report.SessionsProcessed, report.NewConcepts)
	}
}

// scheduledGC archives inactive entries from the knowledge collection.
func (e *Engine) scheduledGC() {
	if !e.collecting.CompareAndSwap(false, true) {
		log.Printf("engine: gc already running, skipping scheduled run")
		return
	}
	defer e.collecting.Store(false)

	report, err := e.RunGC(context.Background(), vector.CollectionKnowledge, 0, false)
	if err != nil {
		log.Printf("engine: scheduled gc failed: %v", err)
		return
	}
	if report.Archived > 0 {
		log.Printf("engine: scheduled gc archived %d of %d entries", report.Archived, report.Scanned)
	}
}
