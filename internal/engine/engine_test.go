package engine

import (
	"testing"
	"time"

	"github.com/memgarden/memgarden/internal/config"
	"github.com/memgarden/memgarden/internal/embed"
	"github.com/memgarden/memgarden/internal/score"
	"github.com/memgarden/memgarden/internal/store"
	"github.com/memgarden/memgarden/internal/summarize"
	"github.com/memgarden/memgarden/internal/vector"
)

// testEngine builds an engine on in-memory stores with a deterministic
// embedder and no scheduler.
func testEngine(t *testing.T, summarizer summarize.Summarizer) *Engine {
	t.Helper()

	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cache, err := score.NewCache(128, time.Minute)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(cache.Close)

	vectors := vector.NewInMemory(embed.NewMockEmbedder(64))
	return New(db, vectors, cache, nil, summarizer, config.Default())
}

func TestSchedulerLifecycle(t *testing.T) {
	e := testEngine(t, nil)
	if err := e.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler: %v", err)
	}
	e.StopScheduler()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	e := testEngine(t, nil)
	e.cfg.Garden.TendSchedule = "not a cron spec"
	if err := e.StartScheduler(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestSchedulerDisabled(t *testing.T) {
	e := testEngine(t, nil)
	e.cfg.Garden.TendSchedule = ""
	e.cfg.Garden.GCSchedule = ""
	if err := e.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler with empty schedules: %v", err)
	}
	if e.cron != nil {
		t.Fatal("scheduler should stay nil when disabled")
	}
	e.StopScheduler()
}
