package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memgarden/memgarden/internal/engine"
	"github.com/memgarden/memgarden/internal/notify"
	"github.com/memgarden/memgarden/internal/score"
	"github.com/memgarden/memgarden/internal/server"
	"github.com/memgarden/memgarden/internal/store"
	"github.com/memgarden/memgarden/internal/summarize"
	"github.com/memgarden/memgarden/internal/vector"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return fmt.Errorf("resolve db path: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cache, err := score.NewCache(cfg.Scoring.CacheCapacity, time.Duration(cfg.Scoring.CacheTTLSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("create score cache: %w", err)
	}
	defer cache.Close()

	embedder := resolveEmbedder(cfg)
	vectors := vector.New(resolveVectorPath(cfg, dbPath), cfg.Vector.Compress, embedder)

	summarizer, err := summarize.New(cfg.Summarize)
	if err != nil {
		return fmt.Errorf("create summarizer: %w", err)
	}
	if summarizer == nil {
		fmt.Fprintln(os.Stderr, "warning: summarizer not configured, sessions keep empty summaries")
	} else {
		fmt.Fprintf(os.Stderr, "  summarizer: %s (%s)\n", cfg.Summarize.Provider, cfg.Summarize.Model)
	}

	hub := notify.NewHub()
	defer hub.Close()

	eng := engine.New(db, vectors, cache, hub, summarizer, cfg)
	if err := eng.StartScheduler(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer eng.StopScheduler()

	srv := server.New(db, eng, hub, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "memgarden serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  embedder: %s\n", embedder.Model())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
