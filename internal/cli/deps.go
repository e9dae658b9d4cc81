package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/memgarden/memgarden/internal/config"
	"github.com/memgarden/memgarden/internal/embed"
	"github.com/memgarden/memgarden/internal/engine"
	"github.com/memgarden/memgarden/internal/score"
	"github.com/memgarden/memgarden/internal/store"
	"github.com/memgarden/memgarden/internal/vector"
	"github.com/spf13/cobra"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, err
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Summarize.Provider = "anthropic"
		cfg.Summarize.AnthropicKey = key
	}
	return cfg, nil
}

func resolveDBPath(cfg config.Config) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	return store.DefaultDBPath()
}

// resolveVectorPath puts the vector store next to the database unless the
// config says otherwise.
func resolveVectorPath(cfg config.Config, dbPath string) string {
	if cfg.Vector.Path != "" {
		return cfg.Vector.Path
	}
	return filepath.Join(filepath.Dir(dbPath), "vectors")
}

// resolveEmbedder picks the configured embedder, probing Ollama when that
// is the provider. An unreachable Ollama falls back to the deterministic
// mock embedder so offline commands still work; vectors written by the two
// are not comparable, so the fallback is announced.
func resolveEmbedder(cfg config.Config) embed.Embedder {
	if cfg.Embedding.Provider == "mock" {
		return embed.NewMockEmbedder(cfg.Embedding.Dimensions)
	}
	if embed.ProbeOllama(cfg.Embedding.OllamaURL, cfg.Embedding.Model) {
		return embed.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}
	fmt.Fprintf(os.Stderr, "warning: ollama unreachable at %s, using mock embedder\n", cfg.Embedding.OllamaURL)
	return embed.NewMockEmbedder(cfg.Embedding.Dimensions)
}

// openEngine wires the full pipeline for offline commands. The returned
// cleanup closes the database and cache.
func openEngine() (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve db path: %w", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	cache, err := score.NewCache(cfg.Scoring.CacheCapacity, time.Duration(cfg.Scoring.CacheTTLSeconds)*time.Second)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create score cache: %w", err)
	}

	vectors := vector.New(resolveVectorPath(cfg, dbPath), cfg.Vector.Compress, resolveEmbedder(cfg))
	eng := engine.New(db, vectors, cache, nil, nil, cfg)

	cleanup := func() {
		cache.Close()
		db.Close()
	}
	return eng, cleanup, nil
}

func requireFlags(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		if v, _ := cmd.Flags().GetString(name); v == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}
