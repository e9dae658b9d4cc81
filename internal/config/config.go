package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all memgarden configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Garden    GardenConfig    `yaml:"garden"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type VectorConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "ollama", "mock"
	OllamaURL  string `yaml:"ollama_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

type SummarizeConfig struct {
	Provider     string `yaml:"provider"` // "anthropic", "mock", "" (disabled)
	Model        string `yaml:"model"`
	AnthropicKey string `yaml:"anthropic_key"`
}

// ScoringConfig controls the weighted-score formula and cache behavior.
type ScoringConfig struct {
	DecayLambda       float64 `yaml:"decay_lambda"`       // exponential age decay rate
	UsageAlpha        float64 `yaml:"usage_alpha"`        // reinforcement per use
	HalfLifeDays      float64 `yaml:"half_life_days"`     // recency decay for document ranking
	RecallThreshold   float64 `yaml:"recall_threshold"`   // recurring-concept similarity floor
	HistoryThreshold  float64 `yaml:"history_threshold"`  // explicit history lookup floor
	ConfidenceFloor   float64 `yaml:"confidence_floor"`   // preference confidence floor
	VitalityIncrement float64 `yaml:"vitality_increment"` // vitality bump per recall
	CacheCapacity     int64   `yaml:"cache_capacity"`
	CacheTTLSeconds   int     `yaml:"cache_ttl_seconds"`
}

// GardenConfig controls background maintenance.
type GardenConfig struct {
	BatchSize         int    `yaml:"batch_size"`          // sessions per tend batch
	TendSchedule      string `yaml:"tend_schedule"`       // cron expression, empty disables
	GCSchedule        string `yaml:"gc_schedule"`         // cron expression, empty disables
	InactiveAfterDays int    `yaml:"inactive_after_days"` // GC archival cutoff
	RecentMessages    int    `yaml:"recent_messages"`     // STM window for retrieval
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Vector: VectorConfig{
			Path: "", // resolved at runtime next to the database
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Summarize: SummarizeConfig{
			Provider: "",
			Model:    "claude-haiku-4-5-20251001",
		},
		Scoring: ScoringConfig{
			DecayLambda:       0.02,
			UsageAlpha:        0.1,
			HalfLifeDays:      30,
			RecallThreshold:   0.75,
			HistoryThreshold:  0.6,
			ConfidenceFloor:   0.6,
			VitalityIncrement: 0.1,
			CacheCapacity:     4096,
			CacheTTLSeconds:   300,
		},
		Garden: GardenConfig{
			BatchSize:         10,
			TendSchedule:      "0 * * * *",  // hourly
			GCSchedule:        "30 3 * * *", // daily, off-peak
			InactiveAfterDays: 180,
			RecentMessages:    20,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
