// Package summarize turns finished session transcripts into the summary,
// concept and entity fields the consolidation pipeline stores.
package summarize

import (
	"context"
	"fmt"

	"github.com/memgarden/memgarden/internal/config"
)

// Result is the structured output of summarizing a transcript.
type Result struct {
	Summary    string   `json:"summary"`
	Concepts   []string `json:"concepts"`
	Entities   []string `json:"entities"`
	TokensUsed int      `json:"-"`
}

// Summarizer extracts a Result from a session transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*Result, error)
}

// New creates a summarizer from config. An empty provider disables
// summarization and returns nil; consolidation still runs, sessions just
// keep empty NLP fields.
func New(cfg config.SummarizeConfig) (Summarizer, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic summarizer requires an API key")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "mock":
		return &Mock{}, nil
	default:
		return nil, fmt.Errorf("unknown summarize provider: %q", cfg.Provider)
	}
}
