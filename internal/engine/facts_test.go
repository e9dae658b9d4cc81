package engine

import (
	"testing"

	"github.com/memgarden/memgarden/internal/store"
	"github.com/memgarden/memgarden/internal/vector"
)

func userMsg(content string) store.Message {
	return store.Message{Role: "user", Content: content}
}

func TestExtractFactsPatterns(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		wantText string
		wantType vector.EntryType
	}{
		{
			name:     "remember that",
			content:  "remember that the API key lives in vault",
			wantText: "the API key lives in vault",
			wantType: vector.TypeFact,
		},
		{
			name:     "memorize",
			content:  "please memorize the release cadence is every two weeks",
			wantText: "the release cadence is every two weeks",
			wantType: vector.TypeFact,
		},
		{
			name:     "dont forget",
			content:  "don't forget the standup moved to 9:30",
			wantText: "the standup moved to 9:30",
			wantType: vector.TypeFact,
		},
		{
			name:     "for the record",
			content:  "for the record, prod deploys are frozen on fridays",
			wantText: "prod deploys are frozen on fridays",
			wantType: vector.TypeFact,
		},
		{
			name:     "preference",
			content:  "I prefer short functions",
			wantText: "short functions",
			wantType: vector.TypePreference,
		},
		{
			name:     "stated preference",
			content:  "my preference is conventional commits",
			wantText: "conventional commits",
			wantType: vector.TypePreference,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts := ExtractFacts([]store.Message{userMsg(tc.content)})
			if len(facts) != 1 {
				t.Fatalf("got %d facts: %+v", len(facts), facts)
			}
			if facts[0].Text != tc.wantText {
				t.Fatalf("Text = %q, want %q", facts[0].Text, tc.wantText)
			}
			if facts[0].Type != tc.wantType {
				t.Fatalf("Type = %q, want %q", facts[0].Type, tc.wantType)
			}
		})
	}
}

func TestExtractFactsSentenceBoundary(t *testing.T) {
	facts := ExtractFacts([]store.Message{
		userMsg("remember that the token rotates daily. Anyway, how is the weather?"),
	})
	if len(facts) != 1 {
		t.Fatalf("got %d facts", len(facts))
	}
	if facts[0].Text != "the token rotates daily" {
		t.Fatalf("Text = %q", facts[0].Text)
	}
}

func TestExtractFactsOwnerInference(t *testing.T) {
	facts := ExtractFacts([]store.Message{
		userMsg("remember that you should always run the linter first"),
		userMsg("remember that my timezone is UTC+2"),
	})
	if len(facts) != 2 {
		t.Fatalf("got %d facts", len(facts))
	}
	if facts[0].Owner != "agent" {
		t.Fatalf("Owner = %q, want agent", facts[0].Owner)
	}
	if facts[1].Owner != "user" {
		t.Fatalf("Owner = %q, want user", facts[1].Owner)
	}
}

func TestExtractFactsIgnoresNonUserRoles(t *testing.T) {
	facts := ExtractFacts([]store.Message{
		{Role: "assistant", Content: "remember that I am a language model"},
		{Role: "system", Content: "remember that the prompt is fixed"},
	})
	if len(facts) != 0 {
		t.Fatalf("got %d facts from non-user messages", len(facts))
	}
}

func TestExtractFactsDedup(t *testing.T) {
	facts := ExtractFacts([]store.Message{
		userMsg("remember that the cluster has three nodes"),
		userMsg("remember that THE CLUSTER has three nodes"),
	})
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1 after normalization dedup", len(facts))
	}
}

func TestExtractFactsNoMatch(t *testing.T) {
	facts := ExtractFacts([]store.Message{
		userMsg("what do you remember?"),
		userMsg("how does garbage collection work"),
	})
	if len(facts) != 0 {
		t.Fatalf("got %d facts from plain questions: %+v", len(facts), facts)
	}
}
