package summarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/memgarden/memgarden/internal/config"
)

func TestParseResult(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{
			name: "bare json",
			text: `{"summary": "talked about raft", "concepts": ["raft"], "entities": []}`,
			want: "talked about raft",
		},
		{
			name: "fenced json",
			text: "```json\n{\"summary\": \"fenced\", \"concepts\": [], \"entities\": []}\n```",
			want: "fenced",
		},
		{
			name: "fence without language",
			text: "```\n{\"summary\": \"plain fence\", \"concepts\": [], \"entities\": []}\n```",
			want: "plain fence",
		},
		{
			name:    "not json",
			text:    "Sure! Here is the summary you asked for.",
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseResult(tc.text)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResult: %v", err)
			}
			if got.Summary != tc.want {
				t.Fatalf("Summary = %q, want %q", got.Summary, tc.want)
			}
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	if s, err := New(config.SummarizeConfig{}); err != nil || s != nil {
		t.Fatalf("empty provider: got %v, %v; want nil, nil", s, err)
	}
	if _, err := New(config.SummarizeConfig{Provider: "anthropic"}); err == nil {
		t.Fatal("anthropic without key should error")
	}
	if s, err := New(config.SummarizeConfig{Provider: "mock"}); err != nil || s == nil {
		t.Fatalf("mock provider: got %v, %v", s, err)
	}
	if _, err := New(config.SummarizeConfig{Provider: "gpt"}); err == nil {
		t.Fatal("unknown provider should error")
	}
}

func TestAnthropicSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_123",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "{\"summary\": \"planned the garden\", \"concepts\": [\"raised beds\"], \"entities\": [\"memgarden\"]}"}],
			"model": "claude-haiku-4-5-20251001",
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 40, "output_tokens": 20}
		}`))
	}))
	defer srv.Close()

	a := NewAnthropic("test-key", "claude-haiku-4-5-20251001",
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	result, err := a.Summarize(context.Background(), "user: let's plan the garden")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if result.Summary != "planned the garden" {
		t.Fatalf("Summary = %q", result.Summary)
	}
	if len(result.Concepts) != 1 || result.Concepts[0] != "raised beds" {
		t.Fatalf("Concepts = %v", result.Concepts)
	}
	if result.TokensUsed != 60 {
		t.Fatalf("TokensUsed = %d, want 60", result.TokensUsed)
	}
}

func TestAnthropicSummarizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	a := NewAnthropic("test-key", "claude-haiku-4-5-20251001",
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	if _, err := a.Summarize(context.Background(), "anything"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestMockRecordsCalls(t *testing.T) {
	m := &Mock{Result: &Result{Summary: "s", Concepts: []string{"c"}}}
	got, err := m.Summarize(context.Background(), "transcript one")
	if err != nil || got.Summary != "s" {
		t.Fatalf("Summarize: %v, %v", got, err)
	}
	if len(m.Calls) != 1 || m.Calls[0] != "transcript one" {
		t.Fatalf("Calls = %v", m.Calls)
	}
}
