package summarize

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a conversation summarization system for a long-term memory store. You respond with JSON only.`

func summarizePrompt(transcript string) string {
	return fmt.Sprintf(`Analyze this conversation transcript and extract its essence for long-term storage.

TRANSCRIPT:
%s

Extract:
- summary: 2-4 sentences capturing what the conversation was about and what was decided
- concepts: recurring topics, techniques, or subjects worth remembering (short noun phrases)
- entities: people, projects, tools, or services mentioned by name

Rules:
- Only include genuinely useful, persistent knowledge
- Skip greetings, filler, and session-specific trivia
- Maximum 10 concepts and 10 entities
- Return ONLY a JSON object, no other text

Return a JSON object:
{"summary": "...", "concepts": ["..."], "entities": ["..."]}

If the transcript has no durable content, return: {"summary": "", "concepts": [], "entities": []}`, transcript)
}

// parseResult decodes the model's JSON reply. Models sometimes wrap JSON in
// a markdown fence despite instructions, so fences are stripped first.
func parseResult(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse summarizer reply: %w", err)
	}
	return &result, nil
}
