package engine

import (
	"regexp"
	"strings"

	"github.com/memgarden/memgarden/internal/store"
	"github.com/memgarden/memgarden/internal/vector"
)

// Fact is an explicit declaration extracted from message text.
type Fact struct {
	Text  string
	Type  vector.EntryType
	Owner string // "user" or "agent"
}

// Declaration patterns. The capture group is the payload to remember.
var factPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:remember|memorize|note)(?:\s+that)?[\s:]+(.{3,300})`),
	regexp.MustCompile(`(?i)\bdon't forget(?:\s+that)?[\s:]+(.{3,300})`),
	regexp.MustCompile(`(?i)\bfor the record[,:\s]+(.{3,300})`),
}

var preferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bi (?:prefer|always use|never use)\s+(.{3,200})`),
	regexp.MustCompile(`(?i)\bmy preference is\s+(.{3,200})`),
}

// ExtractFacts scans user messages for explicit remember-this declarations
// and stated preferences. The owner is inferred from the sentence: payloads
// addressed at the assistant belong to the agent, everything else to the
// user.
func ExtractFacts(messages []store.Message) []Fact {
	var facts []Fact
	seen := make(map[string]bool)

	add := func(text string, typ vector.EntryType) {
		text = trimFact(text)
		if text == "" {
			return
		}
		key := vector.NormalizeText(text)
		if seen[key] {
			return
		}
		seen[key] = true
		facts = append(facts, Fact{Text: text, Type: typ, Owner: inferOwner(text)})
	}

	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		for _, line := range strings.Split(m.Content, "\n") {
			for _, p := range factPatterns {
				if match := p.FindStringSubmatch(line); match != nil {
					add(match[1], vector.TypeFact)
				}
			}
			for _, p := range preferencePatterns {
				if match := p.FindStringSubmatch(line); match != nil {
					add(match[1], vector.TypePreference)
				}
			}
		}
	}
	return facts
}

func trimFact(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimRight(text, ".!?,;")
	// Cut at sentence boundary so trailing chatter is not memorized.
	if i := strings.IndexAny(text, ".!?"); i > 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func inferOwner(text string) string {
	lower := " " + strings.ToLower(text) + " "
	for _, marker := range []string{" you ", " your ", " you're ", " yourself "} {
		if strings.Contains(lower, marker) {
			return "agent"
		}
	}
	return "user"
}
