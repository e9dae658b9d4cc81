package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/memgarden/memgarden/internal/score"
	"github.com/memgarden/memgarden/internal/vector"
)

// ContextSection is one labeled block of retrieved context.
type ContextSection struct {
	Label string   `json:"label"`
	Items []string `json:"items"`
}

// Context is the assembled multi-source context for prompt building.
type Context struct {
	Sections []ContextSection `json:"sections"`
}

// RetrieveContext merges recent session messages, stored preferences,
// past conversations whose titles overlap the query, and weighted-ranked
// concepts into ordered sections. Each source fails independently: an
// error is logged and its section left out, never blocking the others.
func (e *Engine) RetrieveContext(ctx context.Context, userID, agentID, sessionID, query string) (*Context, error) {
	out := &Context{}

	if sessionID != "" {
		if items, err := e.recentMessages(sessionID); err != nil {
			log.Printf("engine: context stm failed: %v", err)
		} else if len(items) > 0 {
			out.Sections = append(out.Sections, ContextSection{Label: "recent_messages", Items: items})
		}
	}

	if items, err := e.activePreferences(ctx, userID); err != nil {
		log.Printf("engine: context preferences failed: %v", err)
	} else if len(items) > 0 {
		out.Sections = append(out.Sections, ContextSection{Label: "preferences", Items: items})
	}

	if query != "" {
		if items, err := e.matchingConversations(userID, query); err != nil {
			log.Printf("engine: context archives failed: %v", err)
		} else if len(items) > 0 {
			out.Sections = append(out.Sections, ContextSection{Label: "conversations", Items: items})
		}

		if items, err := e.rankedConcepts(ctx, userID, query); err != nil {
			log.Printf("engine: context concepts failed: %v", err)
		} else if len(items) > 0 {
			out.Sections = append(out.Sections, ContextSection{Label: "concepts", Items: items})
		}
	}

	return out, nil
}

func (e *Engine) recentMessages(sessionID string) ([]string, error) {
	messages, err := e.db.GetRecentMessages(sessionID, e.cfg.Garden.RecentMessages)
	if err != nil {
		return nil, err
	}
	items := make([]string, 0, len(messages))
	for _, m := range messages {
		items = append(items, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return items, nil
}

func (e *Engine) activePreferences(ctx context.Context, userID string) ([]string, error) {
	results, err := e.vectors.Scan(ctx, vector.CollectionKnowledge, vector.Filter{
		"user_id":    userID,
		"type":       string(vector.TypePreference),
		"confidence": map[string]any{"$gte": e.cfg.Scoring.ConfidenceFloor},
	})
	if err != nil {
		return nil, err
	}
	items := make([]string, 0, len(results))
	for _, r := range results {
		items = append(items, r.Entry.Text)
	}
	sort.Strings(items)
	return items, nil
}

// matchingConversations scores past sessions by how many query keywords
// their titles contain, with a bonus for sessions already consolidated
// into knowledge. The keyword score is damped by session age on the
// configured half-life, so an old conversation needs more overlap to
// outrank a recent one.
func (e *Engine) matchingConversations(userID, query string) ([]string, error) {
	keywords := score.Keywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}
	sessions, err := e.db.SessionsForUser(userID, 100)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	type hit struct {
		title string
		score float64
	}
	var hits []hit
	for i := range sessions {
		s := &sessions[i]
		if s.Title == "" {
			continue
		}
		title := strings.ToLower(s.Title)
		n := 0
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		if s.Consolidated() {
			n++
		}
		age := now.Sub(time.UnixMilli(s.StartedAt)).Hours() / 24
		hits = append(hits, hit{title: s.Title, score: float64(n) * score.RecencyDecay(age, e.cfg.Scoring.HalfLifeDays)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > 5 {
		hits = hits[:5]
	}
	items := make([]string, len(hits))
	for i, h := range hits {
		items[i] = h.title
	}
	return items, nil
}

// rankedConcepts is the LTM arm: weighted-ranked concepts for the query.
// Delivered entries are touched, so their usage feeds future ranking.
func (e *Engine) rankedConcepts(ctx context.Context, userID, query string) ([]string, error) {
	scored, err := e.SearchKnowledge(ctx, userID, query, 5, vector.TypeConcept)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	items := make([]string, 0, len(scored))
	for _, s := range scored {
		s.Entry.Touch(now)
		if err := e.vectors.Put(ctx, vector.CollectionKnowledge, s.Entry, s.embedding); err != nil {
			log.Printf("engine: usage update failed for entry %s: %v", s.Entry.ID, err)
		} else {
			if err := e.vectors.Put(ctx, vector.CollectionRetrieval, s.Entry, s.embedding); err != nil {
				log.Printf("engine: usage mirror failed for entry %s: %v", s.Entry.ID, err)
			}
			e.cache.Invalidate(s.Entry.ID)
		}
		items = append(items, s.Entry.Text)
	}
	return items, nil
}
