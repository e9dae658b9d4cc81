package engine

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/memgarden/memgarden/internal/vector"
)

// Topic is a read-only view of a knowledge entry for listing.
type Topic struct {
	Text            string    `json:"text"`
	Type            string    `json:"type"`
	MentionCount    int       `json:"mention_count"`
	Vitality        float64   `json:"vitality"`
	LastMentionedAt time.Time `json:"last_mentioned_at"`
}

// TimelineBucket groups the topics first learned on one day.
type TimelineBucket struct {
	Day    string  `json:"day"`
	Topics []Topic `json:"topics"`
}

// ListTopics returns a user's knowledge entries ordered by mention count,
// most discussed first. Store failures degrade to an empty list.
func (e *Engine) ListTopics(ctx context.Context, userID string, limit int) ([]Topic, error) {
	if limit <= 0 {
		limit = 50
	}
	results, err := e.vectors.Scan(ctx, vector.CollectionKnowledge, vector.Filter{"user_id": userID})
	if err != nil {
		log.Printf("engine: topic scan failed: %v", err)
		return nil, nil
	}

	topics := make([]Topic, 0, len(results))
	for _, r := range results {
		topics = append(topics, topicFromEntry(r.Entry))
	}
	sort.SliceStable(topics, func(i, j int) bool {
		if topics[i].MentionCount != topics[j].MentionCount {
			return topics[i].MentionCount > topics[j].MentionCount
		}
		return topics[i].LastMentionedAt.After(topics[j].LastMentionedAt)
	})
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics, nil
}

// Timeline groups a user's entries by the day they were first learned,
// newest day first. days <= 0 means no cutoff.
func (e *Engine) Timeline(ctx context.Context, userID string, days int) ([]TimelineBucket, error) {
	results, err := e.vectors.Scan(ctx, vector.CollectionKnowledge, vector.Filter{"user_id": userID})
	if err != nil {
		log.Printf("engine: timeline scan failed: %v", err)
		return nil, nil
	}

	var cutoff int64
	if days > 0 {
		cutoff = time.Now().AddDate(0, 0, -days).UnixMilli()
	}

	byDay := make(map[string][]Topic)
	for _, r := range results {
		entry := r.Entry
		if cutoff > 0 && entry.CreatedAt < cutoff {
			continue
		}
		day := time.UnixMilli(entry.CreatedAt).UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], topicFromEntry(entry))
	}

	dayKeys := make([]string, 0, len(byDay))
	for day := range byDay {
		dayKeys = append(dayKeys, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dayKeys)))

	buckets := make([]TimelineBucket, 0, len(dayKeys))
	for _, day := range dayKeys {
		topics := byDay[day]
		sort.SliceStable(topics, func(i, j int) bool {
			return topics[i].MentionCount > topics[j].MentionCount
		})
		buckets = append(buckets, TimelineBucket{Day: day, Topics: topics})
	}
	return buckets, nil
}

func topicFromEntry(entry *vector.Entry) Topic {
	return Topic{
		Text:            entry.Text,
		Type:            string(entry.Type),
		MentionCount:    entry.MentionCount,
		Vitality:        entry.Vitality,
		LastMentionedAt: time.UnixMilli(entry.LastMentionedAt).UTC(),
	}
}
