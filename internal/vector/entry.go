package vector

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntryType classifies what kind of knowledge an entry holds.
type EntryType string

const (
	TypeConcept    EntryType = "concept"
	TypeFact       EntryType = "fact"
	TypePreference EntryType = "preference"
	TypeIntent     EntryType = "intent"
	TypeConstraint EntryType = "constraint"
)

// ValidType reports whether t is one of the known entry types.
func ValidType(t EntryType) bool {
	switch t {
	case TypeConcept, TypeFact, TypePreference, TypeIntent, TypeConstraint:
		return true
	}
	return false
}

// Entry is a single unit of long-term knowledge. The ID is a content hash
// scoped to the owning user, so re-learning the same text is an upsert
// rather than a duplicate.
type Entry struct {
	ID        string
	Text      string
	Type      EntryType
	UserID    string
	SessionID string // session the entry was first learned in

	CreatedAt        int64 // unix milliseconds
	FirstMentionedAt int64
	LastMentionedAt  int64
	MentionCount     int
	ThreadIDs        []string

	Vitality   float64
	LastUsedAt int64
	UseCount   int
	Confidence float64

	// Set only while an entry sits in an archive collection.
	ArchivedAt         int64
	OriginalCollection string
}

// NewEntry builds an entry for text learned in the given session. Timestamps
// default to now; mention bookkeeping starts at one.
func NewEntry(userID string, typ EntryType, text, sessionID string) *Entry {
	now := time.Now().UnixMilli()
	e := &Entry{
		ID:               EntryID(userID, text),
		Text:             text,
		Type:             typ,
		UserID:           userID,
		SessionID:        sessionID,
		CreatedAt:        now,
		FirstMentionedAt: now,
		LastMentionedAt:  now,
		MentionCount:     1,
		Vitality:         0.5,
	}
	if sessionID != "" {
		e.ThreadIDs = []string{sessionID}
	}
	return e
}

// EntryID derives the deterministic hash identity of an entry from its
// owner and normalized text.
func EntryID(userID, text string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText lowercases and collapses whitespace so that trivial
// formatting differences hash to the same identity.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Validate checks the invariants that must hold before an entry is written.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("entry %s: empty text", e.ID)
	}
	if e.UserID == "" {
		return fmt.Errorf("entry %s: missing user_id", e.ID)
	}
	if !ValidType(e.Type) {
		return fmt.Errorf("entry %s: unknown type %q", e.ID, e.Type)
	}
	if e.Vitality < 0 || e.Vitality > 1 {
		return fmt.Errorf("entry %s: vitality %v out of range", e.ID, e.Vitality)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("entry %s: confidence %v out of range", e.ID, e.Confidence)
	}
	return nil
}

// RecordMention updates the recurrence bookkeeping for a fresh sighting of
// this entry in the given thread. Vitality grows by inc but never past 1.
func (e *Entry) RecordMention(threadID string, now time.Time, inc float64) {
	e.MentionCount++
	e.LastMentionedAt = now.UnixMilli()
	if e.FirstMentionedAt == 0 {
		e.FirstMentionedAt = e.LastMentionedAt
	}
	if threadID != "" && !e.SeenInThread(threadID) {
		e.ThreadIDs = append(e.ThreadIDs, threadID)
	}
	e.Vitality += inc
	if e.Vitality > 1 {
		e.Vitality = 1
	}
}

// Touch marks the entry as used by a retrieval, advancing the coherency
// token that keys cached scores.
func (e *Entry) Touch(now time.Time) {
	e.LastUsedAt = now.UnixMilli()
	e.UseCount++
}

// SeenInThread reports whether threadID is already recorded.
func (e *Entry) SeenInThread(threadID string) bool {
	for _, id := range e.ThreadIDs {
		if id == threadID {
			return true
		}
	}
	return false
}

// CoherencyToken identifies the entry's current usage state. Cached scores
// embed it, so any Touch silently expires them.
func (e *Entry) CoherencyToken() string {
	return strconv.FormatInt(e.LastUsedAt, 10)
}

// AgeDays is the time since creation, in fractional days.
func (e *Entry) AgeDays(now time.Time) float64 {
	return float64(now.UnixMilli()-e.CreatedAt) / float64(24*time.Hour/time.Millisecond)
}

// IdleDays is the time since the entry was last mentioned or used,
// whichever is more recent.
func (e *Entry) IdleDays(now time.Time) float64 {
	last := e.LastMentionedAt
	if e.LastUsedAt > last {
		last = e.LastUsedAt
	}
	if last == 0 {
		last = e.CreatedAt
	}
	return float64(now.UnixMilli()-last) / float64(24*time.Hour/time.Millisecond)
}

// Metadata flattens the entry header into the string map the vector store
// persists alongside the document.
func (e *Entry) Metadata() map[string]string {
	md := map[string]string{
		"user_id":            e.UserID,
		"type":               string(e.Type),
		"created_at":         strconv.FormatInt(e.CreatedAt, 10),
		"first_mentioned_at": strconv.FormatInt(e.FirstMentionedAt, 10),
		"last_mentioned_at":  strconv.FormatInt(e.LastMentionedAt, 10),
		"mention_count":      strconv.Itoa(e.MentionCount),
		"vitality":           strconv.FormatFloat(e.Vitality, 'f', -1, 64),
		"last_used_at":       strconv.FormatInt(e.LastUsedAt, 10),
		"use_count":          strconv.Itoa(e.UseCount),
		"confidence":         strconv.FormatFloat(e.Confidence, 'f', -1, 64),
	}
	if e.SessionID != "" {
		md["session_id"] = e.SessionID
	}
	if len(e.ThreadIDs) > 0 {
		if b, err := json.Marshal(e.ThreadIDs); err == nil {
			md["thread_ids"] = string(b)
		}
	}
	if e.ArchivedAt != 0 {
		md["archived_at"] = strconv.FormatInt(e.ArchivedAt, 10)
	}
	if e.OriginalCollection != "" {
		md["original_collection"] = e.OriginalCollection
	}
	return md
}

// entryFromMetadata rebuilds an Entry from a stored document. Unparseable
// numeric fields decode to zero; reads never fail on a single bad header.
func entryFromMetadata(id, text string, md map[string]string) *Entry {
	e := &Entry{
		ID:                 id,
		Text:               text,
		Type:               EntryType(md["type"]),
		UserID:             md["user_id"],
		SessionID:          md["session_id"],
		CreatedAt:          parseInt64(md["created_at"]),
		FirstMentionedAt:   parseInt64(md["first_mentioned_at"]),
		LastMentionedAt:    parseInt64(md["last_mentioned_at"]),
		MentionCount:       parseInt(md["mention_count"]),
		Vitality:           parseFloat(md["vitality"]),
		LastUsedAt:         parseInt64(md["last_used_at"]),
		UseCount:           parseInt(md["use_count"]),
		Confidence:         parseFloat(md["confidence"]),
		ArchivedAt:         parseInt64(md["archived_at"]),
		OriginalCollection: md["original_collection"],
	}
	if raw := md["thread_ids"]; raw != "" {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			e.ThreadIDs = ids
		}
	}
	return e
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
