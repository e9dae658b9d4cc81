package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/memgarden/memgarden/internal/vector"
)

// ClearReport describes what a memory-clear removed.
type ClearReport struct {
	MessagesDeleted int64 `json:"messages_deleted"`
	EntriesDeleted  int   `json:"entries_deleted"`
}

// ClearMemory erases a session's short-term state and every vector entry
// that originated in it. The operation is scoped by both session and
// owner: a session id alone is never enough, so one user can never clear
// another's entries.
func (e *Engine) ClearMemory(ctx context.Context, sessionID, userID string) (*ClearReport, error) {
	if sessionID == "" || userID == "" {
		return nil, fmt.Errorf("clear requires both session and user identity")
	}

	messages, err := e.db.ClearSessionState(sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("clear session state: %w", err)
	}

	report := &ClearReport{MessagesDeleted: messages}
	filter := vector.Filter{
		"$and": []vector.Filter{
			{"user_id": userID},
			{"session_id": sessionID},
		},
	}
	for _, collection := range []string{vector.CollectionKnowledge, vector.CollectionRetrieval} {
		n, err := e.vectors.DeleteMatching(ctx, collection, filter)
		if err != nil {
			log.Printf("engine: clear of %s failed for session %s: %v", collection, sessionID, err)
			continue
		}
		report.EntriesDeleted += n
	}

	log.Printf("engine: cleared session %s for user %s (%d messages, %d entries)",
		sessionID, userID, report.MessagesDeleted, report.EntriesDeleted)
	return report, nil
}
