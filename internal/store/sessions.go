package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Session represents a conversation session. It owns the raw history until
// consolidation; ConsolidatedAt == nil means UNCONSOLIDATED.
type Session struct {
	ID             int64
	SessionID      string
	UserID         string
	AgentID        string
	Title          string
	StartedAt      int64
	EndedAt        *int64
	Status         string
	Summary        string
	Concepts       []string // collaborator-supplied concept candidates
	Entities       []string
	MessageCount   int
	ConsolidatedAt *int64
}

// Consolidated reports whether the session has been through the pipeline.
func (s *Session) Consolidated() bool {
	return s.ConsolidatedAt != nil
}

const sessionColumns = `id, session_id, user_id, agent_id, title, started_at, ended_at, status,
	summary, concepts, entities, message_count, consolidated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var agentID, title, summary, concepts, entities sql.NullString
	var endedAt, consolidatedAt sql.NullInt64
	err := row.Scan(&s.ID, &s.SessionID, &s.UserID, &agentID, &title, &s.StartedAt,
		&endedAt, &s.Status, &summary, &concepts, &entities, &s.MessageCount, &consolidatedAt)
	if err != nil {
		return nil, err
	}
	s.AgentID = agentID.String
	s.Title = title.String
	s.Summary = summary.String
	if endedAt.Valid {
		s.EndedAt = &endedAt.Int64
	}
	if consolidatedAt.Valid {
		s.ConsolidatedAt = &consolidatedAt.Int64
	}
	if concepts.Valid && concepts.String != "" {
		json.Unmarshal([]byte(concepts.String), &s.Concepts)
	}
	if entities.Valid && entities.String != "" {
		json.Unmarshal([]byte(entities.String), &s.Entities)
	}
	return &s, nil
}

// InitSession creates or resumes a session. If the session_id already exists,
// the existing session is returned unchanged.
func (db *DB) InitSession(sessionID, userID, agentID, title string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("init session %s: user id required", sessionID)
	}
	existing, err := db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO sessions (session_id, user_id, agent_id, title, started_at, status)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, 'active')
	`, sessionID, userID, agentID, title, now)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Session{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		AgentID:   agentID,
		Title:     title,
		StartedAt: now,
		Status:    "active",
	}, nil
}

// GetSession returns a session by its session_id, or nil if not found.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// CompleteSession marks a session as completed.
func (db *DB) CompleteSession(sessionID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE sessions SET status = 'completed', ended_at = COALESCE(ended_at, ?)
		WHERE session_id = ? AND status = 'active'
	`, now, sessionID)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// SetNLPColumns stores collaborator-supplied summary, concepts, and entities.
func (db *DB) SetNLPColumns(sessionID, summary string, concepts, entities []string) error {
	conceptsJSON, err := json.Marshal(concepts)
	if err != nil {
		return fmt.Errorf("marshal concepts: %w", err)
	}
	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	_, err = db.Exec(`
		UPDATE sessions SET summary = ?, concepts = ?, entities = ?
		WHERE session_id = ?
	`, summary, string(conceptsJSON), string(entitiesJSON), sessionID)
	if err != nil {
		return fmt.Errorf("set nlp columns: %w", err)
	}
	return nil
}

// ListUnconsolidated returns the N oldest sessions not yet consolidated.
func (db *DB) ListUnconsolidated(limit int) ([]Session, error) {
	rows, err := db.Query(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE consolidated_at IS NULL
		ORDER BY started_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unconsolidated: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// MarkConsolidated sets consolidated_at, preventing reprocessing.
// Idempotent: an already-consolidated session keeps its original timestamp.
func (db *DB) MarkConsolidated(sessionID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE sessions SET consolidated_at = COALESCE(consolidated_at, ?)
		WHERE session_id = ?
	`, now, sessionID)
	if err != nil {
		return fmt.Errorf("mark consolidated: %w", err)
	}
	return nil
}

// SessionsForUser returns a user's sessions, newest first. Title matching
// happens in the caller; this just narrows to the user's sessions.
func (db *DB) SessionsForUser(userID string, limit int) ([]Session, error) {
	rows, err := db.Query(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ?
		ORDER BY started_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sessions for user: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ClearSessionState wipes the short-term state of a session: messages plus the
// summary/concept/entity columns. Scoped by both session and owner identity so
// one user can never clear another user's session.
func (db *DB) ClearSessionState(sessionID, userID string) (int64, error) {
	var exists int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sessions WHERE session_id = ? AND user_id = ?",
		sessionID, userID,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check session owner: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	result, err := db.Exec("DELETE FROM messages WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear messages: %w", err)
	}
	deleted, _ := result.RowsAffected()

	_, err = db.Exec(`
		UPDATE sessions SET summary = NULL, concepts = NULL, entities = NULL, message_count = 0
		WHERE session_id = ? AND user_id = ?
	`, sessionID, userID)
	if err != nil {
		return deleted, fmt.Errorf("clear session columns: %w", err)
	}
	return deleted, nil
}
