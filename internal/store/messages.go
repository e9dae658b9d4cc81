package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxMessageSize caps stored message content.
const maxMessageSize = 32 * 1024 // 32KB

// Message is a single entry in a session's ordered history.
type Message struct {
	ID        int64
	MessageID string
	SessionID string
	Role      string // user, assistant, system
	Content   string
	CreatedAt int64
}

// AddMessage appends a message to a session's history. Truncates content to
// 32KB. Generates a message id when none is supplied.
func (db *DB) AddMessage(sessionID, messageID, role, content string) (*Message, error) {
	if messageID == "" {
		messageID = uuid.New().String()
	}
	if len(content) > maxMessageSize {
		content = content[:maxMessageSize]
	}

	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO messages (message_id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, messageID, sessionID, role, content, now)
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}

	if _, err := db.Exec(
		"UPDATE sessions SET message_count = message_count + 1 WHERE session_id = ?",
		sessionID,
	); err != nil {
		return nil, fmt.Errorf("bump message count: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Message{
		ID:        id,
		MessageID: messageID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// GetMessages returns all messages for a session, ordered by created_at.
func (db *DB) GetMessages(sessionID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, message_id, session_id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MessageID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetRecentMessages returns the most recent N messages for a session in
// chronological order.
func (db *DB) GetRecentMessages(sessionID string, limit int) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, message_id, session_id, role, content, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MessageID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
