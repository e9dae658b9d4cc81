// Package notify pushes recall events to websocket subscribers, keyed by
// session.
package notify

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RecallEvent tells a subscribed client that a stored concept resurfaced
// in its session.
type RecallEvent struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	EntryID      string    `json:"entry_id"`
	Text         string    `json:"text"`
	Type         string    `json:"type"`
	Similarity   float64   `json:"similarity"`
	MentionCount int       `json:"mention_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRecallEvent stamps an event with a fresh ID and timestamp.
func NewRecallEvent(sessionID, entryID, text, entryType string, similarity float64, mentions int) RecallEvent {
	return RecallEvent{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		EntryID:      entryID,
		Text:         text,
		Type:         entryType,
		Similarity:   similarity,
		MentionCount: mentions,
		Timestamp:    time.Now().UTC(),
	}
}

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

// Hub fans recall events out to websocket clients. Each client subscribes
// to exactly one session; a slow client loses events rather than blocking
// publishers.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan RecallEvent
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Subscriptions are outbound-only and carry no credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]struct{}),
	}
}

// ServeWS upgrades the request and subscribes it to sessionID until the
// peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan RecallEvent, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]struct{})
	}
	h.clients[sessionID][c] = struct{}{}
	h.mu.Unlock()

	log.Printf("notify: subscriber joined session %s", sessionID)

	go c.writePump()
	go h.readPump(sessionID, c)
	return nil
}

// Publish delivers an event to every subscriber of its session and returns
// how many received it.
func (h *Hub) Publish(ev RecallEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients[ev.SessionID] {
		select {
		case c.send <- ev:
			delivered++
		default:
			log.Printf("notify: dropping event for slow subscriber on session %s", ev.SessionID)
		}
	}
	return delivered
}

// Subscribers reports how many clients are attached to the session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Close disconnects every client. The hub cannot be reused afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
}

// readPump drains inbound frames so pongs and close frames are processed,
// then unregisters the client on error.
func (h *Hub) readPump(sessionID string, c *client) {
	defer h.remove(sessionID, c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(sessionID string, c *client) {
	h.mu.Lock()
	if set, ok := h.clients[sessionID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, sessionID)
		}
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
