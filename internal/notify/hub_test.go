package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if err := h.ServeWS(w, r, sessionID); err != nil {
			t.Errorf("ServeWS: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, h *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers(sessionID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("Subscribers(%s) = %d, want %d", sessionID, h.Subscribers(sessionID), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	defer h.Close()
	srv := testServer(t, h)

	conn := dial(t, srv, "sess-1")
	waitForSubscribers(t, h, "sess-1", 1)

	ev := NewRecallEvent("sess-1", "entry-1", "vector clocks", "concept", 0.91, 3)
	if got := h.Publish(ev); got != 1 {
		t.Fatalf("Publish = %d, want 1", got)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received RecallEvent
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if received.ID != ev.ID || received.EntryID != "entry-1" || received.Similarity != 0.91 {
		t.Fatalf("received = %+v", received)
	}
}

func TestPublishScopedToSession(t *testing.T) {
	h := NewHub()
	defer h.Close()
	srv := testServer(t, h)

	other := dial(t, srv, "sess-other")
	waitForSubscribers(t, h, "sess-other", 1)

	if got := h.Publish(NewRecallEvent("sess-1", "e", "t", "concept", 0.8, 1)); got != 0 {
		t.Fatalf("Publish to empty session = %d, want 0", got)
	}

	// The other session must receive nothing.
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("unrelated session received an event")
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := NewHub()
	defer h.Close()
	srv := testServer(t, h)

	conn := dial(t, srv, "sess-1")
	waitForSubscribers(t, h, "sess-1", 1)

	conn.Close()
	waitForSubscribers(t, h, "sess-1", 0)

	if got := h.Publish(NewRecallEvent("sess-1", "e", "t", "concept", 0.8, 1)); got != 0 {
		t.Fatalf("Publish after disconnect = %d, want 0", got)
	}
}

func TestRecallEventIDsUnique(t *testing.T) {
	a := NewRecallEvent("s", "e", "t", "concept", 0.8, 1)
	b := NewRecallEvent("s", "e", "t", "concept", 0.8, 1)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("event IDs not unique: %q vs %q", a.ID, b.ID)
	}
}
