package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/memgarden/memgarden/internal/vector"
)

func (s *Server) handleSessionInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
		AgentID   string `json:"agent_id"`
		Title     string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.UserID == "" {
		http.Error(w, `{"error":"session_id and user_id required"}`, http.StatusBadRequest)
		return
	}

	sess, err := s.db.InitSession(req.SessionID, req.UserID, req.AgentID, req.Title)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.SessionID,
		"status":     sess.Status,
	})
}

// handleAddMessage appends a message and runs recurrence detection on it.
// Recalls ride back in the response; they are also pushed to websocket
// subscribers.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		MessageID string `json:"message_id"`
		Role      string `json:"role"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Role == "" || req.Content == "" {
		http.Error(w, `{"error":"role and content required"}`, http.StatusBadRequest)
		return
	}

	sess, err := s.db.GetSession(sessionID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}

	msg, err := s.db.AddMessage(sessionID, req.MessageID, req.Role, req.Content)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	var recalls any
	if req.Role == "user" {
		recalls, _ = s.engine.DetectRecurringConcepts(r.Context(), sess.UserID, sessionID, req.Content)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message_id": msg.MessageID,
		"recalls":    recalls,
	})
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.db.CompleteSession(sessionID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	report, err := s.engine.ClearMemory(r.Context(), sessionID, req.UserID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleTend consolidates. An explicit session id runs synchronously and
// returns the report; a batch kicks off in the background with 202.
func (s *Server) handleTend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Limit     int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	if req.SessionID != "" {
		report, err := s.engine.TendThread(r.Context(), req.SessionID)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	limit := req.Limit
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		report, err := s.engine.TendGarden(ctx, limit)
		if err != nil {
			log.Printf("server: background tend failed: %v", err)
			return
		}
		log.Printf("server: background tend processed %d sessions, %d new concepts",
			report.SessionsProcessed, report.NewConcepts)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "tending"})
}

func (s *Server) handleRetrieveContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	out, err := s.engine.RetrieveContext(r.Context(), userID, q.Get("agent_id"), q.Get("session_id"), q.Get("q"))
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Message == "" {
		http.Error(w, `{"error":"user_id and message required"}`, http.StatusBadRequest)
		return
	}

	recalls, err := s.engine.DetectRecurringConcepts(r.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recalls": recalls})
}

func (s *Server) handleConceptHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, query := q.Get("user_id"), q.Get("q")
	if userID == "" || query == "" {
		http.Error(w, `{"error":"user_id and q required"}`, http.StatusBadRequest)
		return
	}

	recalls, err := s.engine.QueryConceptHistory(r.Context(), userID, query, intParam(q.Get("limit"), 10))
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": recalls, "discussed": len(recalls) > 0})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, query := q.Get("user_id"), q.Get("q")
	if userID == "" || query == "" {
		http.Error(w, `{"error":"user_id and q required"}`, http.StatusBadRequest)
		return
	}

	var types []vector.EntryType
	if typ := q.Get("type"); typ != "" {
		if !vector.ValidType(vector.EntryType(typ)) {
			http.Error(w, `{"error":"unknown type"}`, http.StatusBadRequest)
			return
		}
		types = append(types, vector.EntryType(typ))
	}

	scored, err := s.engine.SearchKnowledge(r.Context(), userID, query, intParam(q.Get("limit"), 10), types...)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": scored})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	topics, err := s.engine.ListTopics(r.Context(), userID, intParam(q.Get("limit"), 50))
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	buckets, err := s.engine.Timeline(r.Context(), userID, intParam(q.Get("days"), 0))
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": buckets})
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection        string `json:"collection"`
		InactiveAfterDays int    `json:"inactive_after_days"`
		DryRun            bool   `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	report, err := s.engine.RunGC(r.Context(), req.Collection, req.InactiveAfterDays, req.DryRun)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntryID string `json:"entry_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.EntryID == "" {
		http.Error(w, `{"error":"entry_id required"}`, http.StatusBadRequest)
		return
	}

	if err := s.engine.Restore(r.Context(), req.EntryID); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
