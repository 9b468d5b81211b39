package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/memory"
)

const defaultUserID = "default"

// memoryTypes is the closed set of entry types the store endpoint
// accepts.
var memoryTypes = map[string]bool{
	memory.TypeConversation: true,
	memory.TypeSummary:      true,
	memory.TypeFact:         true,
	memory.TypePreference:   true,
}

// scopeFrom builds the ownership scope for a memory operation from the
// path user id plus the optional team query parameters.
func scopeFrom(userID string, r *http.Request) memory.Scope {
	q := r.URL.Query()
	return memory.Scope{
		UserID:   userID,
		TeamID:   q.Get("teamId"),
		TeamMode: q.Get("teamMode") == "true",
	}
}

func (s *Server) handleMemoryStore(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.notConfigured(w, "memory store")
		return
	}
	var req struct {
		Prompt   string `json:"prompt"`
		Response string `json:"response"`
		UserID   string `json:"userId"`
		TeamID   string `json:"teamId"`
		Type     string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	if req.UserID == "" {
		req.UserID = defaultUserID
	}
	if req.Type == "" {
		req.Type = memory.TypeFact
	}
	if !memoryTypes[req.Type] {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "unknown entry type: "+req.Type)
		return
	}

	var vec []float32
	if s.embedder != nil {
		if v, err := s.embedder.Generate(r.Context(), req.Prompt); err == nil {
			vec = v
		}
	}
	entry := s.memory.Save(req.Prompt, req.Response, memory.Meta{
		UserID: req.UserID,
		TeamID: req.TeamID,
		Type:   req.Type,
	}, vec)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status": "stored",
		"entry":  entry,
	}, s.logger)
}

func (s *Server) handleMemoryEntries(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.notConfigured(w, "memory store")
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = defaultUserID
	}
	entries := s.memory.List(scopeFrom(userID, r))

	if typ := r.URL.Query().Get("type"); typ != "" {
		kept := entries[:0]
		for _, e := range entries {
			if e.Meta.Type == typ {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if limit := parseIntParam(r, "limit", 0); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"entries": entries,
		"count":   len(entries),
	}, s.logger)
}

func (s *Server) handleMemoryEntryDelete(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.notConfigured(w, "memory store")
		return
	}
	id := r.PathValue("id")
	if !s.memory.Delete(id) {
		s.errorResponse(w, http.StatusNotFound, "not_found", "entry not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status": "deleted",
		"id":     id,
	}, s.logger)
}

func (s *Server) handleMemoryTTL(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.notConfigured(w, "memory store")
		return
	}
	var req struct {
		UserID   string `json:"userId"`
		TeamID   string `json:"teamId"`
		TeamMode bool   `json:"teamMode"`
		Days     int    `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = defaultUserID
	}
	updated := s.memory.UpdateTTL(memory.Scope{
		UserID:   req.UserID,
		TeamID:   req.TeamID,
		TeamMode: req.TeamMode,
	}, req.Days)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"updated": updated,
		"days":    req.Days,
	}, s.logger)
}

func (s *Server) handleMemoryPurge(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.notConfigured(w, "memory store")
		return
	}
	removed := s.memory.Purge()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"removed":   removed,
		"remaining": s.memory.Len(),
	}, s.logger)
}

// handleMemoryMessage records one conversation turn without running the
// pipeline, for clients that manage generation themselves.
func (s *Server) handleMemoryMessage(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.notConfigured(w, "conversation memory")
		return
	}
	var req struct {
		UserID  string `json:"userId"`
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "content is required")
		return
	}
	if req.UserID == "" {
		req.UserID = defaultUserID
	}
	switch req.Role {
	case "user":
		s.tracker.AddUser(req.UserID, req.Content, "", 0)
	case "assistant":
		s.tracker.AddAssistant(req.UserID, req.Content)
	default:
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "role must be user or assistant")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status": "recorded",
		"userId": req.UserID,
	}, s.logger)
}

// handleMemoryContext returns what the assembler would see for a user:
// the recent conversation window plus the memories a query recalls.
func (s *Server) handleMemoryContext(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil || s.tracker == nil {
		s.notConfigured(w, "memory")
		return
	}
	userID := r.PathValue("userId")
	limit := parseIntParam(r, "limit", 5)
	query := r.URL.Query().Get("query")

	var vec []float32
	if query != "" && s.embedder != nil {
		if v, err := s.embedder.Generate(r.Context(), query); err == nil {
			vec = v
		}
	}
	recalled := s.memory.Recall(query, vec, scopeFrom(userID, r), limit)

	memories := make([]map[string]any, 0, len(recalled))
	for _, rec := range recalled {
		memories = append(memories, map[string]any{
			"entry": rec.Entry,
			"score": rec.Score,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"userId":   userID,
		"recent":   s.tracker.Recent(userID, 0),
		"memories": memories,
	}, s.logger)
}

func (s *Server) handleMemoryIsFollowUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"prompt":     req.Prompt,
		"isFollowUp": memory.IsFollowUp(req.Prompt),
	}, s.logger)
}

func (s *Server) handleMemoryHistory(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.notConfigured(w, "conversation memory")
		return
	}
	userID := r.PathValue("userId")
	messages := s.tracker.Recent(userID, parseIntParam(r, "limit", 0))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"userId":   userID,
		"messages": messages,
		"count":    len(messages),
	}, s.logger)
}

// handleMemoryExport renders a user's conversation window and stored
// memories in the requested format as a downloadable file.
func (s *Server) handleMemoryExport(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil || s.tracker == nil {
		s.notConfigured(w, "memory")
		return
	}
	userID := r.PathValue("userId")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	messages := s.tracker.Recent(userID, 0)
	entries := s.memory.List(scopeFrom(userID, r))

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "memory-"+userID+".json"))
		writeJSON(w, map[string]any{
			"userId":   userID,
			"messages": messages,
			"entries":  entries,
		}, s.logger)

	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "memory-"+userID+".txt"))
		for _, m := range messages {
			fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
		}
		for _, e := range entries {
			fmt.Fprintf(w, "[%s] memory(%s): %s | %s\n", e.CreatedAt.Format(time.RFC3339), e.Meta.Type, e.Prompt, e.Response)
		}

	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "memory-"+userID+".md"))
		fmt.Fprintf(w, "# Memory export for %s\n\n## Conversation\n\n", userID)
		for _, m := range messages {
			fmt.Fprintf(w, "**%s** (%s):\n\n%s\n\n", m.Role, m.Timestamp.Format(time.RFC3339), m.Content)
		}
		fmt.Fprint(w, "## Stored memories\n\n")
		for _, e := range entries {
			fmt.Fprintf(w, "- `%s` %s: %s\n", e.Meta.Type, e.Prompt, e.Response)
		}

	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "memory-"+userID+".csv"))
		cw := csv.NewWriter(w)
		cw.Write([]string{"timestamp", "kind", "role_or_type", "content", "response"})
		for _, m := range messages {
			cw.Write([]string{m.Timestamp.Format(time.RFC3339), "message", m.Role, m.Content, ""})
		}
		for _, e := range entries {
			cw.Write([]string{e.CreatedAt.Format(time.RFC3339), "memory", e.Meta.Type, e.Prompt, e.Response})
		}
		cw.Flush()

	default:
		s.errorResponse(w, http.StatusBadRequest, "bad_request",
			"unsupported format: "+format+" (use text, json, markdown, or csv)")
	}
}

// handleMemoryClear wipes a user's conversation window and their stored
// entries in one call.
func (s *Server) handleMemoryClear(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil || s.tracker == nil {
		s.notConfigured(w, "memory")
		return
	}
	userID := r.PathValue("userId")
	removed := s.memory.Clear(scopeFrom(userID, r))
	s.tracker.Clear(userID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":  "cleared",
		"userId":  userID,
		"removed": removed,
	}, s.logger)
}
