package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/docindex"
)

// handleDocsIndex rebuilds the keyword index from a directory walk.
func (s *Server) handleDocsIndex(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.notConfigured(w, "document index")
		return
	}
	var req struct {
		Root string `json:"root"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Root) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "root is required")
		return
	}
	n, err := s.index.BuildDocs(r.Context(), req.Root)
	if err != nil {
		s.pipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":    "indexed",
		"root":      req.Root,
		"documents": n,
	}, s.logger)
}

func (s *Server) handleDocsQuery(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.notConfigured(w, "document index")
		return
	}
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "query is required")
		return
	}
	sources := s.index.QueryDocs(req.Query, req.Limit)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"sources": sources,
		"count":   len(sources),
	}, s.logger)
}

// handleEmbeddingsIndex rebuilds the embedding chunk index.
func (s *Server) handleEmbeddingsIndex(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.notConfigured(w, "document index")
		return
	}
	if s.embedder == nil {
		s.notConfigured(w, "embeddings")
		return
	}
	var req struct {
		Root      string `json:"root"`
		ChunkSize int    `json:"chunkSize"`
		Overlap   int    `json:"overlap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Root) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "root is required")
		return
	}
	n, err := s.index.BuildChunks(r.Context(), req.Root, docindex.ChunkParams{
		Size:    req.ChunkSize,
		Overlap: req.Overlap,
	})
	if err != nil {
		s.pipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status": "indexed",
		"root":   req.Root,
		"chunks": n,
	}, s.logger)
}

// handleEmbeddingsQuery runs a semantic query over the chunk index,
// optionally unioned with keyword hits.
func (s *Server) handleEmbeddingsQuery(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.notConfigured(w, "document index")
		return
	}
	var req struct {
		Query  string `json:"query"`
		Limit  int    `json:"limit"`
		Hybrid bool   `json:"hybrid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "query is required")
		return
	}

	var (
		sources []docindex.Source
		err     error
	)
	if req.Hybrid {
		sources = s.index.Hybrid(r.Context(), req.Query, req.Limit)
	} else {
		sources, err = s.index.QueryChunks(r.Context(), req.Query, req.Limit)
		if err != nil {
			s.pipelineError(w, err)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"sources": sources,
		"count":   len(sources),
	}, s.logger)
}
