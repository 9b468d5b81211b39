package server

import (
	"encoding/json"
	"net/http"

	"github.com/BA-SupportII/BA-AI/internal/tools"
)

// toolAliases maps endpoint suffixes under /api/tools/ to tool
// variants. The chain endpoint has its own handler.
var toolAliases = map[string]tools.Name{
	"python":    tools.Python,
	"execute":   tools.CodeExecute,
	"analyze":   tools.CodeAnalysis,
	"summarize": tools.Summarize,
	"sql":       tools.SQL,
	"schema":    tools.SQLSchema,
	"sympy":     tools.Sympy,
	"ingest":    tools.Ingest,
	"search":    tools.Search,
	"fetch":     tools.Fetch,
	"visualize": tools.Visualize,
}

// toolHandler returns the handler for one tool endpoint. The body is
// the tool argument union; unused fields are ignored.
func (s *Server) toolHandler(name tools.Name) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tools == nil {
			s.errorResponse(w, http.StatusForbidden, "tools_disabled", "tools are disabled")
			return
		}
		var args tools.Args
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
		res, err := s.tools.Run(r.Context(), name, args)
		if err != nil {
			s.pipelineError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, res, s.logger)
	}
}

// handleToolChain runs a sequence of tools and an optional synthesis
// pass. Step failures land in the step records, not the status code.
func (s *Server) handleToolChain(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		s.errorResponse(w, http.StatusForbidden, "tools_disabled", "tools are disabled")
		return
	}
	var req struct {
		Steps  []tools.Step `json:"steps"`
		Prompt string       `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	res, err := s.tools.RunChain(r.Context(), req.Steps, req.Prompt)
	if err != nil {
		s.pipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res, s.logger)
}
