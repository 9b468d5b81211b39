package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/agent"
	"github.com/BA-SupportII/BA-AI/internal/media"
	"github.com/BA-SupportII/BA-AI/internal/report"
)

// artifactURL maps a rendered file to its public path under /outputs/.
func artifactURL(a *media.Artifact) string {
	return "/outputs/" + filepath.Base(a.Path)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if s.media == nil || !s.media.ImageConfigured() {
		s.notConfigured(w, "image generation")
		return
	}
	var req media.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	art, err := s.media.GenerateImage(r.Context(), req)
	if err != nil {
		s.pipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"artifact": art,
		"url":      artifactURL(art),
	}, s.logger)
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if s.media == nil || !s.media.VideoConfigured() {
		s.notConfigured(w, "video rendering")
		return
	}
	var req media.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	art, err := s.media.RenderVideo(r.Context(), req)
	if err != nil {
		s.pipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"artifact": art,
		"url":      artifactURL(art),
	}, s.logger)
}

// handleReportGenerate enqueues a report job and returns immediately.
// The background worker fills in the markdown and HTML.
func (s *Server) handleReportGenerate(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.notConfigured(w, "report generation")
		return
	}
	var req struct {
		Topic  string `json:"topic"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "topic is required")
		return
	}
	job := s.reports.Enqueue(req.Topic, req.UserID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, job, s.logger)
}

func (s *Server) handleReportGet(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.notConfigured(w, "report generation")
		return
	}
	job, ok := s.reports.Get(r.PathValue("reportId"))
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "not_found", "report not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, job, s.logger)
}

// exportSource resolves the markdown and title for a report export
// request, either from a finished job or from inline markdown.
func (s *Server) exportSource(w http.ResponseWriter, r *http.Request) (markdown, title, name string, ok bool) {
	var req struct {
		ReportID string `json:"reportId"`
		Markdown string `json:"markdown"`
		Title    string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return "", "", "", false
	}

	switch {
	case req.ReportID != "":
		if s.reports == nil {
			s.notConfigured(w, "report generation")
			return "", "", "", false
		}
		job, found := s.reports.Get(req.ReportID)
		if !found {
			s.errorResponse(w, http.StatusNotFound, "not_found", "report not found")
			return "", "", "", false
		}
		if job.Markdown == "" {
			s.errorResponse(w, http.StatusBadRequest, "bad_request",
				"report is not finished (status "+string(job.Status)+")")
			return "", "", "", false
		}
		title = req.Title
		if title == "" {
			title = job.Topic
		}
		return job.Markdown, title, "report-" + job.ID, true

	case strings.TrimSpace(req.Markdown) != "":
		title = req.Title
		if title == "" {
			title = "Report"
		}
		return req.Markdown, title, "report", true

	default:
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "reportId or markdown is required")
		return "", "", "", false
	}
}

func (s *Server) handleReportExportHTML(w http.ResponseWriter, r *http.Request) {
	markdown, title, name, ok := s.exportSource(w, r)
	if !ok {
		return
	}
	out, err := report.ExportHTML(markdown, title)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "backend_error", "export: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".html"))
	w.Write(out)
}

func (s *Server) handleReportExportPDF(w http.ResponseWriter, r *http.Request) {
	markdown, title, name, ok := s.exportSource(w, r)
	if !ok {
		return
	}
	out, err := report.ExportPDF(markdown, title)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "backend_error", "export: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".pdf"))
	w.Write(out)
}

// handleAgentRun plans a goal and executes the steps synchronously.
// Long goals can take a while; the client's context bounds the run.
func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.notConfigured(w, "agent")
		return
	}
	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "goal is required")
		return
	}
	res, err := s.agent.Run(r.Context(), req)
	if err != nil {
		s.pipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res, s.logger)
}
