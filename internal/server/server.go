// Package server exposes the request pipeline and its supporting
// subsystems over HTTP and WebSocket. All endpoints speak JSON; errors
// carry the boundary kind from the pipeline's error taxonomy so clients
// can react without parsing messages.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BA-SupportII/BA-AI/internal/agent"
	"github.com/BA-SupportII/BA-AI/internal/buildinfo"
	"github.com/BA-SupportII/BA-AI/internal/cache"
	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/docindex"
	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/events"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/media"
	"github.com/BA-SupportII/BA-AI/internal/memory"
	"github.com/BA-SupportII/BA-AI/internal/pipeline"
	"github.com/BA-SupportII/BA-AI/internal/report"
	"github.com/BA-SupportII/BA-AI/internal/stats"
	"github.com/BA-SupportII/BA-AI/internal/tools"
)

// statusClientClosedRequest is the nginx convention for a request the
// client abandoned. There is no stdlib constant for it.
const statusClientClosedRequest = 499

// taskAliases maps endpoint suffixes to the route task tag they pin.
// Each gets its own POST /api/<alias> handler.
var taskAliases = map[string]string{
	"chat":              "chat",
	"reason":            "reason",
	"code":              "code",
	"sql":               "sql",
	"vision":            "vision",
	"debug":             "debug",
	"fast":              "fast",
	"report":            "report",
	"dashboard":         "dashboard",
	"dashboard/vanilla": "dashboard_vanilla",
	"chart":             "chart",
	"image_prompt":      "image_prompt",
	"video_prompt":      "video_prompt",
	"research":          "research",
	"custom":            "custom",
}

// writeJSON encodes v as JSON to w, logging encode errors at debug
// level. A failure here usually means the client went away.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "err", err)
	}
}

// Deps wires a Server. Engine and LLM are required; every other
// subsystem may be nil, in which case its endpoints answer 503.
type Deps struct {
	Config   config.Config
	Engine   *pipeline.Engine
	LLM      llm.Client
	Memory   *memory.Store
	Tracker  *memory.Tracker
	Tools    *tools.Runtime
	Index    *docindex.Index
	Embedder *embeddings.Client
	Media    *media.Service
	Reports  *report.Queue
	Agent    *agent.Agent
	Cache    *cache.Cache
	Stats    *stats.Registry
	Logger   *slog.Logger
}

// DependencyStatus reports the reachability of one external service
// on the health endpoint.
type DependencyStatus struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	LastCheck string `json:"lastCheck,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// Server is the HTTP and WebSocket front of the pipeline.
type Server struct {
	cfg        config.Config
	engine     *pipeline.Engine
	llm        llm.Client
	memory     *memory.Store
	tracker    *memory.Tracker
	tools      *tools.Runtime
	index      *docindex.Index
	embedder   *embeddings.Client
	media      *media.Service
	reports    *report.Queue
	agent      *agent.Agent
	cache      *cache.Cache
	stats      *stats.Registry
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	server     *http.Server
	connStatus func() map[string]DependencyStatus
}

// New creates the server around its collaborators.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      d.Config,
		engine:   d.Engine,
		llm:      d.LLM,
		memory:   d.Memory,
		tracker:  d.Tracker,
		tools:    d.Tools,
		index:    d.Index,
		embedder: d.Embedder,
		media:    d.Media,
		reports:  d.Reports,
		agent:    d.Agent,
		cache:    d.Cache,
		stats:    d.Stats,
		logger:   logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetConnManager installs the callback the health endpoint uses to
// report external dependency status. Optional; when unset the health
// payload omits the dependencies map.
func (s *Server) SetConnManager(fn func() map[string]DependencyStatus) {
	s.connStatus = fn
}

// Handler builds the full route table. Split from Start so tests can
// drive it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	// Pipeline
	mux.HandleFunc("POST /api/auto", s.handleAuto)
	for alias, task := range taskAliases {
		mux.HandleFunc("POST /api/"+alias, s.taskHandler(task))
	}
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("GET /ws", s.handleWS)

	// Memory
	mux.HandleFunc("POST /api/memory/store", s.handleMemoryStore)
	mux.HandleFunc("GET /api/memory/entries", s.handleMemoryEntries)
	mux.HandleFunc("DELETE /api/memory/entries/{id}", s.handleMemoryEntryDelete)
	mux.HandleFunc("POST /api/memory/entries/ttl", s.handleMemoryTTL)
	mux.HandleFunc("POST /api/memory/entries/purge", s.handleMemoryPurge)
	mux.HandleFunc("POST /api/memory/message", s.handleMemoryMessage)
	mux.HandleFunc("GET /api/memory/context/{userId}", s.handleMemoryContext)
	mux.HandleFunc("POST /api/memory/is-followup", s.handleMemoryIsFollowUp)
	mux.HandleFunc("GET /api/memory/history/{userId}", s.handleMemoryHistory)
	mux.HandleFunc("GET /api/memory/export/{userId}", s.handleMemoryExport)
	mux.HandleFunc("DELETE /api/memory/{userId}", s.handleMemoryClear)

	// Tools
	for alias, name := range toolAliases {
		mux.HandleFunc("POST /api/tools/"+alias, s.toolHandler(name))
	}
	mux.HandleFunc("POST /api/tools/chain", s.handleToolChain)

	// Retrieval
	mux.HandleFunc("POST /api/docs/index", s.handleDocsIndex)
	mux.HandleFunc("POST /api/docs/query", s.handleDocsQuery)
	mux.HandleFunc("POST /api/embeddings/index", s.handleEmbeddingsIndex)
	mux.HandleFunc("POST /api/embeddings/query", s.handleEmbeddingsQuery)

	// Media, reports, agent
	mux.HandleFunc("POST /api/image", s.handleImage)
	mux.HandleFunc("POST /api/video", s.handleVideo)
	mux.HandleFunc("POST /api/reports/generate", s.handleReportGenerate)
	mux.HandleFunc("GET /api/reports/{reportId}", s.handleReportGet)
	mux.HandleFunc("POST /api/reports/export/html", s.handleReportExportHTML)
	mux.HandleFunc("POST /api/reports/export/pdf", s.handleReportExportPDF)
	mux.HandleFunc("POST /api/agent/run", s.handleAgentRun)

	// Operational
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	// Generated artifacts
	if s.cfg.DataDir != "" {
		outputs := http.FileServer(http.Dir(filepath.Join(s.cfg.DataDir, "outputs")))
		mux.Handle("GET /outputs/", http.StripPrefix("/outputs/", outputs))
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Listen.Address, s.cfg.Listen.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	addr := s.cfg.Listen.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.cfg.Listen.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// errorResponse writes the JSON error envelope. kind is one of the
// boundary error kinds; message is human-readable.
func (s *Server) errorResponse(w http.ResponseWriter, code int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"kind":    kind,
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// notConfigured answers for an endpoint whose backing subsystem was
// not wired at startup.
func (s *Server) notConfigured(w http.ResponseWriter, what string) {
	s.errorResponse(w, http.StatusServiceUnavailable, "upstream_unavailable", what+" not configured")
}

// pipelineError maps a pipeline or tool failure onto the wire.
func (s *Server) pipelineError(w http.ResponseWriter, err error) {
	kind := pipeline.ErrorKind(err)
	msg := err.Error()
	if kind == "cancelled" {
		msg = "request cancelled"
	}
	s.errorResponse(w, statusFor(kind), kind, msg)
}

// statusFor maps a boundary error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "bad_request", "unsafe_code", "invalid_path":
		return http.StatusBadRequest
	case "tools_disabled":
		return http.StatusForbidden
	case "tool_not_found", "not_found":
		return http.StatusNotFound
	case "timeout", "sandbox_timeout":
		return http.StatusGatewayTimeout
	case "insufficient_memory", "upstream_unavailable":
		return http.StatusServiceUnavailable
	case "cancelled":
		return statusClientClosedRequest
	case "backend_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.errorResponse(w, http.StatusNotFound, "not_found", "no such endpoint")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"service": "ba-ai",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"status":  "healthy",
		"service": "ba-ai",
	}
	if s.connStatus != nil {
		deps := s.connStatus()
		resp["dependencies"] = deps
		for _, d := range deps {
			if !d.Ready {
				resp["status"] = "degraded"
				break
			}
		}
	}
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// handleAuto is the primary endpoint: one prompt in, one answer out.
// Events the streaming path would see are collected and discarded; the
// final result carries everything the synchronous caller needs.
func (s *Server) handleAuto(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	s.runPipeline(w, r, req)
}

// taskHandler returns the handler for one specialized alias. The alias
// pins the route task; everything else matches /api/auto.
func (s *Server) taskHandler(task string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
		req.Task = task
		s.runPipeline(w, r, req)
	}
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	col := events.NewCollector()
	res, err := s.engine.Handle(r.Context(), req, col)
	if err != nil {
		s.pipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res, s.logger)
}

// handleCancel aborts an in-flight request. Unknown ids are reported in
// the body, not the status: by the time a cancel arrives the request
// may simply have finished, which is not a client error.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID string `json:"requestId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestID == "" {
		s.errorResponse(w, http.StatusBadRequest, "bad_request", "requestId is required")
		return
	}
	status := "not_found"
	if s.engine.Cancel(req.RequestID) {
		status = "cancelled"
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":    status,
		"requestId": req.RequestID,
	}, s.logger)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.llm.ListModels(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, "backend_error", "list models: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"models": models,
		"count":  len(models),
		"roles": map[string]string{
			"chat":   s.cfg.Models.Chat,
			"reason": s.cfg.Models.Reason,
			"code":   s.cfg.Models.Code,
			"fast":   s.cfg.Models.Fast,
		},
	}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"uptime":         buildinfo.Uptime().Round(time.Second).String(),
		"activeRequests": s.engine.ActiveCount(),
	}
	if s.stats != nil {
		out["generation"] = s.stats.Snapshot()
	}
	if s.cache != nil {
		out["cacheEntries"] = s.cache.Len()
	}
	if s.memory != nil {
		out["memoryEntries"] = s.memory.Len()
	}
	if s.tracker != nil {
		out["conversations"] = s.tracker.Stats()
	}
	if s.index != nil {
		out["docIndex"] = s.index.Stats()
	}
	if s.reports != nil {
		out["reportJobs"] = s.reports.Len()
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, out, s.logger)
}
