package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/agent"
	"github.com/BA-SupportII/BA-AI/internal/assemble"
	"github.com/BA-SupportII/BA-AI/internal/buildinfo"
	"github.com/BA-SupportII/BA-AI/internal/cache"
	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/connwatch"
	"github.com/BA-SupportII/BA-AI/internal/docindex"
	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/fetch"
	"github.com/BA-SupportII/BA-AI/internal/files"
	"github.com/BA-SupportII/BA-AI/internal/generate"
	"github.com/BA-SupportII/BA-AI/internal/httpkit"
	"github.com/BA-SupportII/BA-AI/internal/media"
	"github.com/BA-SupportII/BA-AI/internal/memory"
	"github.com/BA-SupportII/BA-AI/internal/pipeline"
	"github.com/BA-SupportII/BA-AI/internal/report"
	"github.com/BA-SupportII/BA-AI/internal/server"
	"github.com/BA-SupportII/BA-AI/internal/stats"
	"github.com/BA-SupportII/BA-AI/internal/tools"
	"github.com/BA-SupportII/BA-AI/internal/validate"
	"github.com/BA-SupportII/BA-AI/internal/websearch"
)

// runServe handles the "ba-ai serve" subcommand. It is the primary
// operating mode: loads config, opens the persistent stores, wires the
// pipeline with retrieval and tools, starts the API server, and blocks
// until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The HTTP server drains in-flight requests
//  3. The report worker and watchers stop
//  4. Memory, cache, and index snapshots are flushed via defers
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting BA-AI", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that we know the desired level and
	// format. The initial Info-level text logger is used only for the
	// startup banner; everything after this point uses the configured
	// level and format.
	{
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	if cfgPath == "" {
		cfgPath = "(built-in defaults)"
	}
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"chat_model", cfg.Models.Chat,
		"ollama_url", cfg.Ollama.URL,
	)

	// --- Data directory ---
	// All persistent state (memory, response cache, document indexes,
	// reports, the tools database, rendered artifacts) lives under here.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}
	if cfg.Tools.SQLitePath == "" {
		cfg.Tools.SQLitePath = filepath.Join(cfg.DataDir, "tools.db")
	}

	// --- Model backend ---
	// One client for every role; routing picks the model per request.
	client := newOllamaClient(cfg, logger)

	// --- Connection resilience ---
	// Background health monitoring with exponential backoff for the
	// external services. The server starts even when the backend is
	// down; requests fail individually until the watcher sees it
	// recover, and the health endpoint reports per-dependency status.
	connMgr := connwatch.NewManager(logger)
	defer connMgr.Stop()

	connMgr.Watch(ctx, connwatch.WatcherConfig{
		Name:    "ollama",
		Probe:   func(pCtx context.Context) error { return client.Ping(pCtx) },
		Backoff: connwatch.DefaultBackoffConfig(),
		Logger:  logger,
	})

	// --- Embeddings ---
	// Optional. Powers semantic cache matching, recall ranking, and the
	// chunk index. The concrete client stays nil when disabled so the
	// consumers skip their embedding paths.
	var embedder *embeddings.Client
	if cfg.Embeddings.Enabled {
		embedder = embeddings.New(embeddings.Config{
			BaseURL: cfg.Ollama.URL,
			Model:   cfg.Embeddings.Model,
			Logger:  logger,
		})
		logger.Info("embeddings enabled", "model", cfg.Embeddings.Model)
	}

	// --- Web retrieval ---
	web := websearch.FromConfig(cfg.Search, logger)
	fetcher := fetch.New(logger)
	logger.Info("web search configured", "engines", web.Providers())

	if cfg.Search.Engine == "searxng" && cfg.Search.SearxngURL != "" {
		probe := httpkit.NewClient(httpkit.WithTimeout(10 * time.Second))
		connMgr.Watch(ctx, connwatch.WatcherConfig{
			Name:    "searxng",
			Probe:   httpProbe(probe, cfg.Search.SearxngURL+"/healthz"),
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
		})
	}

	// --- Local retrieval ---
	loader := files.NewLoader(cfg.FilesRoot, logger)

	var ixEmbedder docindex.Embedder
	if embedder != nil {
		ixEmbedder = embedder
	}
	index, err := docindex.New(cfg.DataDir, ixEmbedder, logger)
	if err != nil {
		return fmt.Errorf("open document index: %w", err)
	}
	defer func() {
		if err := index.Flush(); err != nil {
			logger.Error("index flush failed", "error", err)
		}
	}()

	// --- Memory ---
	// Durable user memory plus the in-process conversation tracker.
	store, err := memory.NewStore(filepath.Join(cfg.DataDir, "memory.json"), cfg.Memory, logger)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer func() {
		if err := store.Flush(); err != nil {
			logger.Error("memory flush failed", "error", err)
		}
	}()
	tracker := memory.NewTracker(cfg.Memory.WindowSize, cfg.Memory.SummaryEvery)

	// --- Response cache ---
	responseCache, err := cache.New(filepath.Join(cfg.DataDir, "response_cache.json"), cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open response cache: %w", err)
	}
	defer func() {
		if err := responseCache.Flush(); err != nil {
			logger.Error("cache flush failed", "error", err)
		}
	}()

	// --- Tools ---
	runtime := tools.NewRuntime(tools.Deps{
		Config:  cfg.Tools,
		Models:  cfg.Models,
		Root:    cfg.FilesRoot,
		LLM:     client,
		Search:  web,
		Fetcher: fetcher,
		Index:   index,
		Logger:  logger,
	})
	if cfg.Tools.Enabled {
		logger.Info("tools enabled", "safe_mode", cfg.Tools.SafeMode, "sqlite", cfg.Tools.SQLitePath)
	} else {
		logger.Info("tools disabled")
	}

	// --- Pipeline ---
	statsReg := stats.NewRegistry()
	assembler := assemble.New(assemble.Deps{
		Models:   cfg.Models,
		Search:   cfg.Search,
		LLM:      client,
		Files:    loader,
		Index:    index,
		Web:      web,
		Fetcher:  fetcher,
		Memory:   store,
		Embedder: embedder,
		SQL:      tools.NewSQLStore(cfg.Tools.SQLitePath, logger),
		SQLPath:  cfg.Tools.SQLitePath,
		Logger:   logger,
	})
	generator := generate.New(generate.Deps{
		LLM:    client,
		Models: cfg.Models,
		Stats:  statsReg,
		Logger: logger,
	})
	validator := validate.New(validate.Deps{
		Tools:  runtime,
		LLM:    client,
		Models: cfg.Models,
		Logger: logger,
	})
	engine := pipeline.New(pipeline.Deps{
		Models:    cfg.Models,
		LLM:       client,
		Assembler: assembler,
		Generator: generator,
		Validator: validator,
		Tools:     runtime,
		Cache:     responseCache,
		Memory:    store,
		Tracker:   tracker,
		Embedder:  embedder,
		Logger:    logger,
	})

	// --- Report worker ---
	// One background worker serializes report generation so interactive
	// requests keep the backend.
	reports := report.NewQueue()
	worker := report.NewWorker(reports, client, cfg.Models, logger, report.WorkerConfig{})
	worker.Start(ctx)
	defer worker.Stop()

	// --- Media ---
	mediaSvc := media.New(cfg.Media, cfg.DataDir, logger)
	if mediaSvc.ImageConfigured() {
		probe := httpkit.NewClient(httpkit.WithTimeout(10 * time.Second))
		connMgr.Watch(ctx, connwatch.WatcherConfig{
			Name:    "a1111",
			Probe:   httpProbe(probe, cfg.Media.A1111URL+"/internal/ping"),
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
		})
		logger.Info("image generation enabled", "a1111_url", cfg.Media.A1111URL)
	}

	// --- Agent ---
	runner := agent.New(agent.Deps{
		LLM:    client,
		Models: cfg.Models,
		Tools:  runtime,
		Logger: logger,
	})

	// --- API server ---
	srv := server.New(server.Deps{
		Config:   *cfg,
		Engine:   engine,
		LLM:      client,
		Memory:   store,
		Tracker:  tracker,
		Tools:    runtime,
		Index:    index,
		Embedder: embedder,
		Media:    mediaSvc,
		Reports:  reports,
		Agent:    runner,
		Cache:    responseCache,
		Stats:    statsReg,
		Logger:   logger,
	})
	srv.SetConnManager(func() map[string]server.DependencyStatus {
		status := connMgr.Status()
		result := make(map[string]server.DependencyStatus, len(status))
		for name, s := range status {
			ds := server.DependencyStatus{
				Name:      s.Name,
				Ready:     s.Ready,
				LastError: s.LastError,
			}
			if !s.LastCheck.IsZero() {
				ds.LastCheck = s.LastCheck.Format(time.RFC3339)
			}
			result[name] = ds
		}
		return result
	})

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = srv.Shutdown(context.Background())
	}()

	// Start the API server. This blocks until the server is shut down
	// (via context cancellation or fatal error).
	if err := srv.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("BA-AI stopped")
	return nil
}

// httpProbe returns a connwatch probe that considers the service ready
// when url answers anything below 500.
func httpProbe(client *http.Client, url string) connwatch.ProbeFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		httpkit.DrainAndClose(resp.Body, 4096)
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}
}
