package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
)

// WorkerConfig controls the report worker.
type WorkerConfig struct {
	// Interval between periodic scans for queued jobs. The worker also
	// wakes immediately when a job is enqueued. Default: 2 seconds.
	Interval time.Duration

	// Timeout per report generation call. Default: 3 minutes.
	Timeout time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Minute
	}
}

// Worker drains the job queue in the background. One worker serializes
// all report generation so interactive requests keep the backend.
type Worker struct {
	queue  *Queue
	llm    llm.Client
	models config.ModelsConfig
	logger *slog.Logger
	config WorkerConfig

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a report worker. Call Start to begin processing.
func NewWorker(q *Queue, client llm.Client, models config.ModelsConfig, logger *slog.Logger, cfg WorkerConfig) *Worker {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:  q,
		llm:    client,
		models: models,
		logger: logger.With("component", "report"),
		config: cfg,
		done:   make(chan struct{}),
	}
}

// Start begins the background worker.
func (w *Worker) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(workerCtx)
}

// Stop cancels the worker and waits for its goroutine to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("report worker stopped")
			return
		case <-ticker.C:
		case <-w.queue.nudge:
		}
	}
}

// drain processes every queued job, oldest first.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, ok := w.queue.claim()
		if !ok {
			return
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	model := w.models.Reason
	if model == "" {
		model = w.models.Chat
	}

	resp, err := w.llm.Chat(ctx, model, []llm.Message{
		{Role: "system", Content: prompts.System("report")},
		{Role: "user", Content: job.Topic},
	}, nil)
	if err != nil {
		w.logger.Warn("report generation failed",
			"reportId", job.ID, "model", model, "error", err)
		w.queue.update(job.ID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.Model = model
		})
		return
	}

	markdown := resp.Message.Content
	w.queue.update(job.ID, func(j *Job) {
		j.Status = StatusFormatting
		j.Progress = 70
		j.Markdown = markdown
		j.Model = model
	})

	html, err := ExportHTML(markdown, job.Topic)
	if err != nil {
		// The markdown is still usable; ship without the rendering.
		w.logger.Warn("report HTML render failed", "reportId", job.ID, "error", err)
		html = nil
	}

	w.queue.update(job.ID, func(j *Job) {
		j.Status = StatusComplete
		j.Progress = 100
		j.HTML = string(html)
		j.DurationMS = time.Since(start).Milliseconds()
	})

	w.logger.Info("report complete",
		"reportId", job.ID, "model", model,
		"durationMs", time.Since(start).Milliseconds())
}
