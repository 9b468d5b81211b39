// Package generate supervises streamed model generation. The supervisor
// pumps backend tokens onto the request's event stream, interleaves
// cosmetic reasoning-phase banners on an independent goroutine, and runs
// the fallback state machine: an attempt that dies of backend memory
// pressure or its per-attempt deadline is retried exactly once on a
// deterministically chosen fallback model, with explicit retry events so
// clients know the earlier tokens are superseded.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/events"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/route"
	"github.com/BA-SupportII/BA-AI/internal/stats"
)

// Reason strings carried on model_fallback and retry events.
const (
	ReasonMemory  = "insufficient_memory"
	ReasonTimeout = "timeout"
)

// phaseCadence is the cosmetic delay between consecutive phase banners.
// Banners run on their own goroutine and never gate token delivery.
const phaseCadence = 80 * time.Millisecond

// tokenBuffer sizes the channel between the backend callback and the
// event stream so short bursts do not stall the decoder.
const tokenBuffer = 64

// Deps are the collaborators a Supervisor needs.
type Deps struct {
	LLM    llm.Client
	Models config.ModelsConfig
	Stats  *stats.Registry
	Logger *slog.Logger
}

// Supervisor drives one streamed generation per Run call. It holds no
// per-request state and is safe for concurrent use.
type Supervisor struct {
	llm    llm.Client
	models config.ModelsConfig
	stats  *stats.Registry
	logger *slog.Logger
}

// New creates a generation supervisor.
func New(d Deps) *Supervisor {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		llm:    d.LLM,
		models: d.Models,
		stats:  d.Stats,
		logger: logger.With("component", "generate"),
	}
}

// Request is one supervised generation.
type Request struct {
	// Prompt is the fully assembled prompt: context block plus the
	// user's effective text.
	Prompt string
	// System is the task's system prompt. Empty omits the system turn.
	System string
	// History carries prior conversation turns, oldest first.
	History []llm.Message
	// Images are base64 payloads for vision models.
	Images []string
	// WebUsed inserts the RESEARCH banner into the phase sequence.
	WebUsed bool
	// Options are passed through to the backend unchanged.
	Options *llm.Options

	Verdict intent.Verdict
	Route   route.Route
}

// Result is the outcome of a successful Run.
type Result struct {
	// Text is the accumulated answer from the attempt that finished.
	Text string
	// Model is the model that produced Text. Differs from the routed
	// model when a fallback happened.
	Model string
	// Retried reports whether the fallback machine fired.
	Retried bool
	// EvalCount is the backend's generated-token count, when reported.
	EvalCount int
	// Duration covers all attempts.
	Duration time.Duration
}

// Run executes the fallback state machine for one request. Tokens are
// streamed as they arrive; a recoverable failure (memory sentinel or
// per-attempt deadline) emits model_fallback and model_retry_start and
// tries once more on the fallback model. A second failure is terminal.
// Client cancellation returns the context error with nothing further
// written to the stream.
func (s *Supervisor) Run(ctx context.Context, req Request, stream *events.Stream) (*Result, error) {
	start := time.Now()

	phaseCtx, stopPhases := context.WithCancel(ctx)
	defer stopPhases()
	go emitPhases(phaseCtx, stream, Phases(req.Verdict, req.WebUsed))

	model := req.Route.Model
	retried := false
	for {
		resp, err := s.attempt(ctx, model, req, stream)
		if err == nil {
			if retried {
				stream.RetryDone(model)
			}
			return &Result{
				Text:      resp.Message.Content,
				Model:     model,
				Retried:   retried,
				EvalCount: resp.EvalCount,
				Duration:  time.Since(start),
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason, recoverable := retryReason(err)
		if !recoverable {
			return nil, err
		}
		if retried {
			stream.RetryFailed(model, reason)
			s.logger.Warn("retry attempt failed, giving up",
				"model", model, "reason", reason, "error", err)
			return nil, fmt.Errorf("retry on %s: %w", model, err)
		}
		next := route.Fallback(model, req.Verdict, s.models)
		s.logger.Warn("generation attempt failed, falling back",
			"from", model, "to", next, "reason", reason)
		stream.Fallback(model, next, reason)
		stream.RetryStart(next, reason)
		model = next
		retried = true
	}
}

type attemptOutcome struct {
	resp *llm.ChatResponse
	err  error
}

// attempt runs one streamed call against one model, bridging the
// backend's token callback onto a channel so the pump can observe
// cancellation. The per-attempt deadline comes from the model config;
// a zero deadline (the reasoning model) means the attempt may run as
// long as the client waits.
func (s *Supervisor) attempt(ctx context.Context, model string, req Request, stream *events.Stream) (*llm.ChatResponse, error) {
	attemptCtx := ctx
	if d := s.models.AttemptTimeout(model); d > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	tokens := make(chan string, tokenBuffer)
	done := make(chan attemptOutcome, 1)

	go func() {
		defer close(tokens)
		resp, err := s.llm.ChatStream(attemptCtx, model, req.messages(), req.Options, func(tok string) {
			select {
			case tokens <- tok:
			case <-attemptCtx.Done():
			}
		})
		done <- attemptOutcome{resp, err}
	}()

	for tok := range tokens {
		stream.Token(tok)
	}
	out := <-done

	elapsed := time.Since(start)
	if s.stats != nil {
		evals := 0
		if out.resp != nil {
			evals = out.resp.EvalCount
		}
		s.stats.Record(model, elapsed, evals, out.err != nil)
	}
	if out.err != nil {
		return nil, out.err
	}
	return out.resp, nil
}

// messages assembles the chat turn list for the backend.
func (req Request) messages() []llm.Message {
	msgs := make([]llm.Message, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.History...)
	msgs = append(msgs, llm.Message{Role: "user", Content: req.Prompt, Images: req.Images})
	return msgs
}

// retryReason classifies an attempt error. Only memory pressure and the
// per-attempt deadline are recoverable; everything else surfaces to the
// caller unchanged.
func retryReason(err error) (string, bool) {
	switch {
	case llm.IsMemoryError(err):
		return ReasonMemory, true
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout, true
	}
	return "", false
}

// Phases returns the reasoning banner sequence for a verdict. Trivial
// math collapses to a single banner, simple math to two, plain QA to
// one; everything else walks the full sequence, with RESEARCH inserted
// when web context was gathered.
func Phases(v intent.Verdict, webUsed bool) []string {
	switch {
	case v.Intent == intent.MathReasoning && v.Complexity == intent.ComplexityTrivial:
		return []string{"REASONING"}
	case v.Intent == intent.MathReasoning && v.Complexity == intent.ComplexitySimple:
		return []string{"REASONING", "GENERATING"}
	case v.Intent == intent.SimpleQA:
		return []string{"GENERATING"}
	}
	phases := []string{"UNDERSTANDING", "PLANNING"}
	if webUsed {
		phases = append(phases, "RESEARCH")
	}
	return append(phases, "REASONING", "GENERATING")
}

// emitPhases writes the banner sequence with a short cosmetic pause
// between entries. It stops as soon as the request context ends or the
// stream reaches a terminal frame.
func emitPhases(ctx context.Context, stream *events.Stream, phases []string) {
	for i, p := range phases {
		if i > 0 {
			t := time.NewTimer(phaseCadence)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if stream.Closed() {
			return
		}
		stream.PhaseBanner(p)
	}
}
