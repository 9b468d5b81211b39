// Package pipeline runs a request through the stage sequence that turns
// a raw prompt into an answer: normalization and trigger detection,
// local solvers, intent classification, cache probe, context assembly,
// model routing, supervised generation, post-validation, formatting,
// and the closing cache and memory writes.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BA-SupportII/BA-AI/internal/assemble"
	"github.com/BA-SupportII/BA-AI/internal/cache"
	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/events"
	"github.com/BA-SupportII/BA-AI/internal/format"
	"github.com/BA-SupportII/BA-AI/internal/generate"
	"github.com/BA-SupportII/BA-AI/internal/instant"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/memory"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
	"github.com/BA-SupportII/BA-AI/internal/route"
	"github.com/BA-SupportII/BA-AI/internal/solver"
	"github.com/BA-SupportII/BA-AI/internal/tools"
	"github.com/BA-SupportII/BA-AI/internal/validate"
	"github.com/BA-SupportII/BA-AI/internal/websearch"
)

// ErrEmptyPrompt rejects requests whose prompt is blank after trimming.
var ErrEmptyPrompt = errors.New("prompt is required")

const (
	defaultUser    = "default"
	historyTurns   = 6
	summaryWindow  = 8
	summaryTimeout = 30 * time.Second
	noteClipLen    = 80
)

// mathSolvers marks the solver families whose answers report the
// local-math model tag; the rest report local-solver.
var mathSolvers = map[string]bool{
	"arithmetic":   true,
	"percent":      true,
	"units":        true,
	"dates":        true,
	"equation":     true,
	"stats":        true,
	"geometry":     true,
	"word_problem": true,
}

// Request is the ingress-neutral request shape. The HTTP and WebSocket
// surfaces both decode into it.
type Request struct {
	RequestID        string       `json:"requestId,omitempty"`
	Prompt           string       `json:"prompt"`
	Task             string       `json:"task,omitempty"`
	Model            string       `json:"model,omitempty"`
	Fast             bool         `json:"fast,omitempty"`
	AutoFiles        bool         `json:"autoFiles,omitempty"`
	AutoWeb          bool         `json:"autoWeb,omitempty"`
	FilePaths        []string     `json:"filePaths,omitempty"`
	ImageDescription string       `json:"imageDescription,omitempty"`
	UserID           string       `json:"userId,omitempty"`
	TeamID           string       `json:"teamId,omitempty"`
	TeamMode         bool         `json:"teamMode,omitempty"`
	UseDocIndex      bool         `json:"useDocIndex,omitempty"`
	UseEmbeddings    bool         `json:"useEmbeddings,omitempty"`
	Language         string       `json:"language,omitempty"`
	ResponseSpec     string       `json:"responseSpec,omitempty"`
	Options          *llm.Options `json:"options,omitempty"`
}

// ToolUse records one tool invocation for the done metadata.
type ToolUse struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"durationMs"`
}

// Meta is everything the pipeline reports about how an answer was made.
type Meta struct {
	Route           string    `json:"route"`
	RouteReason     string    `json:"routeReason,omitempty"`
	Model           string    `json:"model"`
	Intent          string    `json:"intent,omitempty"`
	Files           []string  `json:"files,omitempty"`
	AutoFiles       bool      `json:"autoFiles"`
	MemoryHits      int       `json:"memoryHits"`
	MemoryRequested bool      `json:"memoryRequested"`
	WebUsed         bool      `json:"webUsed"`
	RAGSources      []string  `json:"ragSources,omitempty"`
	DurationMS      int64     `json:"durationMs"`
	CacheHit        bool      `json:"cacheHit"`
	Retried         bool      `json:"retried,omitempty"`
	Format          string    `json:"format"`
	Tools           []ToolUse `json:"tools,omitempty"`
	Validation      string    `json:"validation,omitempty"`
	// FinalResponse carries the corrected answer when post-validation
	// rewrote it after tokens had already streamed.
	FinalResponse string `json:"finalResponse,omitempty"`
}

// AsMap renders the metadata for the done event.
func (m Meta) AsMap() map[string]any {
	out := map[string]any{
		"route":           m.Route,
		"model":           m.Model,
		"durationMs":      m.DurationMS,
		"format":          m.Format,
		"cacheHit":        m.CacheHit,
		"webUsed":         m.WebUsed,
		"memoryHits":      m.MemoryHits,
		"autoFiles":       m.AutoFiles,
		"memoryRequested": m.MemoryRequested,
	}
	if m.RouteReason != "" {
		out["routeReason"] = m.RouteReason
	}
	if m.Intent != "" {
		out["intent"] = m.Intent
	}
	if len(m.Files) > 0 {
		out["files"] = m.Files
	}
	if len(m.RAGSources) > 0 {
		out["ragSources"] = m.RAGSources
	}
	if m.Retried {
		out["retried"] = true
	}
	if len(m.Tools) > 0 {
		names := make([]string, 0, len(m.Tools))
		timings := make(map[string]int64, len(m.Tools))
		for _, t := range m.Tools {
			names = append(names, t.Name)
			timings[t.Name] = t.DurationMS
		}
		out["tools"] = names
		out["toolTimings"] = timings
	}
	if m.Validation != "" {
		out["validation"] = m.Validation
	}
	if m.FinalResponse != "" {
		out["finalResponse"] = m.FinalResponse
	}
	return out
}

// Result is the synchronous answer for the HTTP path. The streaming
// path sees the same content as events.
type Result struct {
	RequestID string          `json:"requestId"`
	Model     string          `json:"model"`
	Response  string          `json:"response"`
	Meta      Meta            `json:"meta"`
	Formatted format.Response `json:"formatted"`
}

// Deps wires an Engine. Cache, Memory, Embedder, and Tools may be nil;
// the stages that need them turn into no-ops.
type Deps struct {
	Models    config.ModelsConfig
	LLM       llm.Client
	Assembler *assemble.Assembler
	Generator *generate.Supervisor
	Validator *validate.Validator
	Tools     *tools.Runtime
	Cache     *cache.Cache
	Memory    *memory.Store
	Tracker   *memory.Tracker
	Embedder  *embeddings.Client
	Logger    *slog.Logger
}

// Engine owns the per-request orchestration and the registry of
// in-flight requests.
type Engine struct {
	models    config.ModelsConfig
	llm       llm.Client
	assembler *assemble.Assembler
	generator *generate.Supervisor
	validator *validate.Validator
	tools     *tools.Runtime
	cache     *cache.Cache
	memory    *memory.Store
	tracker   *memory.Tracker
	embedder  *embeddings.Client
	instant   *instant.Engine
	active    *registry
	logger    *slog.Logger
}

// New creates the engine.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := d.Tracker
	if tracker == nil {
		tracker = memory.NewTracker(0, 0)
	}
	return &Engine{
		models:    d.Models,
		llm:       d.LLM,
		assembler: d.Assembler,
		generator: d.Generator,
		validator: d.Validator,
		tools:     d.Tools,
		cache:     d.Cache,
		memory:    d.Memory,
		tracker:   tracker,
		embedder:  d.Embedder,
		instant:   instant.NewEngine(),
		active:    newRegistry(),
		logger:    logger.With("component", "pipeline"),
	}
}

// Cancel aborts the in-flight request with the given id. It reports
// false when the id is unknown or already finished.
func (e *Engine) Cancel(requestID string) bool {
	return e.active.cancel(requestID)
}

// ActiveCount returns the number of requests currently in flight.
func (e *Engine) ActiveCount() int {
	return e.active.len()
}

// Handle runs one request through the pipeline, streaming events to
// sink as they happen and returning the final answer. The returned
// error is nil whenever a done event was emitted.
func (e *Engine) Handle(ctx context.Context, req Request, sink events.Sink) (*Result, error) {
	start := time.Now()
	prompt := Normalize(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.UserID == "" {
		req.UserID = defaultUser
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.active.add(req.RequestID, cancel)
	defer e.active.remove(req.RequestID)

	stream := events.NewStream(req.RequestID, sink)
	logger := e.logger.With("requestId", req.RequestID, "userId", req.UserID)

	if note, ok := MemorySaveRequest(prompt); ok {
		return e.saveNote(ctx, req, prompt, note, stream, start)
	}
	if name, args, ok := tools.ParseExplicit(prompt); ok {
		return e.runExplicit(ctx, req, prompt, name, args, stream, start)
	}

	if ans := e.instant.Reply(prompt); ans != nil {
		return e.finish(req, prompt, local{text: ans.Text, route: ans.Solver, model: "local-instant"}, stream, start)
	}
	if ans := instant.Riddle(prompt); ans != nil {
		return e.finish(req, prompt, local{text: ans.Text, route: "riddle", model: "local-solver"}, stream, start)
	}
	if ans := solver.Solve(prompt); ans != nil {
		return e.finish(req, prompt, local{text: ans.Text, route: "fast", model: localModel(ans.Solver), reason: "solver: " + ans.Solver}, stream, start)
	}

	ictx := &intent.Context{}
	if last, _, ok := e.tracker.LastExchange(req.UserID); ok {
		ictx.PreviousIntent = intent.Intent(last.Intent)
	}
	verdict := intent.Classify(prompt, ictx)
	stream.Intent(intentPayload(verdict))

	if ans := solver.WordProblem(prompt); ans != nil {
		return e.finish(req, prompt, local{
			text:   ans.Text,
			route:  "fast",
			model:  "local-math",
			reason: "solver: " + ans.Solver,
			intent: string(verdict.Intent),
		}, stream, start)
	}

	// A vague follow-up re-opens the previous exchange as grounded
	// context. Expanded prompts skip both cache tiers: their meaning
	// depends on conversation state the key cannot capture.
	assemblePrompt := prompt
	expanded := false
	if memory.IsFollowUp(prompt) {
		if prevUser, prevAssistant, ok := e.tracker.LastExchange(req.UserID); ok {
			assemblePrompt = expandFollowUp(prompt, prevUser.Content, prevAssistant.Content)
			expanded = true
		}
	}

	key := cache.Key(string(verdict.Intent), prompt)
	if !expanded {
		if hit, ok := e.probeCache(ctx, key, prompt); ok {
			return e.finish(req, prompt, local{
				text:   hit,
				route:  "cache",
				model:  "cache",
				intent: string(verdict.Intent),
				cached: true,
			}, stream, start)
		}
	}

	rt := route.Pick(route.Request{
		Prompt:        prompt,
		TaskOverride:  req.Task,
		ModelOverride: req.Model,
		HasImage:      req.ImageDescription != "",
		PreferFast:    req.Fast,
	}, verdict, e.models)
	logger = logger.With("intent", string(verdict.Intent), "route", rt.Task, "model", rt.Model)

	var history []llm.Message
	if !expanded {
		history = toHistory(e.tracker.Recent(req.UserID, historyTurns))
	}
	e.tracker.AddUser(req.UserID, prompt, string(verdict.Intent), quality(verdict))

	actx, err := e.assembler.Build(ctx, assemble.Request{
		Prompt:        assemblePrompt,
		UserID:        req.UserID,
		TeamID:        req.TeamID,
		TeamMode:      req.TeamMode,
		FilePaths:     req.FilePaths,
		AutoFiles:     req.AutoFiles,
		AutoWeb:       req.AutoWeb,
		NoWeb:         expanded,
		UseDocIndex:   req.UseDocIndex,
		UseEmbeddings: req.UseEmbeddings,
	}, verdict, rt)
	if err != nil {
		return nil, e.fail(stream, err)
	}
	if len(actx.WebResults) > 0 {
		stream.WebResults(webPayload(actx.WebResults))
	}

	genPrompt := actx.Text
	if req.ImageDescription != "" {
		genPrompt += "\n\nImage description:\n" + req.ImageDescription
	}
	if spec := strings.TrimSpace(req.ResponseSpec); spec != "" {
		genPrompt += "\n\nResponse specification:\n" + spec
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		genPrompt += "\n\nAnswer in " + lang + "."
	}

	res, err := e.generator.Run(ctx, generate.Request{
		Prompt:  genPrompt,
		System:  prompts.System(rt.SystemPromptID),
		History: history,
		WebUsed: actx.WebUsed,
		Options: req.Options,
		Verdict: verdict,
		Route:   rt,
	}, stream)
	if err != nil {
		return nil, e.fail(stream, err)
	}

	out := e.validator.Validate(ctx, validate.Input{
		Prompt:  prompt,
		Text:    res.Text,
		Verdict: verdict,
		Sources: actx.WebResults,
		Regenerate: func(ctx context.Context, hint string) (string, error) {
			resp, err := e.llm.Chat(ctx, res.Model, []llm.Message{
				{Role: "system", Content: prompts.System(rt.SystemPromptID)},
				{Role: "user", Content: hint},
			}, req.Options)
			if err != nil {
				return "", err
			}
			return resp.Message.Content, nil
		},
	})

	if e.cache != nil && !expanded && verdict.Intent != intent.RankingQuery {
		e.cache.Put(key, out.Text, string(verdict.Intent), actx.PromptVec, rt.Task == "fast")
	}

	e.tracker.AddAssistant(req.UserID, out.Text)
	e.maybeSummarize(req.UserID, req.TeamID)

	fr := format.Format(out.Text)
	meta := Meta{
		Route:       rt.Task,
		RouteReason: rt.Rationale,
		Model:       res.Model,
		Intent:      string(verdict.Intent),
		Files:       actx.Files,
		AutoFiles:   actx.AutoFiles,
		MemoryHits:  actx.MemoryHits,
		WebUsed:     actx.WebUsed,
		RAGSources:  actx.RAGSources,
		DurationMS:  time.Since(start).Milliseconds(),
		Retried:     res.Retried,
		Format:      string(fr.Kind),
		Validation:  out.Check,
	}
	if out.Corrected {
		meta.FinalResponse = out.Text
	}
	stream.Done(meta.AsMap())

	logger.Info("request served",
		"durationMs", meta.DurationMS,
		"retried", res.Retried,
		"format", meta.Format,
	)
	return &Result{
		RequestID: req.RequestID,
		Model:     res.Model,
		Response:  out.Text,
		Meta:      meta,
		Formatted: fr,
	}, nil
}

// local is a short-circuit answer produced without the model backend.
type local struct {
	text   string
	route  string
	model  string
	reason string
	intent string
	cached bool
	saved  bool
	tools  []ToolUse
}

// finish emits a locally produced answer as one token plus done, and
// records the exchange in conversation memory.
func (e *Engine) finish(req Request, prompt string, lo local, stream *events.Stream, start time.Time) (*Result, error) {
	e.tracker.AddUser(req.UserID, prompt, lo.intent, 1)
	e.tracker.AddAssistant(req.UserID, lo.text)

	fr := format.Format(lo.text)
	meta := Meta{
		Route:           lo.route,
		RouteReason:     lo.reason,
		Model:           lo.model,
		Intent:          lo.intent,
		MemoryRequested: lo.saved,
		DurationMS:      time.Since(start).Milliseconds(),
		CacheHit:        lo.cached,
		Format:          string(fr.Kind),
		Tools:           lo.tools,
	}
	stream.Token(lo.text)
	stream.Done(meta.AsMap())
	return &Result{
		RequestID: req.RequestID,
		Model:     lo.model,
		Response:  lo.text,
		Meta:      meta,
		Formatted: fr,
	}, nil
}

// saveNote handles the save-to-memory trigger. A bare trigger with no
// note falls back to the previous assistant answer.
func (e *Engine) saveNote(ctx context.Context, req Request, prompt, note string, stream *events.Stream, start time.Time) (*Result, error) {
	if note == "" {
		if _, prev, ok := e.tracker.LastExchange(req.UserID); ok {
			note = prev.Content
		}
	}
	if note == "" || e.memory == nil {
		text := format.Envelope("Nothing to save yet.")
		return e.finish(req, prompt, local{text: text, route: "personal", model: "local-memory", saved: true}, stream, start)
	}

	var vec []float32
	if e.embedder != nil {
		if v, err := e.embedder.Generate(ctx, note); err == nil {
			vec = v
		}
	}
	e.memory.Save(note, "", memory.Meta{UserID: req.UserID, TeamID: req.TeamID, Type: memory.TypeFact}, vec)

	text := format.Envelope("Saved to memory: " + clipText(note, noteClipLen))
	return e.finish(req, prompt, local{text: text, route: "personal", model: "local-memory", saved: true}, stream, start)
}

// runExplicit executes a /tool or tool: prompt directly, bypassing the
// model.
func (e *Engine) runExplicit(ctx context.Context, req Request, prompt string, name tools.Name, args tools.Args, stream *events.Stream, start time.Time) (*Result, error) {
	if e.tools == nil || !e.tools.Enabled() {
		return nil, e.fail(stream, tools.ErrDisabled)
	}
	res, err := e.tools.Run(ctx, name, args)
	if err != nil {
		return nil, e.fail(stream, err)
	}
	return e.finish(req, prompt, local{
		text:   format.Envelope(res.Output),
		route:  "tool",
		model:  "tool:" + string(name),
		reason: "explicit tool command",
		tools:  []ToolUse{{Name: string(name), DurationMS: res.DurationMS}},
	}, stream, start)
}

// probeCache checks the exact key, then the semantic tier when an
// embedder is available.
func (e *Engine) probeCache(ctx context.Context, key, prompt string) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	if resp, ok := e.cache.Get(key); ok {
		return resp, true
	}
	if e.embedder == nil {
		return "", false
	}
	vec, err := e.embedder.Generate(ctx, prompt)
	if err != nil {
		return "", false
	}
	if resp, _, ok := e.cache.GetSemantic(vec); ok {
		return resp, true
	}
	return "", false
}

// fail emits the terminal error event and passes the error through.
// Client cancellation is reported as cancelled regardless of how the
// failing stage wrapped it.
func (e *Engine) fail(stream *events.Stream, err error) error {
	kind := ErrorKind(err)
	msg := err.Error()
	if kind == "cancelled" {
		msg = "request cancelled"
	}
	stream.Fail(kind, msg)
	return err
}

// maybeSummarize folds the recent conversation into the memory store
// once enough new messages have accumulated. The model call runs in the
// background; the request does not wait for it.
func (e *Engine) maybeSummarize(userID, teamID string) {
	if e.llm == nil || e.memory == nil || !e.tracker.NeedsSummary(userID) {
		return
	}
	e.tracker.MarkSummarized(userID)
	transcript := transcript(e.tracker.Recent(userID, summaryWindow))
	model := e.models.Fast
	if model == "" {
		model = e.models.Chat
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		defer cancel()
		resp, err := e.llm.Chat(ctx, model, []llm.Message{
			{Role: "system", Content: prompts.MemorySummary},
			{Role: "user", Content: transcript},
		}, nil)
		if err != nil {
			e.logger.Debug("conversation summary failed", "userId", userID, "err", err)
			return
		}
		summary := strings.TrimSpace(resp.Message.Content)
		if summary == "" {
			return
		}
		e.memory.Save("conversation summary", summary, memory.Meta{UserID: userID, TeamID: teamID, Type: memory.TypeSummary}, nil)
	}()
}

// ErrorKind maps an error to its boundary kind from the error taxonomy.
func ErrorKind(err error) string {
	var backend *llm.BackendError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyPrompt):
		return "bad_request"
	case errors.Is(err, tools.ErrDisabled):
		return "tools_disabled"
	case errors.Is(err, tools.ErrUnsafeCode):
		return "unsafe_code"
	case errors.Is(err, tools.ErrTimeout):
		return "sandbox_timeout"
	case errors.Is(err, tools.ErrSandbox):
		return "sandbox_error"
	case errors.Is(err, tools.ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, tools.ErrInvalidPath):
		return "invalid_path"
	case llm.IsMemoryError(err):
		return "insufficient_memory"
	case errors.As(err, &backend):
		return "backend_error"
	default:
		return "backend_error"
	}
}

func localModel(solverTag string) string {
	if mathSolvers[solverTag] {
		return "local-math"
	}
	return "local-solver"
}

func quality(v intent.Verdict) float64 {
	switch v.Confidence {
	case intent.ConfidenceVeryHigh:
		return 1
	case intent.ConfidenceHigh:
		return 0.75
	case intent.ConfidenceMedium:
		return 0.5
	default:
		return 0.25
	}
}

func intentPayload(v intent.Verdict) map[string]any {
	return map[string]any{
		"intent":         string(v.Intent),
		"confidence":     string(v.Confidence),
		"score":          v.Score,
		"complexity":     v.Complexity.String(),
		"requiresWeb":    v.RequiresWeb,
		"preferredModel": v.PreferredModel,
	}
}

func webPayload(results []websearch.Result) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for i, r := range results {
		out = append(out, map[string]any{
			"rank":    i + 1,
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Snippet,
		})
	}
	return out
}

func toHistory(msgs []memory.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func transcript(msgs []memory.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role == "assistant" {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
