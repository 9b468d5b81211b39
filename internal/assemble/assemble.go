// Package assemble composes the prompt the model finally sees: the
// effective user prompt followed by file, RAG, web, memory, schema,
// and planner sections, in a fixed order, each included only when it
// has content.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/docindex"
	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/fetch"
	"github.com/BA-SupportII/BA-AI/internal/files"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/memory"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
	"github.com/BA-SupportII/BA-AI/internal/route"
	"github.com/BA-SupportII/BA-AI/internal/tools"
	"github.com/BA-SupportII/BA-AI/internal/websearch"
)

const (
	maxAutoFiles  = 4
	maxRAGSources = 5
	maxMemoryHits = 4
	maxWebPages   = 3
	webPageChars  = 8000
)

// Request carries the per-request assembly inputs. Prompt is the
// normalized (and possibly follow-up-expanded) user prompt.
type Request struct {
	Prompt        string
	UserID        string
	TeamID        string
	TeamMode      bool
	FilePaths     []string
	AutoFiles     bool
	AutoWeb       bool
	NoWeb         bool // set for follow-up expansions; wins over AutoWeb
	UseDocIndex   bool
	UseEmbeddings bool
}

// Context is the assembled prompt plus everything the pipeline reports
// about how it was built.
type Context struct {
	Text            string
	EffectivePrompt string
	Files           []string
	AutoFiles       bool
	WebUsed         bool
	WebResults      []websearch.Result
	RAGSources      []string
	MemoryHits      int
	PromptVec       []float32
	BypassedHeavy   bool
}

// Deps wires an Assembler. Everything but Logger may be nil; missing
// dependencies silently disable their section.
type Deps struct {
	Models   config.ModelsConfig
	Search   config.SearchConfig
	LLM      llm.Client
	Files    *files.Loader
	Index    *docindex.Index
	Web      *websearch.Manager
	Fetcher  *fetch.Fetcher
	Memory   *memory.Store
	Embedder *embeddings.Client
	SQL      *tools.SQLStore
	SQLPath  string
	Logger   *slog.Logger
}

type Assembler struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Assembler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{deps: deps, logger: logger.With("component", "assemble")}
}

// Build produces the composed prompt for one request. Section failures
// degrade to a missing section; the only hard error is cancellation.
func (a *Assembler) Build(ctx context.Context, req Request, verdict intent.Verdict, rt route.Route) (*Context, error) {
	light := bypassHeavy(req.Prompt)
	out := &Context{EffectivePrompt: req.Prompt, BypassedHeavy: light}

	// A grammar-task request gets the raw text verbatim; rewriting it
	// would do the task's job before the model sees it.
	if !light && rt.Task != "grammar" {
		out.EffectivePrompt = a.effectivePrompt(ctx, req.Prompt)
	}

	sections := []string{out.EffectivePrompt}

	if hint := vagueRankingHint(verdict, req.Prompt); hint != "" {
		sections = append(sections, hint)
	}

	if sec := a.fileSection(req, light, out); sec != "" {
		sections = append(sections, sec)
	}

	// Web, RAG, and the prompt embedding are independent;
	// fan out and join before the sections that need them.
	// Web is gated by intent and opt-in only, never by prompt
	// length: "top 10 LLMs" is short and still demands grounding.
	var (
		webSection string
		ragSection string
	)
	if wantWeb := a.wantWeb(req, verdict); wantWeb || !light {
		g, gctx := errgroup.WithContext(ctx)
		if wantWeb {
			g.Go(func() error {
				webSection = a.webSection(gctx, req.Prompt, out)
				return nil
			})
		}
		if !light && req.UseDocIndex && a.deps.Index != nil {
			g.Go(func() error {
				ragSection = a.ragSection(gctx, req.Prompt, out)
				return nil
			})
		}
		if !light && req.UseEmbeddings && a.deps.Embedder != nil {
			g.Go(func() error {
				vec, err := a.deps.Embedder.Generate(gctx, req.Prompt)
				if err != nil {
					a.logger.Debug("prompt embedding failed", "err", err)
					return nil
				}
				out.PromptVec = vec
				return nil
			})
		}
		_ = g.Wait()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if ragSection != "" {
		sections = append(sections, ragSection)
	}
	if webSection != "" {
		sections = append(sections, webSection)
	}

	if sec := a.memorySection(req, out); sec != "" {
		sections = append(sections, sec)
	}

	if sec := a.schemaSection(ctx, verdict, rt); sec != "" {
		sections = append(sections, sec)
	}

	if !light && verdict.Intent == intent.MultiStep {
		if sec := a.plannerSection(ctx, req.Prompt); sec != "" {
			sections = append(sections, sec)
		}
	}

	if extra := intentExtras(verdict.Intent); extra != "" {
		sections = append(sections, extra)
	}

	out.Text = strings.Join(sections, "\n\n")
	return out, ctx.Err()
}

// effectivePrompt runs one grammar-model cleanup over short messy
// prompts. Any failure keeps the raw prompt.
func (a *Assembler) effectivePrompt(ctx context.Context, prompt string) string {
	if a.deps.LLM == nil || a.deps.Models.Grammar == "" || !messy(prompt) {
		return prompt
	}
	resp, err := a.deps.LLM.Chat(ctx, a.deps.Models.Grammar, []llm.Message{
		{Role: "system", Content: prompts.GrammarRewrite},
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		a.logger.Debug("grammar rewrite failed", "err", err)
		return prompt
	}
	rewritten := strings.TrimSpace(resp.Message.Content)
	if rewritten == "" {
		return prompt
	}
	return rewritten
}

func (a *Assembler) fileSection(req Request, light bool, out *Context) string {
	if a.deps.Files == nil {
		return ""
	}
	var loaded []files.File
	switch {
	case len(req.FilePaths) > 0:
		loaded = a.deps.Files.Load(req.FilePaths)
	case req.AutoFiles && !light:
		loaded = a.deps.Files.AutoSelect(req.Prompt, maxAutoFiles)
		out.AutoFiles = len(loaded) > 0
	}
	if len(loaded) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("File context:")
	for _, f := range loaded {
		out.Files = append(out.Files, f.Path)
		fmt.Fprintf(&b, "\n### %s\n%s", f.Path, f.Content)
		if f.Truncated {
			b.WriteString("\n(file truncated)")
		}
	}
	return b.String()
}

func (a *Assembler) wantWeb(req Request, verdict intent.Verdict) bool {
	if req.NoWeb || a.deps.Web == nil {
		return false
	}
	return verdict.RequiresWeb || req.AutoWeb
}

// webSection fetches URLs named in the prompt, or falls back to the
// configured search engines.
func (a *Assembler) webSection(ctx context.Context, prompt string, out *Context) string {
	if urls := fetch.ExtractURLs(prompt, maxWebPages); len(urls) > 0 && a.deps.Fetcher != nil {
		pages := a.deps.Fetcher.FetchAll(ctx, urls, webPageChars, maxWebPages)
		if len(pages) > 0 {
			out.WebUsed = true
			return "Web context:\n" + fetch.FormatContext(pages)
		}
	}
	count := a.deps.Search.MaxResults
	results, err := a.deps.Web.Search(ctx, prompt, websearch.Options{Count: count})
	if err != nil {
		a.logger.Debug("web search failed", "err", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}
	out.WebUsed = true
	out.WebResults = results
	return "Web context:\n" + websearch.FormatContext(results)
}

func (a *Assembler) ragSection(ctx context.Context, prompt string, out *Context) string {
	sources := a.deps.Index.Hybrid(ctx, prompt, maxRAGSources)
	if len(sources) == 0 {
		return ""
	}
	sources = a.rerank(ctx, prompt, sources)
	var b strings.Builder
	b.WriteString("Document context:")
	for i, s := range sources {
		out.RAGSources = append(out.RAGSources, s.Path)
		fmt.Fprintf(&b, "\n[%d] %s\n%s", i+1, s.Path, strings.TrimSpace(s.Text))
	}
	return b.String()
}

// rerank asks the scoring model to reorder retrieved passages. An
// unusable reply keeps the original order.
func (a *Assembler) rerank(ctx context.Context, prompt string, sources []docindex.Source) []docindex.Source {
	if a.deps.LLM == nil || a.deps.Models.Reranker == "" || len(sources) < 2 {
		return sources
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", prompt)
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(s.Text))
	}
	resp, err := a.deps.LLM.Chat(ctx, a.deps.Models.Reranker, []llm.Message{
		{Role: "system", Content: prompts.Rerank},
		{Role: "user", Content: b.String()},
	}, nil)
	if err != nil {
		a.logger.Debug("rerank failed", "err", err)
		return sources
	}
	return docindex.Rerank(resp.Message.Content, sources)
}

// memorySection recalls the top entries for this user or team. The
// keyword score works without vectors, so recall still runs for light
// prompts; only the embedding weight needs the fan-out above.
func (a *Assembler) memorySection(req Request, out *Context) string {
	if a.deps.Memory == nil || req.UserID == "" {
		return ""
	}
	scope := memory.Scope{UserID: req.UserID, TeamID: req.TeamID, TeamMode: req.TeamMode}
	hits := a.deps.Memory.Recall(req.Prompt, out.PromptVec, scope, maxMemoryHits)
	if len(hits) == 0 {
		return ""
	}
	out.MemoryHits = len(hits)
	var b strings.Builder
	b.WriteString("Remembered context:")
	for _, h := range hits {
		fmt.Fprintf(&b, "\n- [%s] %s — %s", h.Entry.Meta.Type, clip(h.Entry.Prompt, 160), clip(h.Entry.Response, 240))
	}
	return b.String()
}

func (a *Assembler) schemaSection(ctx context.Context, verdict intent.Verdict, rt route.Route) string {
	if verdict.Intent != intent.SQLQuery && rt.Task != "sql" {
		return ""
	}
	if a.deps.SQL == nil || a.deps.SQLPath == "" {
		return ""
	}
	schema, err := a.deps.SQL.Schema(ctx, a.deps.SQLPath)
	if err != nil {
		a.logger.Debug("schema introspection failed", "err", err)
		return ""
	}
	return "Database schema:\n" + schema
}

func (a *Assembler) plannerSection(ctx context.Context, prompt string) string {
	if a.deps.LLM == nil || a.deps.Models.Planner == "" {
		return ""
	}
	resp, err := a.deps.LLM.Chat(ctx, a.deps.Models.Planner, []llm.Message{
		{Role: "system", Content: prompts.Planner},
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		a.logger.Debug("planner failed", "err", err)
		return ""
	}
	plan := strings.TrimSpace(resp.Message.Content)
	if plan == "" {
		return ""
	}
	return "Plan:\n" + plan
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
