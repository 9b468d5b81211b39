package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/docindex"
	"github.com/BA-SupportII/BA-AI/internal/fetch"
	"github.com/BA-SupportII/BA-AI/internal/format"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
	"github.com/BA-SupportII/BA-AI/internal/websearch"
)

// Name tags one tool variant. Dispatch switches over every variant;
// adding a tool means adding a case or Run returns ErrToolNotFound.
type Name string

const (
	Python       Name = "python"
	CodeExecute  Name = "code_execute"
	CodeAnalysis Name = "code_analysis"
	Summarize    Name = "summarize"
	SQL          Name = "sql"
	SQLSchema    Name = "sql_schema"
	Sympy        Name = "sympy"
	Visualize    Name = "visualize"
	Ingest       Name = "ingest"
	Search       Name = "search"
	Fetch        Name = "fetch"
)

// All lists every tool variant in dispatch order.
func All() []Name {
	return []Name{
		Python, CodeExecute, CodeAnalysis, Summarize, SQL, SQLSchema,
		Sympy, Visualize, Ingest, Search, Fetch,
	}
}

// aliases maps user-facing spellings onto variants. Keys are lowercase.
var aliases = map[string]Name{
	"python":        Python,
	"py":            Python,
	"execute":       CodeExecute,
	"exec":          CodeExecute,
	"code_execute":  CodeExecute,
	"run":           CodeExecute,
	"analyze":       CodeAnalysis,
	"analysis":      CodeAnalysis,
	"code_analysis": CodeAnalysis,
	"summarize":     Summarize,
	"summary":       Summarize,
	"sql":           SQL,
	"schema":        SQLSchema,
	"sql_schema":    SQLSchema,
	"sympy":         Sympy,
	"visualize":     Visualize,
	"viz":           Visualize,
	"chart":         Visualize,
	"ingest":        Ingest,
	"search":        Search,
	"web":           Search,
	"fetch":         Fetch,
	"url":           Fetch,
}

// Lookup resolves a name or alias to its tool variant.
func Lookup(raw string) (Name, bool) {
	n, ok := aliases[strings.ToLower(strings.TrimSpace(raw))]
	return n, ok
}

// Args carries the union of tool parameters. Unused fields are zero;
// each tool documents which it reads. Text doubles as the fallback for
// the field a tool primarily wants when only raw text is available.
type Args struct {
	Code       string `json:"code,omitempty"`
	Language   string `json:"language,omitempty"`
	Text       string `json:"text,omitempty"`
	Query      string `json:"query,omitempty"`
	DBPath     string `json:"dbPath,omitempty"`
	AllowWrite bool   `json:"allowWrite,omitempty"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
	Expression string `json:"expression,omitempty"`
	Title      string `json:"title,omitempty"`
	Kind       string `json:"kind,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// Result is one completed tool execution.
type Result struct {
	Tool       Name   `json:"tool"`
	Output     string `json:"output"`
	DurationMS int64  `json:"durationMs"`
}

// Runtime owns the sandboxes and service handles the tools run on.
type Runtime struct {
	cfg      config.ToolsConfig
	models   config.ModelsConfig
	root     string
	runner   *Runner
	sqlStore *SQLStore
	llm      llm.Client
	search   *websearch.Manager
	fetcher  *fetch.Fetcher
	index    *docindex.Index
	logger   *slog.Logger
}

// Deps wires the runtime. LLM, Search, Fetcher, and Index may be nil;
// tools needing a missing dependency fail with ErrToolNotFound.
type Deps struct {
	Config  config.ToolsConfig
	Models  config.ModelsConfig
	Root    string
	LLM     llm.Client
	Search  *websearch.Manager
	Fetcher *fetch.Fetcher
	Index   *docindex.Index
	Logger  *slog.Logger
}

func NewRuntime(deps Deps) *Runtime {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cfg:      deps.Config,
		models:   deps.Models,
		root:     deps.Root,
		runner:   NewRunner(deps.Config, logger),
		sqlStore: NewSQLStore(deps.Config.SQLitePath, logger),
		llm:      deps.LLM,
		search:   deps.Search,
		fetcher:  deps.Fetcher,
		index:    deps.Index,
		logger:   logger.With("component", "tools"),
	}
}

func (rt *Runtime) Enabled() bool { return rt.cfg.Enabled }

// Run dispatches one tool invocation and times it.
func (rt *Runtime) Run(ctx context.Context, name Name, args Args) (*Result, error) {
	if !rt.cfg.Enabled {
		return nil, ErrDisabled
	}
	start := time.Now()
	output, err := rt.dispatch(ctx, name, args)
	if err != nil {
		rt.logger.Warn("tool failed", "tool", string(name), "kind", Kind(err), "err", err)
		return nil, err
	}
	res := &Result{Tool: name, Output: output, DurationMS: time.Since(start).Milliseconds()}
	rt.logger.Debug("tool done", "tool", string(name), "durationMs", res.DurationMS)
	return res, nil
}

func (rt *Runtime) dispatch(ctx context.Context, name Name, args Args) (string, error) {
	switch name {
	case Python:
		return rt.runner.RunPython(ctx, firstNonEmpty(args.Code, args.Text))
	case CodeExecute:
		return rt.runner.Run(ctx, args.Language, firstNonEmpty(args.Code, args.Text))
	case CodeAnalysis:
		return rt.chat(ctx, rt.models.Code, prompts.AnalyzeCode, firstNonEmpty(args.Code, args.Text))
	case Summarize:
		return rt.chat(ctx, rt.models.Fast, prompts.Summarize, firstNonEmpty(args.Text, args.Code))
	case SQL:
		return rt.sqlStore.Query(ctx, args.DBPath, firstNonEmpty(args.Query, args.Text), args.AllowWrite)
	case SQLSchema:
		return rt.sqlStore.Schema(ctx, args.DBPath)
	case Sympy:
		expr := firstNonEmpty(args.Expression, args.Query, args.Text, args.Code)
		if strings.TrimSpace(expr) == "" {
			return "", fmt.Errorf("%w: empty expression", ErrSandbox)
		}
		return rt.runner.RunPython(ctx, sympyScript(expr))
	case Visualize:
		return buildChart(args)
	case Ingest:
		return rt.ingest(ctx, firstNonEmpty(args.Path, args.Text))
	case Search:
		return rt.webSearch(ctx, firstNonEmpty(args.Query, args.Text), args.MaxResults)
	case Fetch:
		return rt.fetchURL(ctx, args)
	default:
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, string(name))
	}
}

// chat runs a single non-streaming model call on behalf of a tool.
func (rt *Runtime) chat(ctx context.Context, model, system, user string) (string, error) {
	if rt.llm == nil {
		return "", fmt.Errorf("%w: no model backend wired", ErrToolNotFound)
	}
	if strings.TrimSpace(user) == "" {
		return "", fmt.Errorf("%w: empty input", ErrSandbox)
	}
	if len(user) > rt.maxInput() {
		user = user[:rt.maxInput()]
	}
	resp, err := rt.llm.Chat(ctx, model, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

func (rt *Runtime) ingest(ctx context.Context, path string) (string, error) {
	if rt.index == nil {
		return "", fmt.Errorf("%w: document index not configured", ErrToolNotFound)
	}
	resolved, err := rt.resolveUnderRoot(path)
	if err != nil {
		return "", err
	}
	chunks, err := rt.index.IngestPath(ctx, resolved)
	if err != nil {
		return "", fmt.Errorf("ingest %s: %w", path, err)
	}
	return fmt.Sprintf("indexed %d chunks from %s", chunks, path), nil
}

func (rt *Runtime) webSearch(ctx context.Context, query string, count int) (string, error) {
	if rt.search == nil {
		return "", fmt.Errorf("%w: web search not configured", ErrToolNotFound)
	}
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: empty query", ErrSandbox)
	}
	results, err := rt.search.Search(ctx, query, websearch.Options{Count: count})
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		return "no results", nil
	}
	return websearch.FormatContext(results), nil
}

func (rt *Runtime) fetchURL(ctx context.Context, args Args) (string, error) {
	if rt.fetcher == nil {
		return "", fmt.Errorf("%w: fetcher not configured", ErrToolNotFound)
	}
	rawURL := args.URL
	if rawURL == "" {
		if urls := fetch.ExtractURLs(firstNonEmpty(args.Text, args.Query), 1); len(urls) > 0 {
			rawURL = urls[0]
		}
	}
	if rawURL == "" {
		return "", fmt.Errorf("%w: no url given", ErrSandbox)
	}
	page, err := rt.fetcher.Fetch(ctx, rawURL, 8000)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	var b strings.Builder
	if page.Title != "" {
		b.WriteString(page.Title + "\n")
	}
	b.WriteString(page.URL + "\n\n")
	b.WriteString(page.Content)
	return b.String(), nil
}

// resolveUnderRoot confines a path argument to the configured files
// root, same contract as the file loader.
func (rt *Runtime) resolveUnderRoot(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	root := rt.root
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	abs, err := filepath.Abs(filepath.Join(rootAbs, p))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if abs != rootAbs && !strings.HasPrefix(abs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, p)
	}
	return abs, nil
}

func (rt *Runtime) maxInput() int {
	if rt.cfg.MaxInputChars > 0 {
		return rt.cfg.MaxInputChars
	}
	return 12000
}

// sympyScript wraps an expression for the python sandbox. The raw
// expression lands inside a string literal, so the safe-mode scan of
// the whole script covers whatever sympify would evaluate.
func sympyScript(expr string) string {
	return fmt.Sprintf(`import sympy as sp

raw = %q
try:
    if "=" in raw and "==" not in raw and "<=" not in raw and ">=" not in raw:
        left, right = raw.split("=", 1)
        eq = sp.Eq(sp.sympify(left), sp.sympify(right))
        names = sorted(eq.free_symbols, key=lambda s: s.name)
        if names:
            print(sp.solve(eq, names[0]))
        else:
            print(bool(eq))
    else:
        expr = sp.sympify(raw)
        simplified = sp.simplify(expr)
        print(simplified)
        if not simplified.free_symbols and simplified.is_number:
            print("=", simplified.evalf())
except Exception as exc:
    print("error:", exc)
`, expr)
}

var chartPair = regexp.MustCompile(`^\s*\|?\s*([^|:=,]+?)\s*[|:=,]\s*\$?(-?\d+(?:\.\d+)?)%?\s*\|?\s*$`)

// buildChart turns labeled values into the chart payload the formatter
// understands. Accepts "label: 12", "label = 12", "label, 12", and
// two-cell pipe rows; bare numbers get positional labels.
func buildChart(args Args) (string, error) {
	data := firstNonEmpty(args.Text, args.Code, args.Query)
	kind := strings.ToLower(strings.TrimSpace(args.Kind))
	if kind == "" {
		kind = "bar"
	}

	var labels []string
	var values []float64
	for _, line := range strings.Split(data, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "|--") || strings.HasPrefix(t, "| --") {
			continue
		}
		if m := chartPair.FindStringSubmatch(t); m != nil {
			v, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			labels = append(labels, strings.TrimSpace(m[1]))
			values = append(values, v)
			continue
		}
		if v, err := strconv.ParseFloat(t, 64); err == nil {
			labels = append(labels, strconv.Itoa(len(labels)+1))
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return "", fmt.Errorf("%w: no plottable values in input", ErrSandbox)
	}

	title := args.Title
	if title == "" {
		title = "values"
	}
	payload, err := json.Marshal(map[string]any{
		"type":   kind,
		"labels": labels,
		"datasets": []map[string]any{
			{"label": title, "data": values},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode chart: %v", ErrSandbox, err)
	}
	return format.ChartMarker + string(payload), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
