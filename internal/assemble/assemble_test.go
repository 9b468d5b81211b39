package assemble

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/docindex"
	"github.com/BA-SupportII/BA-AI/internal/files"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/memory"
	"github.com/BA-SupportII/BA-AI/internal/route"
	"github.com/BA-SupportII/BA-AI/internal/tools"
	"github.com/BA-SupportII/BA-AI/internal/websearch"
)

// chatStub answers every Chat call with a fixed reply and records the
// models asked.
type chatStub struct {
	mu     sync.Mutex
	models []string
	reply  string
	err    error
}

func (c *chatStub) Chat(_ context.Context, model string, _ []llm.Message, _ *llm.Options) (*llm.ChatResponse, error) {
	c.mu.Lock()
	c.models = append(c.models, model)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &llm.ChatResponse{
		Model:   model,
		Message: llm.Message{Role: "assistant", Content: c.reply},
		Done:    true,
	}, nil
}

func (c *chatStub) ChatStream(ctx context.Context, model string, msgs []llm.Message, opts *llm.Options, _ llm.StreamCallback) (*llm.ChatResponse, error) {
	return c.Chat(ctx, model, msgs, opts)
}

func (c *chatStub) Ping(context.Context) error                   { return nil }
func (c *chatStub) ListModels(context.Context) ([]string, error) { return nil, nil }

func (c *chatStub) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// fakeEngine is a scripted search provider.
type fakeEngine struct {
	mu      sync.Mutex
	queries []string
	results []websearch.Result
	err     error
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Search(_ context.Context, q string, _ websearch.Options) ([]websearch.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeEngine) queried() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func manager(p websearch.Provider) *websearch.Manager {
	m := websearch.NewManager(nil)
	m.Register(p)
	return m
}

// Heavy prompts: over 80 characters and carrying a question mark so
// the load-shedding bypass does not fire.
const (
	webPrompt  = "What changed in the hydrogen storage market this quarter, and which suppliers reported new capacity?"
	filePrompt = "How do we deploy the staging environment safely, and which rollback steps should the deploy checklist include?"
	ragPrompt  = "Which escalation path does the incident runbook describe for a database outage, and who gets paged first?"
)

func TestBypassHeavy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		prompt string
		want   bool
	}{
		{"short question", "why?", true},
		{"eighty chars", strings.Repeat("x", 80), true},
		{"mid length without question", strings.Repeat("x", 140), true},
		{"mid length with question", strings.Repeat("x", 100) + "?", false},
		{"long", strings.Repeat("x", 141), false},
	}
	for _, tt := range tests {
		if got := bypassHeavy(tt.prompt); got != tt.want {
			t.Errorf("%s: bypassHeavy = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMessy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		prompt string
		want   bool
	}{
		{"double space and tight comma", "fix,this thing  here now", true},
		{"triple letter and tight comma", "helllp me,please now", true},
		{"clean", "please fix this sentence", false},
		{"single signal only", "fix this  sentence now", false},
		{"too few words", "i think", false},
		{"too long", strings.Repeat("word ", 30), false},
	}
	for _, tt := range tests {
		if got := messy(tt.prompt); got != tt.want {
			t.Errorf("%s: messy(%q) = %v, want %v", tt.name, tt.prompt, got, tt.want)
		}
	}
}

func TestBuildLightPromptStaysBare(t *testing.T) {
	t.Parallel()
	stub := &chatStub{reply: "should never be used"}
	engine := &fakeEngine{results: []websearch.Result{{Title: "t", URL: "http://x"}}}

	a := New(Deps{
		Models: config.ModelsConfig{Grammar: "g", Planner: "p", Reranker: "r"},
		LLM:    stub,
		Web:    manager(engine),
	})

	out, err := a.Build(context.Background(), Request{
		Prompt: "what is two plus two",
	}, intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !out.BypassedHeavy {
		t.Error("BypassedHeavy = false for a short prompt")
	}
	if out.Text != "what is two plus two" {
		t.Errorf("Text = %q, want the bare prompt", out.Text)
	}
	if calls := stub.calls(); len(calls) != 0 {
		t.Errorf("light prompt reached auxiliary models: %v", calls)
	}
	if engine.queried() != 0 {
		t.Error("light prompt with no web demand reached web search")
	}
}

func TestBuildShortRankingStillSearchesWeb(t *testing.T) {
	t.Parallel()
	stub := &chatStub{reply: "should never be used"}
	engine := &fakeEngine{results: []websearch.Result{
		{Title: "Model leaderboard", URL: "https://example.com/lb", Snippet: "rankings"},
		{Title: "Benchmark roundup", URL: "https://example.com/bench"},
		{Title: "Release notes", URL: "https://example.com/rel"},
	}}

	a := New(Deps{
		Models: config.ModelsConfig{Grammar: "g", Planner: "p", Reranker: "r"},
		Search: config.SearchConfig{MaxResults: 5},
		LLM:    stub,
		Web:    manager(engine),
	})

	// "top 10 LLMs" is well under the load-shedding threshold; web
	// grounding must still run because the intent demands it.
	out, err := a.Build(context.Background(), Request{
		Prompt:  "top 10 LLMs",
		AutoWeb: true,
	}, intent.Verdict{Intent: intent.RankingQuery, RequiresWeb: true}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !out.BypassedHeavy {
		t.Error("BypassedHeavy = false for a short prompt")
	}
	if engine.queried() != 1 {
		t.Errorf("web provider calls = %d, want 1", engine.queried())
	}
	if !out.WebUsed || len(out.WebResults) != 3 {
		t.Errorf("WebUsed = %v, WebResults = %d, want true and 3", out.WebUsed, len(out.WebResults))
	}
	if !strings.Contains(out.Text, "Web context:") || !strings.Contains(out.Text, "Model leaderboard") {
		t.Errorf("web section missing:\n%s", out.Text)
	}
	// Web is the only heavy section exempt from the bypass; the
	// grammar, planner, and reranker models stay idle.
	if calls := stub.calls(); len(calls) != 0 {
		t.Errorf("short ranking prompt reached auxiliary models: %v", calls)
	}
}

func TestBuildExplicitFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("remember the port is 8080"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := New(Deps{Files: files.NewLoader(root, nil)})

	out, err := a.Build(context.Background(), Request{
		Prompt:    "summarize my notes",
		FilePaths: []string{"notes.txt"},
	}, intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(out.Text, "File context:") {
		t.Error("missing file section")
	}
	if !strings.Contains(out.Text, "notes.txt") || !strings.Contains(out.Text, "port is 8080") {
		t.Errorf("file content not inlined:\n%s", out.Text)
	}
	if len(out.Files) != 1 || out.Files[0] != "notes.txt" {
		t.Errorf("Files = %v, want [notes.txt]", out.Files)
	}
	if out.AutoFiles {
		t.Error("AutoFiles = true for explicitly named files")
	}
}

func TestBuildAutoFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "deploy.md"), []byte("deploy checklist: drain, roll, verify, rollback on errors"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := New(Deps{Files: files.NewLoader(root, nil)})

	// A light prompt must not trigger auto selection.
	out, err := a.Build(context.Background(), Request{
		Prompt:    "how do we deploy",
		AutoFiles: true,
	}, intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.AutoFiles || strings.Contains(out.Text, "File context:") {
		t.Error("light prompt auto-attached files")
	}

	// A heavy prompt naming the file's subject should attach it.
	out, err = a.Build(context.Background(), Request{
		Prompt:    filePrompt,
		AutoFiles: true,
	}, intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !out.AutoFiles {
		t.Error("AutoFiles = false, want selection to fire")
	}
	if !strings.Contains(out.Text, "deploy.md") {
		t.Errorf("selected file missing from text:\n%s", out.Text)
	}
}

func TestBuildWebSectionFromSearch(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{results: []websearch.Result{
		{Title: "Quarterly report", URL: "https://example.com/q", Snippet: "capacity up"},
		{Title: "Supplier news", URL: "https://example.com/s"},
	}}

	a := New(Deps{
		Search: config.SearchConfig{MaxResults: 5},
		Web:    manager(engine),
	})

	out, err := a.Build(context.Background(), Request{Prompt: webPrompt},
		intent.Verdict{Intent: intent.WorldKnowledge, RequiresWeb: true}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !out.WebUsed {
		t.Error("WebUsed = false")
	}
	if len(out.WebResults) != 2 {
		t.Errorf("WebResults = %d, want 2", len(out.WebResults))
	}
	if !strings.Contains(out.Text, "Web context:") || !strings.Contains(out.Text, "Quarterly report") {
		t.Errorf("web section missing:\n%s", out.Text)
	}
}

func TestBuildNoWebWins(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{results: []websearch.Result{{Title: "t", URL: "http://x"}}}

	a := New(Deps{Web: manager(engine)})

	out, err := a.Build(context.Background(), Request{
		Prompt:  webPrompt,
		AutoWeb: true,
		NoWeb:   true,
	}, intent.Verdict{Intent: intent.WorldKnowledge, RequiresWeb: true}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if out.WebUsed || engine.queried() != 0 {
		t.Error("NoWeb did not suppress the search")
	}
	if strings.Contains(out.Text, "Web context:") {
		t.Error("web section present despite NoWeb")
	}
}

func TestBuildRAGSection(t *testing.T) {
	t.Parallel()
	docs := t.TempDir()
	runbook := "Incident escalation runbook. For a database outage page the on-call " +
		"database owner first, then escalate to the platform lead after fifteen minutes."
	if err := os.WriteFile(filepath.Join(docs, "runbook.md"), []byte(runbook), 0o644); err != nil {
		t.Fatal(err)
	}

	index, err := docindex.New(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("docindex.New: %v", err)
	}
	if n, err := index.BuildDocs(context.Background(), docs); err != nil || n != 1 {
		t.Fatalf("BuildDocs = %d, %v", n, err)
	}

	a := New(Deps{Index: index})

	out, err := a.Build(context.Background(), Request{
		Prompt:      ragPrompt,
		UseDocIndex: true,
	}, intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(out.Text, "Document context:") {
		t.Errorf("missing document section:\n%s", out.Text)
	}
	if len(out.RAGSources) == 0 || !strings.Contains(out.RAGSources[0], "runbook.md") {
		t.Errorf("RAGSources = %v, want runbook.md first", out.RAGSources)
	}
}

func TestBuildMemorySection(t *testing.T) {
	t.Parallel()
	store, err := memory.NewStore(filepath.Join(t.TempDir(), "memory.json"),
		config.MemoryConfig{MinRecallScore: 1}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.Save("favorite dashboard color", "the team settled on teal for dashboards",
		memory.Meta{UserID: "u1", Type: memory.TypePreference}, nil)

	a := New(Deps{Memory: store})

	out, err := a.Build(context.Background(), Request{
		Prompt: "which dashboard color did we pick",
		UserID: "u1",
	}, intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.MemoryHits != 1 {
		t.Errorf("MemoryHits = %d, want 1", out.MemoryHits)
	}
	if !strings.Contains(out.Text, "Remembered context:") || !strings.Contains(out.Text, "teal") {
		t.Errorf("memory section missing:\n%s", out.Text)
	}

	// Another user's prompt must not see the entry.
	out, err = a.Build(context.Background(), Request{
		Prompt: "which dashboard color did we pick",
		UserID: "u2",
	}, intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.MemoryHits != 0 || strings.Contains(out.Text, "teal") {
		t.Error("memory leaked across users")
	}
}

func TestBuildSchemaSection(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "app.db")
	sqlStore := tools.NewSQLStore(dbPath, nil)
	if _, err := sqlStore.Query(context.Background(), "",
		"CREATE TABLE metrics (id INTEGER PRIMARY KEY, name TEXT, value REAL)", true); err != nil {
		t.Fatalf("create table: %v", err)
	}

	a := New(Deps{SQL: sqlStore, SQLPath: dbPath})

	out, err := a.Build(context.Background(), Request{Prompt: "total value by metric name"},
		intent.Verdict{Intent: intent.SQLQuery}, route.Route{Task: "sql"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(out.Text, "Database schema:") || !strings.Contains(out.Text, "metrics") {
		t.Errorf("schema section missing:\n%s", out.Text)
	}
}

func TestEffectivePromptRewrite(t *testing.T) {
	t.Parallel()
	const raw = "could you check,please whether the  response cache keeps serving an entry after its ttl expired?"
	const clean = "Does the response cache keep serving an entry after its TTL has expired?"

	stub := &chatStub{reply: clean}
	a := New(Deps{
		Models: config.ModelsConfig{Grammar: "qwen3:1.7b"},
		LLM:    stub,
	})

	out, err := a.Build(context.Background(), Request{Prompt: raw},
		intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.EffectivePrompt != clean {
		t.Errorf("EffectivePrompt = %q, want rewrite", out.EffectivePrompt)
	}
	if !strings.HasPrefix(out.Text, clean) {
		t.Errorf("Text does not open with the rewrite:\n%s", out.Text)
	}
	if calls := stub.calls(); len(calls) != 1 || calls[0] != "qwen3:1.7b" {
		t.Errorf("grammar model calls = %v", calls)
	}
}

func TestEffectivePromptSkippedForGrammarTask(t *testing.T) {
	t.Parallel()
	const raw = "could you check,please whether the  response cache keeps serving an entry after its ttl expired?"

	stub := &chatStub{reply: "rewritten"}
	a := New(Deps{
		Models: config.ModelsConfig{Grammar: "qwen3:1.7b"},
		LLM:    stub,
	})

	out, err := a.Build(context.Background(), Request{Prompt: raw},
		intent.Verdict{Intent: intent.GrammarCorrection}, route.Route{Task: "grammar"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.EffectivePrompt != raw {
		t.Errorf("grammar task rewrote its own input: %q", out.EffectivePrompt)
	}
	if len(stub.calls()) != 0 {
		t.Error("grammar model called for a grammar task")
	}
}

func TestEffectivePromptKeepsRawOnFailure(t *testing.T) {
	t.Parallel()
	const raw = "could you check,please whether the  response cache keeps serving an entry after its ttl expired?"

	stub := &chatStub{err: context.DeadlineExceeded}
	a := New(Deps{
		Models: config.ModelsConfig{Grammar: "qwen3:1.7b"},
		LLM:    stub,
	})

	out, err := a.Build(context.Background(), Request{Prompt: raw},
		intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.EffectivePrompt != raw {
		t.Errorf("EffectivePrompt = %q, want the raw prompt kept", out.EffectivePrompt)
	}
}

func TestBuildPlannerSectionForMultiStep(t *testing.T) {
	t.Parallel()
	stub := &chatStub{reply: "1. inventory\n2. compare\n3. summarize"}
	a := New(Deps{
		Models: config.ModelsConfig{Planner: "qwen3:1.7b"},
		LLM:    stub,
	})

	out, err := a.Build(context.Background(), Request{Prompt: webPrompt},
		intent.Verdict{Intent: intent.MultiStep}, route.Route{Task: "agent"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(out.Text, "Plan:\n1. inventory") {
		t.Errorf("planner section missing:\n%s", out.Text)
	}
}

func TestBuildCancelled(t *testing.T) {
	t.Parallel()
	index, err := docindex.New(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := New(Deps{Index: index})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Build(ctx, Request{Prompt: ragPrompt, UseDocIndex: true},
		intent.Verdict{Intent: intent.SimpleQA}, route.Route{Task: "chat"}); err == nil {
		t.Fatal("Build on a cancelled context should fail")
	}
}

func TestVagueRankingHint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		verdict  intent.Verdict
		prompt   string
		wantHint bool
	}{
		{"no category named", intent.Verdict{Intent: intent.RankingQuery}, "top 10 best things ever", true},
		{"category named", intent.Verdict{Intent: intent.RankingQuery}, "top 10 best gpu cards", false},
		{"token inside word does not count", intent.Verdict{Intent: intent.RankingQuery}, "rank the hardest to maintain", true},
		{"not a ranking", intent.Verdict{Intent: intent.SimpleQA}, "top 10 best things ever", false},
	}
	for _, tt := range tests {
		got := vagueRankingHint(tt.verdict, tt.prompt)
		if (got != "") != tt.wantHint {
			t.Errorf("%s: hint = %q, wantHint %v", tt.name, got, tt.wantHint)
		}
	}
}

func TestIntentExtras(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tag  intent.Intent
		want string
	}{
		{intent.Visualization, "CHART_JSON:"},
		{intent.SystemDesign, "mermaid"},
		{intent.HTMLMarkup, "HTML"},
		{intent.ProofSolving, "proof"},
		{intent.Creative, "imagery"},
		{intent.SimpleQA, ""},
	}
	for _, tt := range tests {
		got := intentExtras(tt.tag)
		if tt.want == "" {
			if got != "" {
				t.Errorf("intentExtras(%s) = %q, want empty", tt.tag, got)
			}
			continue
		}
		if !strings.Contains(got, tt.want) {
			t.Errorf("intentExtras(%s) = %q, want substring %q", tt.tag, got, tt.want)
		}
	}
}

func TestContainsWord(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s, word string
		want    bool
	}{
		{"which ai is best", "ai", true},
		{"hardest to maintain", "ai", false},
		{"gpu prices", "gpu", true},
		{"best laptops", "laptop", false},
	}
	for _, tt := range tests {
		if got := containsWord(tt.s, tt.word); got != tt.want {
			t.Errorf("containsWord(%q, %q) = %v, want %v", tt.s, tt.word, got, tt.want)
		}
	}
}
