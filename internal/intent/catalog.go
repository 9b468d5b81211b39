package intent

import "regexp"

// defaultModelRole is used when no catalog entry matched.
const defaultModelRole = "chat"

// spec is one catalog entry. Patterns are lowercase literal substrings;
// advanced is an optional shape check worth a +5 bonus.
type spec struct {
	tag           Intent
	patterns      []string
	advanced      func(prompt string) bool
	requiresWeb   bool
	model         string // model role: chat, reason, code, fast, grammar
	tools         []string
	flexibleTools bool
}

var (
	reShortQuestion = regexp.MustCompile(`(?i)^(what|who|when|where)\b.{0,60}\?\s*$`)
	reFixLead       = regexp.MustCompile(`(?i)^(fix|correct|proofread|rephrase|reword)\b`)
	reTopN          = regexp.MustCompile(`(?i)\btop\s+\d+\b`)
	reCodeShape     = regexp.MustCompile("```|(?m)^\\s*(def|func|function|class)\\s+\\w+|=>\\s*[{(]")
	reArithmetic    = regexp.MustCompile(`\d\s*[-+*/×÷]\s*\d`)
	reSQLShape      = regexp.MustCompile(`(?is)\b(select|with)\b.+\bfrom\b`)
	reSequence      = regexp.MustCompile(`(?i)\b(first|then|next|finally)\b.*\b(then|next|finally|lastly)\b`)
	reStackFrame    = regexp.MustCompile(`(?i)(traceback \(most recent call last\)|at\s+[\w.$]+\s*\(.+:\d+(:\d+)?\)|^\s*file ".+", line \d+)`)
	reHTMLTag       = regexp.MustCompile(`(?i)<\s*(html|head|body|div|span|p|a|table|form|script|style)\b`)
	reChartKind     = regexp.MustCompile(`(?i)\b(bar|line|pie|scatter|area)\s*(chart|graph|plot)\b`)
	reExcelFormula  = regexp.MustCompile(`=\s*[A-Za-z]+\s*\(`)
	reRiddleShape   = regexp.MustCompile(`(?i)\bwhat\s+(has|gets|goes|comes|can)\b.*\?`)
)

// catalog is the closed intent set. Order matters only for tie-breaks.
var catalog = []spec{
	{
		tag: SimpleQA,
		patterns: []string{
			"what is", "what's", "what are", "who is", "who was", "when did",
			"when was", "where is", "define", "definition of", "meaning of",
			"capital of",
		},
		advanced: reShortQuestion.MatchString,
		model:    "chat",
	},
	{
		tag: GrammarCorrection,
		patterns: []string{
			"fix grammar", "fix my grammar", "correct this", "correct my",
			"proofread", "rephrase", "reword", "grammar check", "check grammar",
			"spelling", "make this sound", "polish this",
		},
		advanced: reFixLead.MatchString,
		model:    "grammar",
	},
	{
		tag: WorldKnowledge,
		patterns: []string{
			"latest", "current", "today", "tonight", "this week", "news",
			"weather", "price of", "stock", "who won", "recently", "right now",
			"as of", "release date",
		},
		requiresWeb: true,
		model:       "chat",
		tools:       []string{"search"},
	},
	{
		tag: RankingQuery,
		patterns: []string{
			"top 10", "top ten", "top 5", "top five", "best 10", "ranking",
			"rank the", "ranked list", "leaderboard", "most popular", "best of",
		},
		advanced:    reTopN.MatchString,
		requiresWeb: true,
		model:       "chat",
		tools:       []string{"search"},
	},
	{
		tag: CodeTask,
		patterns: []string{
			"write a function", "write code", "implement", "refactor",
			"code review", "python", "javascript", "typescript", "golang",
			" rust ", "script that", "class that", "api endpoint", "unit test",
			"regex for", "algorithm for", "compile",
		},
		advanced:      reCodeShape.MatchString,
		model:         "code",
		tools:         []string{"code_execute", "code_analysis"},
		flexibleTools: true,
	},
	{
		tag: MathReasoning,
		patterns: []string{
			"calculate", "compute", "solve", "how many", "how much", "sum of",
			"total of", "average of", "percent", "percentage", "equation",
			"plus", "minus", "times", "divided by", "square root", "remainder",
		},
		advanced: reArithmetic.MatchString,
		model:    "reason",
		tools:    []string{"python", "sympy"},
	},
	{
		tag: SQLQuery,
		patterns: []string{
			"sql", "sqlite", "select ", "query the", "database", "db table",
			"join ", "group by", "order by", "schema", "primary key",
		},
		advanced: reSQLShape.MatchString,
		model:    "code",
		tools:    []string{"sql", "sql_schema"},
	},
	{
		tag: DataAnalysis,
		patterns: []string{
			"analyze the data", "analyze this data", "dataset", "csv",
			"statistics", "statistical", "correlation", "trend", "distribution",
			"mean", "median", "standard deviation", "outlier", "aggregate",
		},
		model:         "reason",
		tools:         []string{"python", "visualize"},
		flexibleTools: true,
	},
	{
		tag: Creative,
		patterns: []string{
			"write a story", "short story", "poem", "haiku", "song", "lyrics",
			"creative", "imagine a", "fiction", "fairy tale", "slogan",
			"tagline", "brainstorm",
		},
		model: "chat",
	},
	{
		tag: DecisionMaking,
		patterns: []string{
			"should i", "pros and cons", "which is better", "compare",
			"comparison", "recommend", "choose between", "trade-off",
			"tradeoff", "worth it", "decision",
		},
		model: "reason",
	},
	{
		tag: Learning,
		patterns: []string{
			"explain", "teach me", "how does", "how do", "how to", "tutorial",
			"learn", "walk me through", "difference between", "why does",
			"in simple terms", "eli5",
		},
		model: "chat",
	},
	{
		tag: Memory,
		patterns: []string{
			"remember", "save this", "note that", "don't forget", "dont forget",
			"recall", "what did i", "my name is", "store this", "keep in mind",
			"from memory",
		},
		model: "fast",
	},
	{
		tag: MultiStep,
		patterns: []string{
			"step by step", "multiple steps", "plan for", "roadmap", "workflow",
			"pipeline", "and then", "after that", "break down", "checklist",
			"sequence of",
		},
		advanced:      reSequence.MatchString,
		model:         "reason",
		flexibleTools: true,
	},
	{
		tag: DebugLog,
		patterns: []string{
			"error", "exception", "stack trace", "stacktrace", "traceback",
			"debug", "crash", "fails with", "not working", "undefined",
			"null pointer", "segfault", "panic:", "broken",
		},
		advanced: reStackFrame.MatchString,
		model:    "code",
		tools:    []string{"code_analysis"},
	},
	{
		tag: HTMLMarkup,
		patterns: []string{
			"html", "css", "webpage", "web page", "landing page", "markup",
			"frontend", "bootstrap", "tailwind", "responsive page",
		},
		advanced: reHTMLTag.MatchString,
		model:    "code",
	},
	{
		tag: AnalysisReport,
		patterns: []string{
			"report on", "analysis report", "executive summary", "deep dive",
			"in-depth analysis", "comprehensive report", "white paper",
			"detailed report", "full report",
		},
		model: "reason",
	},
	{
		tag: Visualization,
		patterns: []string{
			"chart", "graph", "plot", "visualize", "visualization",
			"bar chart", "pie chart", "line graph", "histogram", "heatmap",
			"dashboard",
		},
		advanced:      reChartKind.MatchString,
		model:         "chat",
		tools:         []string{"visualize"},
		flexibleTools: true,
	},
	{
		tag: ProofSolving,
		patterns: []string{
			"prove", "proof", "theorem", "lemma", "induction", "contradiction",
			"qed", "axiom", "derive", "show that", "demonstrate that",
		},
		model: "reason",
		tools: []string{"sympy"},
	},
	{
		tag: SystemDesign,
		patterns: []string{
			"architecture", "system design", "design a system", "scalable",
			"scalability", "microservice", "load balancer", "high availability",
			"distributed", "fault tolerant", "design doc",
		},
		model: "reason",
	},
	{
		tag: FormulaGeneration,
		patterns: []string{
			"excel formula", "excel", "spreadsheet", "google sheets", "vlookup",
			"sumif", "countif", "formula for", "formula to", "cell range",
		},
		advanced: reExcelFormula.MatchString,
		model:    "fast",
	},
	{
		tag: Riddle,
		patterns: []string{
			"riddle", "puzzle", "brain teaser", "what am i", "trick question",
			"lateral thinking", "guess what",
		},
		advanced: reRiddleShape.MatchString,
		model:    "chat",
	},
}

// Catalog returns the intent tags in catalog order.
func Catalog() []Intent {
	tags := make([]Intent, len(catalog))
	for i, s := range catalog {
		tags[i] = s.tag
	}
	return tags
}
