// Package validate runs the intent-conditioned checks an answer passes
// through before it ships: arithmetic re-verification in the scripting
// sandbox, a smoke run of generated code with one regeneration on
// failure, a reviewer-model pass for design and decision answers, and
// structural grounding checks for rankings. Every check degrades to
// "leave the answer alone" when its collaborator is missing or fails;
// validation never turns a usable answer into an error.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/format"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
	"github.com/BA-SupportII/BA-AI/internal/tools"
	"github.com/BA-SupportII/BA-AI/internal/websearch"
)

// driftTolerance is the largest difference between the model's number
// and the sandbox's number that still counts as agreement.
const driftTolerance = 1e-6

// Deps wires the validator. Tools and LLM may be nil; checks that need
// a missing collaborator are skipped.
type Deps struct {
	Tools  *tools.Runtime
	LLM    llm.Client
	Models config.ModelsConfig
	Logger *slog.Logger
}

// Validator applies post-generation checks.
type Validator struct {
	tools  *tools.Runtime
	llm    llm.Client
	models config.ModelsConfig
	logger *slog.Logger

	// eval computes an arithmetic expression. Defaults to the python
	// sandbox; tests stub it.
	eval func(ctx context.Context, expr string) (float64, bool)
}

// New creates a validator.
func New(d Deps) *Validator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{
		tools:  d.Tools,
		llm:    d.LLM,
		models: d.Models,
		logger: logger.With("component", "validate"),
	}
	v.eval = v.sandboxEval
	return v
}

// Input is one answer to validate.
type Input struct {
	// Prompt is the user's original text.
	Prompt string
	// Text is the generated answer.
	Text string

	Verdict intent.Verdict
	// Sources are the web results the answer was grounded on. Ranking
	// validation keys off their presence.
	Sources []websearch.Result

	// Regenerate retries generation once with a correction hint
	// prepended. Nil disables the code check's regeneration step.
	Regenerate func(ctx context.Context, hint string) (string, error)
}

// Outcome is the validated answer.
type Outcome struct {
	// Text is the answer after validation, possibly corrected.
	Text string
	// Corrected reports whether any check changed the answer.
	Corrected bool
	// Check names the check that fired, empty when nothing changed.
	Check string
}

// Validate applies the check matching the verdict's intent. Exactly one
// check family runs per answer.
func (v *Validator) Validate(ctx context.Context, in Input) Outcome {
	out := Outcome{Text: in.Text}

	var (
		text    string
		changed bool
		check   string
	)
	switch in.Verdict.Intent {
	case intent.MathReasoning:
		text, changed = v.checkMath(ctx, in)
		check = "math"
	case intent.CodeTask:
		text, changed = v.checkCode(ctx, in)
		check = "code"
	case intent.SystemDesign, intent.DecisionMaking:
		text, changed = v.riskReview(ctx, in)
		check = "risk_review"
	case intent.RankingQuery:
		text, changed = CheckRanking(in.Prompt, in.Text, in.Sources)
		check = "ranking"
	default:
		return out
	}

	if changed {
		v.logger.Info("validation corrected answer", "check", check, "intent", string(in.Verdict.Intent))
		out.Text = text
		out.Corrected = true
		out.Check = check
	}
	return out
}

// --- math ---

var (
	reExpr       = regexp.MustCompile(`[0-9(][0-9+\-*/().\s]*`)
	reLastNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// checkMath re-evaluates the prompt's last arithmetic expression in the
// sandbox and compares it to the last number of the answer's Result
// section. Disagreement beyond the tolerance replaces the answer with a
// locally built one; the sandbox value wins.
func (v *Validator) checkMath(ctx context.Context, in Input) (string, bool) {
	expr := LastExpression(in.Prompt)
	if expr == "" {
		return in.Text, false
	}
	want, ok := v.eval(ctx, expr)
	if !ok {
		return in.Text, false
	}
	got, ok := lastResultNumber(in.Text)
	if ok && diff(got, want) <= driftTolerance {
		return in.Text, false
	}
	compact := strings.ReplaceAll(expr, " ", "")
	return format.Envelope(compact + " = " + formatNumber(want)), true
}

func (v *Validator) sandboxEval(ctx context.Context, expr string) (float64, bool) {
	if v.tools == nil || !v.tools.Enabled() {
		return 0, false
	}
	res, err := v.tools.Run(ctx, tools.Python, tools.Args{Code: "print(" + expr + ")"})
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(res.Output), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// LastExpression returns the last plain arithmetic expression in the
// prompt: digits, + - * /, parentheses. Unicode operator spellings are
// normalized first. Returns "" when the prompt holds no expression with
// at least one operator and balanced parentheses.
func LastExpression(prompt string) string {
	s := strings.NewReplacer("×", "*", "÷", "/", "−", "-").Replace(prompt)
	matches := reExpr.FindAllString(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		expr := strings.TrimSpace(matches[i])
		expr = strings.TrimRight(expr, "+-*/(. \t")
		if expr == "" || !strings.ContainsAny(expr, "+-*/") {
			continue
		}
		if !strings.ContainsAny(expr, "0123456789") {
			continue
		}
		if !balancedParens(expr) {
			continue
		}
		return expr
	}
	return ""
}

func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// lastResultNumber pulls the final numeric token out of the answer's
// Result section, or out of the whole answer when the envelope is
// missing.
func lastResultNumber(text string) (float64, bool) {
	section := text
	if i := strings.LastIndex(text, "Result"); i >= 0 {
		section = text[i:]
	}
	nums := reLastNumber.FindAllString(section, -1)
	if len(nums) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(nums[len(nums)-1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// --- code ---

var reFence = regexp.MustCompile("(?s)```([a-zA-Z]+)[ \t]*\n(.*?)```")

// checkCode smoke-runs the answer's first fenced python/javascript/
// typescript block. A failing run regenerates the answer once with the
// error text prepended; a silent success leaves the answer untouched.
func (v *Validator) checkCode(ctx context.Context, in Input) (string, bool) {
	lang, code := firstFence(in.Text)
	if code == "" || v.tools == nil || !v.tools.Enabled() {
		return in.Text, false
	}
	_, err := v.tools.Run(ctx, tools.CodeExecute, tools.Args{Language: lang, Code: code})
	if err == nil {
		return in.Text, false
	}
	if in.Regenerate == nil {
		return in.Text, false
	}
	v.logger.Info("code smoke run failed, regenerating once", "language", lang, "err", err)
	hint := fmt.Sprintf("The code in the previous answer failed when executed:\n%v\n\nOriginal request:\n%s", err, in.Prompt)
	fixed, rerr := in.Regenerate(ctx, hint)
	if rerr != nil || strings.TrimSpace(fixed) == "" {
		return in.Text, false
	}
	return fixed, true
}

// firstFence returns the first fenced block whose language tag maps to
// a sandboxed runtime, normalized to python/javascript/typescript.
func firstFence(text string) (lang, code string) {
	for _, m := range reFence.FindAllStringSubmatch(text, -1) {
		switch strings.ToLower(m[1]) {
		case "python", "py":
			return "python", m[2]
		case "javascript", "js", "node":
			return "javascript", m[2]
		case "typescript", "ts":
			return "typescript", m[2]
		}
	}
	return "", ""
}

// --- risk review ---

// riskReview runs one reviewer-model pass over the draft. The reviewer
// either returns the draft unchanged or a corrected final answer.
func (v *Validator) riskReview(ctx context.Context, in Input) (string, bool) {
	if v.llm == nil {
		return in.Text, false
	}
	model := v.models.Reviewer
	if model == "" {
		model = v.models.Chat
	}
	user := "Question:\n" + in.Prompt + "\n\nDraft answer:\n" + in.Text
	resp, err := v.llm.Chat(ctx, model, []llm.Message{
		{Role: "system", Content: prompts.RiskReview},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		v.logger.Warn("risk review failed, keeping draft", "err", err)
		return in.Text, false
	}
	reviewed := strings.TrimSpace(resp.Message.Content)
	if reviewed == "" || reviewed == strings.TrimSpace(in.Text) {
		return in.Text, false
	}
	return reviewed, true
}

// --- ranking ---

var (
	reRankItem = regexp.MustCompile(`(?m)^\s*(\d+)[.)]\s+\S`)
	reCitation = regexp.MustCompile(`\[\d+\]`)
)

// CheckRanking enforces the grounding contract on a ranking answer.
// With no sources the answer becomes the stock refusal. With sources it
// must enumerate from 1. and 2. and carry at least one [n] citation; a
// missing enumeration is rebuilt from the source titles, a missing
// citation block is appended, and a literal "top 10" request with fewer
// than ten grounded items gets an honest notice prepended.
func CheckRanking(prompt, text string, sources []websearch.Result) (string, bool) {
	if len(sources) == 0 {
		return format.Envelope(prompts.RankingRefusal), true
	}

	items := reRankItem.FindAllStringSubmatch(text, -1)
	var first, second bool
	for _, m := range items {
		switch m[1] {
		case "1":
			first = true
		case "2":
			second = true
		}
	}
	if !first || !second {
		return rankingFromSources(sources), true
	}

	out := text
	changed := false
	if !reCitation.MatchString(out) {
		out = strings.TrimRight(out, "\n") + "\n\nSources\n" + websearch.FormatContext(sources)
		changed = true
	}
	if wantsTopTen(prompt) && len(items) < 10 {
		out = fmt.Sprintf("Note: only %d items could be grounded in the sources.\n\n", len(items)) + out
		changed = true
	}
	return out, changed
}

// wantsTopTen reports whether the prompt literally asks for a top 10.
// Other list sizes are not enforced.
func wantsTopTen(prompt string) bool {
	return strings.Contains(strings.ToLower(prompt), "top 10")
}

// rankingFromSources builds a minimal grounded ranking when the model
// ignored the enumeration contract: the source titles in order, each
// carrying its own citation.
func rankingFromSources(sources []websearch.Result) string {
	var b strings.Builder
	b.WriteString("Thinking\n- ranked directly from the grounded sources\n\nResult\n")
	for i, s := range sources {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "%d. %s [%d]\n", i+1, s.Title, i+1)
	}
	return strings.TrimRight(b.String(), "\n")
}
