// Package agent turns one goal into a short numbered plan, executes each
// step against a sandboxed tool or the model, and synthesizes a final
// answer from the accumulated step results. Step failures are recorded
// on the step and never abort the run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/fetch"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
	"github.com/BA-SupportII/BA-AI/internal/tools"
)

const (
	defaultSteps = 5
	stepCap      = 8
)

// Deps wires the agent. Tools may be nil; every step then runs against
// the model.
type Deps struct {
	LLM    llm.Client
	Models config.ModelsConfig
	Tools  *tools.Runtime
	Logger *slog.Logger
}

// Agent plans and executes multi-step goals.
type Agent struct {
	llm    llm.Client
	models config.ModelsConfig
	tools  *tools.Runtime
	logger *slog.Logger
}

// New creates an agent.
func New(d Deps) *Agent {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		llm:    d.LLM,
		models: d.Models,
		tools:  d.Tools,
		logger: logger.With("component", "agent"),
	}
}

// Request is one agent run.
type Request struct {
	Goal     string `json:"goal"`
	UserID   string `json:"userId,omitempty"`
	MaxSteps int    `json:"maxSteps,omitempty"`
}

// StepResult is one executed plan step.
type StepResult struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Tool       string `json:"tool,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Result is a completed agent run.
type Result struct {
	Goal       string       `json:"goal"`
	Plan       []string     `json:"plan"`
	Steps      []StepResult `json:"steps"`
	Answer     string       `json:"answer"`
	Model      string       `json:"model"`
	DurationMS int64        `json:"durationMs"`
}

// Run plans the goal, executes the steps in order, and synthesizes the
// final answer. It fails only on an empty goal or client cancellation;
// individual step failures land in the step results.
func (a *Agent) Run(ctx context.Context, req Request) (*Result, error) {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return nil, errors.New("empty goal")
	}
	limit := req.MaxSteps
	if limit <= 0 {
		limit = defaultSteps
	}
	if limit > stepCap {
		limit = stepCap
	}

	start := time.Now()
	plan := a.plan(ctx, goal, limit)
	a.logger.Info("agent run", "goal", truncate(goal, 80), "steps", len(plan))

	result := &Result{Goal: goal, Plan: plan, Model: a.models.Chat}
	var contextBlock strings.Builder

	for i, text := range plan {
		if ctx.Err() != nil {
			result.DurationMS = time.Since(start).Milliseconds()
			return result, ctx.Err()
		}

		sr := StepResult{Index: i + 1, Text: text}
		stepStart := time.Now()
		output, tool, err := a.execute(ctx, text, contextBlock.String())
		sr.DurationMS = time.Since(stepStart).Milliseconds()
		sr.Tool = tool
		if err != nil {
			sr.Error = err.Error()
			fmt.Fprintf(&contextBlock, "### step %d: %s (failed)\n%s\n\n", i+1, text, err.Error())
			a.logger.Warn("agent step failed", "step", i+1, "tool", tool, "err", err)
		} else {
			sr.Output = output
			fmt.Fprintf(&contextBlock, "### step %d: %s\n%s\n\n", i+1, text, output)
		}
		result.Steps = append(result.Steps, sr)
	}

	result.Answer = a.synthesize(ctx, goal, strings.TrimRight(contextBlock.String(), "\n"))
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

var rePlanLine = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)

// plan asks the planner model for a numbered step list. A planner
// failure degrades to a single step holding the goal itself.
func (a *Agent) plan(ctx context.Context, goal string, limit int) []string {
	model := a.models.Planner
	if model == "" {
		model = a.models.Fast
	}
	if model == "" {
		model = a.models.Chat
	}

	resp, err := a.llm.Chat(ctx, model, []llm.Message{
		{Role: "system", Content: prompts.Planner},
		{Role: "user", Content: goal},
	}, nil)
	if err != nil {
		a.logger.Warn("planner failed, running goal as a single step", "err", err)
		return []string{goal}
	}

	var steps []string
	for _, line := range strings.Split(resp.Message.Content, "\n") {
		if m := rePlanLine.FindStringSubmatch(line); m != nil {
			steps = append(steps, strings.TrimSpace(m[1]))
			if len(steps) == limit {
				break
			}
		}
	}
	if len(steps) == 0 {
		return []string{goal}
	}
	return steps
}

// execute runs one step: against a tool when one matches the step text,
// otherwise as a model call over the context so far.
func (a *Agent) execute(ctx context.Context, text, contextBlock string) (output, tool string, err error) {
	if name, args, ok := a.stepTool(text, contextBlock); ok {
		res, err := a.tools.Run(ctx, name, args)
		if err != nil {
			return "", string(name), err
		}
		return res.Output, string(name), nil
	}

	user := text
	if contextBlock != "" {
		user = "Context so far:\n\n" + contextBlock + "\n\nStep: " + text
	}
	resp, err := a.llm.Chat(ctx, a.models.Chat, []llm.Message{
		{Role: "system", Content: prompts.AgentStep},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(resp.Message.Content), "", nil
}

var reArithmetic = regexp.MustCompile(`[0-9][0-9+\-*/(). ]*[0-9)]`)

// stepTool maps a plan step onto a tool invocation. Explicit tool
// syntax wins; otherwise a few verb heuristics decide. ok is false when
// no tool fits or the tool runtime is off.
func (a *Agent) stepTool(text, contextBlock string) (tools.Name, tools.Args, bool) {
	if a.tools == nil || !a.tools.Enabled() {
		return "", tools.Args{}, false
	}
	if name, args, ok := tools.ParseExplicit(text); ok {
		return name, args, true
	}
	if urls := fetch.ExtractURLs(text, 1); len(urls) > 0 {
		return tools.Fetch, tools.Args{URL: urls[0]}, true
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "search") || strings.Contains(lower, "look up"):
		return tools.Search, tools.Args{Query: stripVerb(text)}, true
	case strings.Contains(lower, "summarize") && contextBlock != "":
		return tools.Summarize, tools.Args{Text: contextBlock}, true
	case strings.Contains(lower, "sql") || strings.Contains(lower, "database"):
		return tools.SQL, tools.Args{Query: text}, true
	case hasComputeVerb(lower):
		if expr := reArithmetic.FindString(text); expr != "" && strings.ContainsAny(expr, "+-*/") {
			return tools.Python, tools.Args{Code: "print(" + strings.TrimSpace(expr) + ")"}, true
		}
	}
	return "", tools.Args{}, false
}

func hasComputeVerb(lower string) bool {
	for _, v := range []string{"calculate", "compute", "evaluate"} {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}

// stripVerb removes the leading search phrasing so the query reads like
// a query, not an instruction.
func stripVerb(text string) string {
	lower := strings.ToLower(text)
	for _, prefix := range []string{"search the web for ", "search the web ", "search for ", "search ", "look up "} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return text
}

// synthesize produces the final answer from the step results. On model
// failure the raw context block ships instead of an error; the steps
// already hold the useful work.
func (a *Agent) synthesize(ctx context.Context, goal, contextBlock string) string {
	if contextBlock == "" {
		return ""
	}
	user := "Step results:\n\n" + contextBlock + "\n\nGoal: " + goal
	resp, err := a.llm.Chat(ctx, a.models.Chat, []llm.Message{
		{Role: "system", Content: prompts.AgentFinal},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		a.logger.Warn("final synthesis failed, returning step results", "err", err)
		return contextBlock
	}
	return strings.TrimSpace(resp.Message.Content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
