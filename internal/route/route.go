// Package route picks the backend model and system prompt for a
// request. Selection is a fixed-order rule table over explicit
// overrides, prompt patterns, and size hints; the classifier verdict
// then escalates or downgrades the model in place.
package route

import (
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
)

// Route is the outcome of model selection for one request.
type Route struct {
	Task           string `json:"task"`
	Model          string `json:"model"`
	SystemPromptID string `json:"systemPromptId"`
	Rationale      string `json:"rationale"`
}

// Request carries the routing inputs that come from the caller rather
// than from the classifier.
type Request struct {
	Prompt        string
	TaskOverride  string
	ModelOverride string
	HasImage      bool
	PreferFast    bool
}

// tasks is the closed set of route task tags.
var tasks = map[string]bool{
	"chat": true, "reason": true, "code": true, "sql": true,
	"debug": true, "chart": true, "vision": true, "research": true,
	"report": true, "dashboard": true, "dashboard_vanilla": true,
	"image_prompt": true, "video_prompt": true, "fast": true,
	"grammar": true, "personal": true, "custom": true,
}

// ValidTask reports whether a caller-supplied task override names a
// known profile.
func ValidTask(task string) bool {
	return tasks[strings.ToLower(strings.TrimSpace(task))]
}

// priority pattern tables, scanned in order; the first matching
// pattern decides the task. Patterns are lowercase substrings.
var priority = []struct {
	task     string
	patterns []string
}{
	{"grammar", []string{
		"fix grammar", "correct grammar", "fix the grammar", "proofread",
		"grammar check", "fix this sentence", "correct this sentence",
	}},
	{"personal", []string{
		"remember that", "remember this", "do you remember",
		"what do you know about me", "my name is", "about me",
	}},
	{"image_prompt", []string{
		"image prompt", "stable diffusion", "generate an image",
		"generate image", "draw me", "picture of",
	}},
	{"video_prompt", []string{
		"video prompt", "generate a video", "make a video", "animate",
	}},
	{"dashboard", []string{"dashboard"}},
	{"chart", []string{
		"chart", "plot ", "graph of", "visualize", "visualise",
	}},
	{"report", []string{
		"write a report", "detailed report", "full report",
		"executive summary", "analysis report",
	}},
	{"research", []string{
		"research", "latest", "current news", "look up", "search the web",
		"as of today",
	}},
	{"debug", []string{
		"stack trace", "stacktrace", "traceback", "exception",
		"error log", "segfault", "panic:", "core dump",
	}},
	{"sql", []string{
		"sql", "sqlite", "select * from", "database table", "write a query",
	}},
	{"code", []string{
		"function", "code", "script", "implement", "refactor",
		"algorithm", "regex", "compile", "bug in", "unit test",
	}},
}

var vanillaHints = []string{"vanilla", "no libraries", "no frameworks", "no dependencies", "plain html"}

// tinyPrompt is the size hint for the fast profile: a short one-liner
// with no code fence.
func tinyPrompt(prompt string) bool {
	return len(prompt) <= 40 && !strings.Contains(prompt, "```")
}

// modelFor maps a task tag to the configured backend model.
func modelFor(task string, m config.ModelsConfig) string {
	switch task {
	case "reason":
		return m.Reason
	case "code", "sql", "debug", "dashboard", "dashboard_vanilla":
		return m.Code
	case "vision":
		return m.Vision
	case "fast", "image_prompt", "video_prompt":
		return m.Fast
	case "grammar":
		return m.Grammar
	default:
		return m.Chat
	}
}

func profile(task, rationale string, m config.ModelsConfig) Route {
	return Route{
		Task:           task,
		Model:          modelFor(task, m),
		SystemPromptID: task,
		Rationale:      rationale,
	}
}

// Pick selects the route for a request. Decision order: explicit task
// override, attached image, priority pattern tables, prefer-fast or
// tiny prompt, default chat. The verdict then escalates low-confidence
// routes, downgrades simple math, and forces the ranking prompt.
func Pick(req Request, v intent.Verdict, models config.ModelsConfig) Route {
	r, overridden := base(req, models)

	if req.ModelOverride != "" {
		r.Model = req.ModelOverride
		r.Rationale += "; model pinned by request"
		return r
	}

	if v.Intent == intent.MathReasoning && v.Complexity <= intent.ComplexitySimple {
		r.Model = models.Fast
		r.Rationale += "; downgraded for simple math"
	} else if v.Confidence == intent.ConfidenceLow ||
		(v.Confidence == intent.ConfidenceMedium && v.Complexity >= intent.ComplexityHigh) {
		switch {
		case r.Task == "code" || r.Task == "sql" || r.Task == "debug":
			r.Model = models.Code
		case v.PreferredModel == "reason":
			r.Model = models.Reason
		case r.Task == "grammar":
			r.Model = models.Grammar
		default:
			r.Model = models.Chat
		}
		r.Rationale += "; escalated on " + strings.ToLower(string(v.Confidence)) + " confidence"
	}

	if v.Intent == intent.RankingQuery && !overridden {
		r.SystemPromptID = prompts.RankingID
		r.Rationale += "; ranking prompt forced"
	}
	return r
}

func base(req Request, models config.ModelsConfig) (Route, bool) {
	if t := strings.ToLower(strings.TrimSpace(req.TaskOverride)); t != "" && tasks[t] {
		return profile(t, "explicit task override", models), true
	}
	if req.HasImage {
		return profile("vision", "image attached", models), false
	}

	lower := strings.ToLower(req.Prompt)
	for _, p := range priority {
		for _, pat := range p.patterns {
			if !strings.Contains(lower, pat) {
				continue
			}
			task := p.task
			if task == "dashboard" && wantsVanilla(lower) {
				task = "dashboard_vanilla"
			}
			return profile(task, "pattern: "+pat, models), false
		}
	}

	if req.PreferFast {
		return profile("fast", "prefer-fast hint", models), false
	}
	if tinyPrompt(req.Prompt) {
		return profile("fast", "tiny prompt", models), false
	}
	return profile("chat", "default", models), false
}

func wantsVanilla(lower string) bool {
	for _, h := range vanillaHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// Fallback returns the deterministic retry model after a failed
// attempt. It never returns the model that just failed.
func Fallback(current string, v intent.Verdict, models config.ModelsConfig) string {
	var fb string
	switch {
	case v.Intent == intent.MathReasoning && v.Complexity <= intent.ComplexitySimple:
		fb = models.Fast
	case v.Intent == intent.MathReasoning:
		fb = models.Chat
	case v.PreferredModel == "code" || v.PreferredModel == "reason":
		fb = models.Chat
	default:
		fb = models.Fast
	}
	if fb != current {
		return fb
	}
	if current == models.Fast {
		return models.Chat
	}
	return models.Fast
}
