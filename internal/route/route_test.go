package route

import (
	"strings"
	"testing"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
)

func testModels() config.ModelsConfig {
	return config.Default().Models
}

func steadyVerdict(it intent.Intent) intent.Verdict {
	return intent.Verdict{
		Intent:     it,
		Confidence: intent.ConfidenceHigh,
		Complexity: intent.ComplexityModerate,
	}
}

func TestPick_DecisionOrder(t *testing.T) {
	m := testModels()
	tests := []struct {
		name     string
		req      Request
		verdict  intent.Verdict
		wantTask string
	}{
		{
			name:     "explicit override wins over patterns",
			req:      Request{Prompt: "fix grammar in this sql query", TaskOverride: "code"},
			verdict:  steadyVerdict(intent.CodeTask),
			wantTask: "code",
		},
		{
			name:     "image forces vision",
			req:      Request{Prompt: "what is in this picture of my desk", HasImage: true},
			verdict:  steadyVerdict(intent.SimpleQA),
			wantTask: "vision",
		},
		{
			name:     "grammar pattern beats code pattern",
			req:      Request{Prompt: "fix grammar in my function docs please and thanks"},
			verdict:  steadyVerdict(intent.GrammarCorrection),
			wantTask: "grammar",
		},
		{
			name:     "dashboard with vanilla hint",
			req:      Request{Prompt: "build a sales dashboard, plain html with no libraries please"},
			verdict:  steadyVerdict(intent.HTMLMarkup),
			wantTask: "dashboard_vanilla",
		},
		{
			name:     "prefer fast hint",
			req:      Request{Prompt: "summarize the difference between tcp and udp for me quickly", PreferFast: true},
			verdict:  steadyVerdict(intent.SimpleQA),
			wantTask: "fast",
		},
		{
			name:     "tiny prompt goes fast",
			req:      Request{Prompt: "capital of france?"},
			verdict:  steadyVerdict(intent.SimpleQA),
			wantTask: "fast",
		},
		{
			name:     "default chat",
			req:      Request{Prompt: "tell me about the history of the silk road and its trade routes"},
			verdict:  steadyVerdict(intent.SimpleQA),
			wantTask: "chat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pick(tt.req, tt.verdict, m)
			if got.Task != tt.wantTask {
				t.Errorf("Task = %q (rationale %q), want %q", got.Task, got.Rationale, tt.wantTask)
			}
			if got.Model == "" || got.SystemPromptID == "" {
				t.Errorf("incomplete route: %+v", got)
			}
		})
	}
}

func TestPick_ModelOverridePinsModel(t *testing.T) {
	m := testModels()
	v := intent.Verdict{Intent: intent.CodeTask, Confidence: intent.ConfidenceLow}
	got := Pick(Request{Prompt: "write code for a parser", ModelOverride: "llama3:70b"}, v, m)
	if got.Model != "llama3:70b" {
		t.Errorf("Model = %q, want pinned llama3:70b", got.Model)
	}
	if !strings.Contains(got.Rationale, "pinned") {
		t.Errorf("Rationale = %q, want pin note", got.Rationale)
	}
}

func TestPick_Escalation(t *testing.T) {
	m := testModels()

	// LOW confidence on a chat route with a reasoning intent upgrades
	// from the chat model to the reasoning model.
	v := intent.Verdict{Intent: intent.ProofSolving, Confidence: intent.ConfidenceLow, PreferredModel: "reason"}
	got := Pick(Request{Prompt: "maybe show whether this could hold in the general case somehow"}, v, m)
	if got.Model != m.Reason {
		t.Errorf("reason escalation: Model = %q, want %q", got.Model, m.Reason)
	}

	// MEDIUM confidence with HIGH complexity escalates too.
	v = intent.Verdict{
		Intent:         intent.SystemDesign,
		Confidence:     intent.ConfidenceMedium,
		Complexity:     intent.ComplexityHigh,
		PreferredModel: "reason",
	}
	got = Pick(Request{Prompt: strings.Repeat("weigh the failure domains against each other ", 6)}, v, m)
	if got.Model != m.Reason {
		t.Errorf("medium+high escalation: Model = %q, want %q", got.Model, m.Reason)
	}

	// A LOW-confidence tiny prompt leaves the fast profile for chat.
	v = intent.Verdict{Intent: intent.SimpleQA, Confidence: intent.ConfidenceLow}
	got = Pick(Request{Prompt: "hmm what about it?"}, v, m)
	if got.Task != "fast" || got.Model != m.Chat {
		t.Errorf("fast escalation: Task=%q Model=%q, want fast/%q", got.Task, got.Model, m.Chat)
	}

	// HIGH confidence routes keep their profile model.
	v = steadyVerdict(intent.SimpleQA)
	got = Pick(Request{Prompt: "tell me the history of the roman aqueducts and how they were built"}, v, m)
	if got.Model != m.Chat {
		t.Errorf("steady route: Model = %q, want %q", got.Model, m.Chat)
	}
}

func TestPick_SimpleMathDowngrades(t *testing.T) {
	m := testModels()
	v := intent.Verdict{
		Intent:     intent.MathReasoning,
		Confidence: intent.ConfidenceLow, // downgrade still wins
		Complexity: intent.ComplexitySimple,
	}
	got := Pick(Request{Prompt: "i have 28 apples and i eat 4 then i buy 2 how many now"}, v, m)
	if got.Model != m.Fast {
		t.Errorf("Model = %q, want smallest %q", got.Model, m.Fast)
	}
	if !strings.Contains(got.Rationale, "downgraded") {
		t.Errorf("Rationale = %q, want downgrade note", got.Rationale)
	}
}

func TestPick_RankingForcesPrompt(t *testing.T) {
	m := testModels()
	v := intent.Verdict{Intent: intent.RankingQuery, Confidence: intent.ConfidenceVeryHigh}
	got := Pick(Request{Prompt: "top 10 programming languages in 2026 ranked by adoption"}, v, m)
	if got.SystemPromptID != prompts.RankingID {
		t.Errorf("SystemPromptID = %q, want %q", got.SystemPromptID, prompts.RankingID)
	}

	// An explicit task override suppresses the rewrite.
	got = Pick(Request{Prompt: "top 10 languages", TaskOverride: "report"}, v, m)
	if got.SystemPromptID == prompts.RankingID {
		t.Error("override did not suppress ranking prompt")
	}
}

func TestFallback(t *testing.T) {
	m := testModels()
	tests := []struct {
		name    string
		current string
		verdict intent.Verdict
		want    string
	}{
		{
			name:    "simple math falls to fast",
			current: m.Chat,
			verdict: intent.Verdict{Intent: intent.MathReasoning, Complexity: intent.ComplexitySimple},
			want:    m.Fast,
		},
		{
			name:    "hard math falls to chat",
			current: m.Reason,
			verdict: intent.Verdict{Intent: intent.MathReasoning, Complexity: intent.ComplexityVeryHigh},
			want:    m.Chat,
		},
		{
			name:    "code falls to chat",
			current: m.Code,
			verdict: intent.Verdict{Intent: intent.CodeTask, PreferredModel: "code"},
			want:    m.Chat,
		},
		{
			name:    "default falls to fast",
			current: m.Chat,
			verdict: intent.Verdict{Intent: intent.SimpleQA},
			want:    m.Fast,
		},
		{
			name:    "never returns the failed model",
			current: m.Fast,
			verdict: intent.Verdict{Intent: intent.SimpleQA},
			want:    m.Chat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fallback(tt.current, tt.verdict, m); got != tt.want {
				t.Errorf("Fallback(%q) = %q, want %q", tt.current, got, tt.want)
			}
		})
	}
}

func TestValidTask(t *testing.T) {
	for _, task := range []string{"chat", "Code", " SQL ", "dashboard_vanilla"} {
		if !ValidTask(task) {
			t.Errorf("ValidTask(%q) = false", task)
		}
	}
	for _, task := range []string{"", "warp", "root"} {
		if ValidTask(task) {
			t.Errorf("ValidTask(%q) = true", task)
		}
	}
}
