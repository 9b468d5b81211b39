package validate

import (
	"context"
	"strings"
	"testing"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/format"
	"github.com/BA-SupportII/BA-AI/internal/intent"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
	"github.com/BA-SupportII/BA-AI/internal/websearch"
)

func TestLastExpression(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"28 - 4 + 2", "28 - 4 + 2"},
		{"what is 2+2?", "2+2"},
		{"compute (3+4)*2 please", "(3+4)*2"},
		{"2 + 2 = 4, but what about 5*3", "5*3"},
		{"7 × 6 equals what", "7 * 6"},
		{"no math here", ""},
		{"unbalanced (2+3 half expression", ""},
		{"just the number 42", ""},
	}
	for _, tt := range tests {
		if got := LastExpression(tt.prompt); got != tt.want {
			t.Errorf("LastExpression(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestLastResultNumber(t *testing.T) {
	text := format.Envelope("28-4+2 = 26")
	got, ok := lastResultNumber(text)
	if !ok || got != 26 {
		t.Fatalf("lastResultNumber = %v, %v; want 26, true", got, ok)
	}

	if _, ok := lastResultNumber("Result\n- no numbers at all"); ok {
		t.Error("found a number where none exists")
	}

	// Without an envelope the whole text is scanned.
	got, ok = lastResultNumber("the total is 13.5 units")
	if !ok || got != 13.5 {
		t.Fatalf("lastResultNumber = %v, %v; want 13.5, true", got, ok)
	}
}

func TestCheckMathReplacesDriftingAnswer(t *testing.T) {
	v := New(Deps{})
	v.eval = func(context.Context, string) (float64, bool) { return 26, true }

	out := v.Validate(context.Background(), Input{
		Prompt:  "28 - 4 + 2",
		Text:    format.Envelope("28-4+2 = 27"),
		Verdict: intent.Verdict{Intent: intent.MathReasoning},
	})
	if !out.Corrected {
		t.Fatal("drifting math answer was not corrected")
	}
	if !strings.Contains(out.Text, "28-4+2 = 26") {
		t.Errorf("corrected text = %q", out.Text)
	}
	if !strings.Contains(out.Text, "Thinking") || !strings.Contains(out.Text, "Result") {
		t.Errorf("replacement lost the envelope: %q", out.Text)
	}
}

func TestCheckMathKeepsAgreeingAnswer(t *testing.T) {
	v := New(Deps{})
	v.eval = func(context.Context, string) (float64, bool) { return 26, true }

	text := format.Envelope("28-4+2 = 26")
	out := v.Validate(context.Background(), Input{
		Prompt:  "28 - 4 + 2",
		Text:    text,
		Verdict: intent.Verdict{Intent: intent.MathReasoning},
	})
	if out.Corrected || out.Text != text {
		t.Errorf("agreeing answer was modified: %+v", out)
	}
}

func TestCheckMathSkipsWhenSandboxUnavailable(t *testing.T) {
	v := New(Deps{}) // no tools runtime wired
	text := format.Envelope("2+2 = 5")
	out := v.Validate(context.Background(), Input{
		Prompt:  "2+2",
		Text:    text,
		Verdict: intent.Verdict{Intent: intent.MathReasoning},
	})
	if out.Corrected {
		t.Error("correction fired without a sandbox")
	}
}

func TestCheckRanking(t *testing.T) {
	sources := []websearch.Result{
		{Title: "Model A overview", URL: "https://a.example"},
		{Title: "Model B review", URL: "https://b.example"},
		{Title: "Model C compared", URL: "https://c.example"},
	}

	t.Run("ungrounded becomes refusal", func(t *testing.T) {
		got, changed := CheckRanking("top 10 LLMs", "1. GPT [1]\n2. Claude [2]", nil)
		if !changed {
			t.Fatal("ungrounded ranking not replaced")
		}
		if !strings.Contains(got, prompts.RankingRefusal) {
			t.Errorf("refusal text missing: %q", got)
		}
	})

	t.Run("well formed passes through", func(t *testing.T) {
		text := "Result\n1. Model A [1]\n2. Model B [2]\n3. Model C [3]"
		got, changed := CheckRanking("best models", text, sources)
		if changed || got != text {
			t.Errorf("well-formed ranking was modified: %q", got)
		}
	})

	t.Run("missing citations get a sources block", func(t *testing.T) {
		text := "1. Model A\n2. Model B"
		got, changed := CheckRanking("best models", text, sources)
		if !changed {
			t.Fatal("missing citations not repaired")
		}
		if !strings.Contains(got, "[1] Model A overview") {
			t.Errorf("sources block missing: %q", got)
		}
	})

	t.Run("top 10 with few items gets a notice", func(t *testing.T) {
		text := "1. Model A [1]\n2. Model B [2]\n3. Model C [3]"
		got, changed := CheckRanking("top 10 LLMs", text, sources)
		if !changed {
			t.Fatal("short top-10 list not annotated")
		}
		if !strings.Contains(got, "only 3 items") {
			t.Errorf("notice missing: %q", got)
		}
	})

	t.Run("top 5 is not enforced", func(t *testing.T) {
		text := "1. Model A [1]\n2. Model B [2]"
		_, changed := CheckRanking("top 5 LLMs", text, sources)
		if changed {
			t.Error("top 5 triggered the top-10 rule")
		}
	})

	t.Run("missing enumeration is rebuilt from sources", func(t *testing.T) {
		got, changed := CheckRanking("best models", "Models vary a lot.", sources)
		if !changed {
			t.Fatal("prose answer accepted as ranking")
		}
		if !strings.Contains(got, "1. Model A overview [1]") {
			t.Errorf("rebuilt ranking missing: %q", got)
		}
		if !strings.Contains(got, "Result") {
			t.Errorf("rebuilt ranking lost the envelope: %q", got)
		}
	})
}

func TestFirstFence(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantLang string
		wantCode string
	}{
		{
			name:     "python block",
			text:     "Here:\n```python\nprint(1)\n```\ndone",
			wantLang: "python",
			wantCode: "print(1)\n",
		},
		{
			name:     "js alias",
			text:     "```js\nconsole.log(1)\n```",
			wantLang: "javascript",
			wantCode: "console.log(1)\n",
		},
		{
			name:     "unsupported language skipped",
			text:     "```rust\nfn main() {}\n```\n```py\nx=1\n```",
			wantLang: "python",
			wantCode: "x=1\n",
		},
		{
			name: "no fence",
			text: "plain text answer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang, code := firstFence(tt.text)
			if lang != tt.wantLang || code != tt.wantCode {
				t.Errorf("firstFence = (%q, %q), want (%q, %q)", lang, code, tt.wantLang, tt.wantCode)
			}
		})
	}
}

// reviewClient returns a fixed reviewed answer.
type reviewClient struct {
	reply string
	calls int
}

func (c *reviewClient) Chat(_ context.Context, model string, _ []llm.Message, _ *llm.Options) (*llm.ChatResponse, error) {
	c.calls++
	return &llm.ChatResponse{Model: model, Message: llm.Message{Role: "assistant", Content: c.reply}, Done: true}, nil
}

func (c *reviewClient) ChatStream(ctx context.Context, model string, msgs []llm.Message, opts *llm.Options, _ llm.StreamCallback) (*llm.ChatResponse, error) {
	return c.Chat(ctx, model, msgs, opts)
}

func (c *reviewClient) Ping(context.Context) error { return nil }

func (c *reviewClient) ListModels(context.Context) ([]string, error) { return nil, nil }

func TestRiskReviewReplacesDraft(t *testing.T) {
	client := &reviewClient{reply: "Thinking\n- reviewed\n\nResult\n- safer answer"}
	v := New(Deps{LLM: client, Models: config.ModelsConfig{Chat: "llama3.1:8b", Reviewer: "qwen2.5:7b"}})

	out := v.Validate(context.Background(), Input{
		Prompt:  "should we store passwords in plain text for speed?",
		Text:    "Thinking\n- hmm\n\nResult\n- yes, plain text is fine",
		Verdict: intent.Verdict{Intent: intent.DecisionMaking},
	})
	if !out.Corrected {
		t.Fatal("reviewer output not applied")
	}
	if !strings.Contains(out.Text, "safer answer") {
		t.Errorf("reviewed text = %q", out.Text)
	}
	if client.calls != 1 {
		t.Errorf("reviewer calls = %d, want 1", client.calls)
	}
}

func TestRiskReviewKeepsUnchangedDraft(t *testing.T) {
	draft := "Thinking\n- ok\n\nResult\n- balanced answer"
	client := &reviewClient{reply: draft}
	v := New(Deps{LLM: client, Models: config.ModelsConfig{Chat: "llama3.1:8b"}})

	out := v.Validate(context.Background(), Input{
		Prompt:  "design a queue",
		Text:    draft,
		Verdict: intent.Verdict{Intent: intent.SystemDesign},
	})
	if out.Corrected {
		t.Error("identical reviewer output marked as correction")
	}
}

func TestValidateLeavesOtherIntentsAlone(t *testing.T) {
	v := New(Deps{})
	in := Input{
		Prompt:  "hello there",
		Text:    "Thinking\n- hi\n\nResult\n- Hello!",
		Verdict: intent.Verdict{Intent: intent.SimpleQA},
	}
	out := v.Validate(context.Background(), in)
	if out.Corrected || out.Text != in.Text {
		t.Errorf("non-validated intent was modified: %+v", out)
	}
}
