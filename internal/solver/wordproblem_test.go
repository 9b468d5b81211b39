package solver

import (
	"strings"
	"testing"
)

func TestWordProblem(t *testing.T) {
	prompt := "i have 28 apples and i eat 4 then i buy other 2 apples how many apples do i have right now?"
	ans := WordProblem(prompt)
	if ans == nil {
		t.Fatal("WordProblem returned nil")
	}
	if ans.Solver != WordProblemSolver {
		t.Errorf("Solver = %q, want %q", ans.Solver, WordProblemSolver)
	}
	if !strings.Contains(ans.Text, "Answer: 26") {
		t.Errorf("Text = %q, want Answer: 26", ans.Text)
	}
	if !strings.HasPrefix(ans.Text, "Thinking\n") {
		t.Errorf("Text missing envelope: %q", ans.Text)
	}

	// The generic chain must not claim narrative tallies; they are
	// routed through intent classification first.
	if hit := Solve(prompt); hit != nil {
		t.Errorf("Solve claimed a word problem: %+v", hit)
	}
}

func TestWordProblem_GainsAndStarts(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{
			name:   "gain only",
			prompt: "i have 5 apples and i buy 3 more, how many in total?",
			want:   "Answer: 8",
		},
		{
			name:   "start with phrasing",
			prompt: "i start with 10 coins and i lose 4, how many coins are left?",
			want:   "Answer: 6",
		},
		{
			name:   "there are phrasing",
			prompt: "there are 12 eggs and the cook uses 5, how many remain?",
			want:   "Answer: 7",
		},
		{
			name:   "multiple ops",
			prompt: "sara had 20 stickers, gave 8 to a friend and found 3 more. how many does she have left?",
			want:   "Answer: 15",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ans := WordProblem(tt.prompt)
			if ans == nil {
				t.Fatalf("WordProblem(%q) = nil", tt.prompt)
			}
			if !strings.Contains(ans.Text, tt.want) {
				t.Errorf("Text = %q, want %q", ans.Text, tt.want)
			}
		})
	}
}

func TestWordProblem_Refusals(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
	}{
		{"no question cue", "i have 28 apples and i eat 4"},
		{"no operations", "i have 28 apples how many do i have"},
		{"no starting quantity", "i eat 4 apples then i buy 2, how many?"},
		{"no numbers", "i have apples and i eat some, how many are left?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ans := WordProblem(tt.prompt); ans != nil {
				t.Errorf("WordProblem(%q) = %+v, want nil", tt.prompt, ans)
			}
		})
	}
}
