package intent

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		want     Intent
		minConf  Confidence
		wantsWeb bool
	}{
		{"simple question", "What is the capital of France?", SimpleQA, "", false},
		{"grammar fix", "fix grammar: me and him goes to store", GrammarCorrection, "", false},
		{"world knowledge", "what's the latest news about the stock market today", WorldKnowledge, "", true},
		{"ranking", "top 10 programming languages in 2025", RankingQuery, ConfidenceVeryHigh, true},
		{"code", "write a function in python that reverses a string", CodeTask, "", false},
		{"word problem", "i have 28 apples and i eat 4 then i buy other 2 apples how many apples do i have right now?", MathReasoning, "", false},
		{"sql", "select name, count(*) from users group by name", SQLQuery, ConfidenceVeryHigh, false},
		{"data analysis", "analyze this data for correlation and outliers in the dataset", DataAnalysis, "", false},
		{"creative", "write a short story about a lighthouse keeper", Creative, "", false},
		{"decision", "should i buy a laptop or a tablet, pros and cons", DecisionMaking, "", false},
		{"learning", "explain how does garbage collection work in simple terms", Learning, "", false},
		{"memory", "remember that my name is Dana", Memory, "", false},
		{"multi step", "give me a plan for migrating first the schema, then the data, finally the clients", MultiStep, "", false},
		{"debug", "my app fails with a null pointer exception, here is the stack trace", DebugLog, "", false},
		{"html", "build a responsive landing page with tailwind css", HTMLMarkup, "", false},
		{"report", "write a comprehensive report on renewable adoption with an executive summary", AnalysisReport, "", false},
		{"visualization", "plot a bar chart of monthly revenue", Visualization, "", false},
		{"proof", "prove by induction that the sum of the first n odd numbers is n squared", ProofSolving, "", false},
		{"system design", "design a system with a load balancer for high availability", SystemDesign, "", false},
		{"formula", "excel formula to sum column B where column A is =SUMIF(A:A", FormulaGeneration, "", false},
		{"riddle", "riddle: what has keys but can't open locks?", Riddle, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.prompt, nil)
			if got.Intent != tt.want {
				t.Errorf("intent = %s (score %d, alts %v), want %s", got.Intent, got.Score, got.Alternatives, tt.want)
			}
			if tt.minConf != "" && got.Confidence != tt.minConf {
				t.Errorf("confidence = %s, want %s", got.Confidence, tt.minConf)
			}
			if got.RequiresWeb != tt.wantsWeb {
				t.Errorf("requiresWeb = %v, want %v", got.RequiresWeb, tt.wantsWeb)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	prompt := "write a python function to parse a csv and plot a chart"
	first := Classify(prompt, nil)
	for i := 0; i < 5; i++ {
		if got := Classify(prompt, nil); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestClassify_ZeroScoreDefaults(t *testing.T) {
	got := Classify("zzz qqq xxyzzy", nil)
	if got.Intent != SimpleQA {
		t.Errorf("intent = %s, want SIMPLE_QA", got.Intent)
	}
	if got.Confidence != ConfidenceLow {
		t.Errorf("confidence = %s, want LOW", got.Confidence)
	}
	if got.Score != 0 {
		t.Errorf("score = %d", got.Score)
	}
	if got.RequiresWeb {
		t.Error("zero-score verdict should not require web")
	}
}

func TestClassify_ContextNudges(t *testing.T) {
	// "compare" alone scores 1 for DECISION_MAKING.
	base := Classify("compare these for me", nil)
	if base.Intent != DecisionMaking || base.Score != 1 {
		t.Fatalf("base = %s score %d, want DECISION_MAKING score 1", base.Intent, base.Score)
	}

	prev := Classify("compare these for me", &Context{PreviousIntent: DecisionMaking})
	if prev.Score != base.Score+1 {
		t.Errorf("previous-intent bonus: score = %d, want %d", prev.Score, base.Score+1)
	}

	pref := Classify("compare these for me", &Context{UserPreference: DecisionMaking})
	if pref.Score != base.Score+2 {
		t.Errorf("preference bonus: score = %d, want %d", pref.Score, base.Score+2)
	}

	excl := Classify("compare these for me", &Context{Excluded: []Intent{DecisionMaking}})
	if excl.Intent == DecisionMaking {
		t.Errorf("excluded intent still won: %+v", excl)
	}
}

func TestClassify_MathBoostNeedsDigit(t *testing.T) {
	withDigit := Classify("how many apples fit in 3 boxes", nil)
	if withDigit.Intent != MathReasoning {
		t.Fatalf("intent = %s, want MATH_REASONING", withDigit.Intent)
	}
	if withDigit.Score < 2 {
		t.Errorf("boosted score = %d, want >= 2", withDigit.Score)
	}

	// Without a digit the token counts as an ordinary pattern hit.
	noDigit := Classify("how many apples fit in a box", nil)
	if noDigit.Intent == MathReasoning && noDigit.Score >= withDigit.Score {
		t.Errorf("digit boost missing: with=%d without=%d", withDigit.Score, noDigit.Score)
	}
}

func TestClassify_AlternativesBounded(t *testing.T) {
	got := Classify("explain how to write a python script that can calculate statistics and plot a chart step by step", nil)
	if len(got.Alternatives) > 3 {
		t.Errorf("alternatives = %d, want <= 3", len(got.Alternatives))
	}
	for i := 1; i < len(got.Alternatives); i++ {
		if got.Alternatives[i].Score > got.Alternatives[i-1].Score {
			t.Errorf("alternatives not sorted: %v", got.Alternatives)
		}
	}
	for _, alt := range got.Alternatives {
		if alt.Intent == got.Intent {
			t.Errorf("winner repeated in alternatives: %v", got.Alternatives)
		}
		if alt.Score == 0 {
			t.Errorf("zero-score alternative listed: %v", got.Alternatives)
		}
	}
}

func TestCatalogCoversAllIntents(t *testing.T) {
	want := []Intent{
		SimpleQA, GrammarCorrection, WorldKnowledge, RankingQuery, CodeTask,
		MathReasoning, SQLQuery, DataAnalysis, Creative, DecisionMaking,
		Learning, Memory, MultiStep, DebugLog, HTMLMarkup, AnalysisReport,
		Visualization, ProofSolving, SystemDesign, FormulaGeneration, Riddle,
	}
	got := Catalog()
	if len(got) != len(want) {
		t.Fatalf("catalog has %d intents, want %d", len(got), len(want))
	}
	seen := map[Intent]bool{}
	for _, tag := range got {
		if seen[tag] {
			t.Errorf("duplicate catalog entry %s", tag)
		}
		seen[tag] = true
	}
	for _, tag := range want {
		if !seen[tag] {
			t.Errorf("catalog missing %s", tag)
		}
	}
}

func TestConfidenceTiers(t *testing.T) {
	tests := []struct {
		top, second int
		want        Confidence
	}{
		{6, 1, ConfidenceVeryHigh},
		{5, 2, ConfidenceVeryHigh},
		{4, 2, ConfidenceHigh},
		{5, 3, ConfidenceHigh}, // margin 2, top>=4
		{3, 1, ConfidenceHigh}, // ratio 3.0
		{2, 1, ConfidenceHigh}, // ratio 2.0
		{2, 0, ConfidenceHigh}, // unopposed
		{3, 2, ConfidenceMedium},
		{1, 0, ConfidenceMedium},
		{1, 1, ConfidenceMedium},
		{0, 0, ConfidenceLow},
	}
	for _, tt := range tests {
		if got := confidence(tt.top, tt.second); got != tt.want {
			t.Errorf("confidence(%d,%d) = %s, want %s", tt.top, tt.second, got, tt.want)
		}
	}
}
