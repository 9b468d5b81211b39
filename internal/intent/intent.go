// Package intent classifies prompts against a closed intent catalog.
//
// Classification is rule-based and deterministic: literal substring
// patterns accumulate a score per intent, shape regexps add a bonus, and
// conversational context nudges the result. It never calls a model and
// never fails; an unrecognizable prompt falls back to SIMPLE_QA at LOW
// confidence.
package intent

import (
	"sort"
	"strings"
)

// Intent tags the kind of work a prompt is asking for.
type Intent string

const (
	SimpleQA          Intent = "SIMPLE_QA"
	GrammarCorrection Intent = "GRAMMAR_CORRECTION"
	WorldKnowledge    Intent = "WORLD_KNOWLEDGE"
	RankingQuery      Intent = "RANKING_QUERY"
	CodeTask          Intent = "CODE_TASK"
	MathReasoning     Intent = "MATH_REASONING"
	SQLQuery          Intent = "SQL_QUERY"
	DataAnalysis      Intent = "DATA_ANALYSIS"
	Creative          Intent = "CREATIVE"
	DecisionMaking    Intent = "DECISION_MAKING"
	Learning          Intent = "LEARNING"
	Memory            Intent = "MEMORY"
	MultiStep         Intent = "MULTI_STEP"
	DebugLog          Intent = "DEBUG_LOG"
	HTMLMarkup        Intent = "HTML_MARKUP"
	AnalysisReport    Intent = "ANALYSIS_REPORT"
	Visualization     Intent = "VISUALIZATION"
	ProofSolving      Intent = "PROOF_SOLVING"
	SystemDesign      Intent = "SYSTEM_DESIGN"
	FormulaGeneration Intent = "FORMULA_GENERATION"
	Riddle            Intent = "RIDDLE"
)

// Confidence grades how clearly the winning intent beat the rest.
type Confidence string

const (
	ConfidenceLow      Confidence = "LOW"
	ConfidenceMedium   Confidence = "MEDIUM"
	ConfidenceHigh     Confidence = "HIGH"
	ConfidenceVeryHigh Confidence = "VERY_HIGH"
)

// Context carries conversational hints into classification.
type Context struct {
	PreviousIntent Intent   // intent of the previous user turn, if any
	UserPreference Intent   // sticky preference learned from the user
	Excluded       []Intent // intents to push away from
}

// Alternative is a runner-up intent with its score.
type Alternative struct {
	Intent Intent `json:"intent"`
	Score  int    `json:"score"`
}

// Verdict is the classification result. It is a pure function of the
// prompt and context.
type Verdict struct {
	Intent         Intent        `json:"intent"`
	Confidence     Confidence    `json:"confidence"`
	Score          int           `json:"score"`
	RequiresWeb    bool          `json:"requiresWeb"`
	PreferredModel string        `json:"preferredModel"` // model role, resolved by routing
	PrimaryTools   []string      `json:"primaryTools,omitempty"`
	FlexibleTools  bool          `json:"flexibleTools"`
	Complexity     Complexity    `json:"complexity"`
	Alternatives   []Alternative `json:"alternatives,omitempty"`
	Metadata       Metadata      `json:"metadata"`
}

// boost applied when an advanced shape check matches.
const advancedBonus = 5

// Classify scores the prompt against every catalog entry and returns
// the winner. ctx may be nil.
func Classify(prompt string, ctx *Context) Verdict {
	lower := strings.ToLower(prompt)
	digit := containsDigit(lower)

	scores := make([]int, len(catalog))
	for i, spec := range catalog {
		s := 0
		for _, pat := range spec.patterns {
			n := strings.Count(lower, pat)
			if n == 0 {
				continue
			}
			if spec.tag == MathReasoning && digit && (pat == "how many" || pat == "how much") {
				s += 2
				continue
			}
			if n > 2 {
				n = 2
			}
			s += n
		}
		if spec.advanced != nil && spec.advanced(prompt) {
			s += advancedBonus
		}
		if ctx != nil {
			if ctx.PreviousIntent == spec.tag {
				s++
			}
			if ctx.UserPreference == spec.tag {
				s += 2
			}
			for _, ex := range ctx.Excluded {
				if ex == spec.tag {
					s -= 5
					break
				}
			}
		}
		if s < 0 {
			s = 0
		}
		scores[i] = s
	}

	// Winner is the highest score; catalog order breaks ties so the
	// result is stable.
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}

	second := 0
	for i := range scores {
		if i == best {
			continue
		}
		if scores[i] > second {
			second = scores[i]
		}
	}

	spec := catalog[best]
	v := Verdict{
		Intent:         spec.tag,
		Confidence:     confidence(scores[best], second),
		Score:          scores[best],
		RequiresWeb:    spec.requiresWeb,
		PreferredModel: spec.model,
		PrimaryTools:   spec.tools,
		FlexibleTools:  spec.flexibleTools,
		Complexity:     EstimateComplexity(prompt),
		Alternatives:   alternatives(scores, best),
		Metadata:       Inspect(prompt),
	}
	if v.Score == 0 {
		// Nothing matched at all; report the neutral default rather
		// than whatever happens to sit first in the catalog.
		v.Intent = SimpleQA
		v.RequiresWeb = false
		v.PreferredModel = defaultModelRole
		v.PrimaryTools = nil
		v.FlexibleTools = false
	}
	return v
}

// confidence grades the winner against the runner-up.
func confidence(top, second int) Confidence {
	margin := top - second
	switch {
	case top >= 5 && margin >= 3:
		return ConfidenceVeryHigh
	case top >= 4 && margin >= 2:
		return ConfidenceHigh
	case top >= 2 && second > 0 && float64(top)/float64(second) > 1.5:
		return ConfidenceHigh
	case top >= 2 && second == 0:
		return ConfidenceHigh
	case top >= 2 && margin >= 1:
		return ConfidenceMedium
	case top >= 1:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// alternatives returns up to three runner-up intents with nonzero
// scores, highest first, catalog order on ties.
func alternatives(scores []int, winner int) []Alternative {
	var alts []Alternative
	for i, s := range scores {
		if i == winner || s == 0 {
			continue
		}
		alts = append(alts, Alternative{Intent: catalog[i].tag, Score: s})
	}
	sort.SliceStable(alts, func(a, b int) bool { return alts[a].Score > alts[b].Score })
	if len(alts) > 3 {
		alts = alts[:3]
	}
	return alts
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
