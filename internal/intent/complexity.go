package intent

import (
	"encoding/json"
	"strings"
)

// Complexity categorizes prompt difficulty for model sizing.
type Complexity int

const (
	ComplexityTrivial Complexity = iota
	ComplexitySimple
	ComplexityModerate
	ComplexityHigh
	ComplexityVeryHigh
)

func (c Complexity) String() string {
	switch c {
	case ComplexityTrivial:
		return "trivial"
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityHigh:
		return "high"
	case ComplexityVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// MarshalJSON emits the tier name rather than the raw enum value so the
// inspection endpoints stay readable.
func (c Complexity) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

var complexityKeywords = []string{
	"architecture", "optimize", "optimization", "distributed",
	"microservice", "scalab", "comprehensive", "in-depth", "step by step",
	"algorithm", "concurren", "throughput", "end-to-end", "prove",
	"theorem", "trade-off", "benchmark",
}

// EstimateComplexity scores length, nesting, boolean structure, code
// fences, and difficulty keywords into a coarse tier.
func EstimateComplexity(prompt string) Complexity {
	lower := strings.ToLower(prompt)
	score := 0

	switch n := len(prompt); {
	case n > 800:
		score += 3
	case n > 400:
		score += 2
	case n > 200:
		score++
	}

	if d := bracketDepth(prompt); d > 3 {
		score += 3
	} else {
		score += d
	}

	boolOps := strings.Count(lower, " and ") + strings.Count(lower, " or ") +
		strings.Count(lower, "&&") + strings.Count(lower, "||")
	if boolOps > 3 {
		boolOps = 3
	}
	score += boolOps

	if fences := strings.Count(prompt, "```") / 2 * 2; fences > 4 {
		score += 4
	} else {
		score += fences
	}

	hits := 0
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits > 4 {
		hits = 4
	}
	score += hits

	switch {
	case score == 0:
		return ComplexityTrivial
	case score <= 2:
		return ComplexitySimple
	case score <= 5:
		return ComplexityModerate
	case score <= 8:
		return ComplexityHigh
	default:
		return ComplexityVeryHigh
	}
}

// bracketDepth returns the maximum nesting depth across (), [], {}.
func bracketDepth(s string) int {
	depth, max := 0, 0
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > max {
				max = depth
			}
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return max
}

// Metadata records shape facts about the prompt. These surface through
// inspection endpoints but routing does not depend on them.
type Metadata struct {
	HasQuestionMark bool `json:"hasQuestionMark"`
	HasCode         bool `json:"hasCode"`
	HasSQL          bool `json:"hasSQL"`
	HasHTML         bool `json:"hasHTML"`
	HasFormula      bool `json:"hasFormula"`
	HasMath         bool `json:"hasMath"`
	WordCount       int  `json:"wordCount"`
}

// Inspect extracts shape metadata from the prompt.
func Inspect(prompt string) Metadata {
	return Metadata{
		HasQuestionMark: strings.Contains(prompt, "?"),
		HasCode:         reCodeShape.MatchString(prompt),
		HasSQL:          reSQLShape.MatchString(prompt),
		HasHTML:         reHTMLTag.MatchString(prompt),
		HasFormula:      reExcelFormula.MatchString(prompt),
		HasMath:         reArithmetic.MatchString(prompt),
		WordCount:       len(strings.Fields(prompt)),
	}
}
