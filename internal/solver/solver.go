// Package solver implements deterministic local fast paths that answer
// a prompt without any model call.
//
// Each solver is total and side-effect-free: it either recognizes the
// prompt and returns a finished one-line result, or passes. Solve runs
// the chain in a fixed order and the first hit wins. Anything a solver
// cannot answer with certainty is left for the model pipeline; a wrong
// local answer is worse than a slow one.
package solver

import (
	"math"
	"strconv"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/format"
)

// Answer is a finished local result wrapped in the canonical envelope.
type Answer struct {
	Text   string `json:"text"`
	Solver string `json:"solver"`
}

type entry struct {
	name string
	fn   func(prompt string) string // "" means not applicable
}

// chain order is fixed; earlier solvers are cheaper and stricter.
var chain = []entry{
	{"arithmetic", tryArithmetic},
	{"percent", tryPercent},
	{"units", tryUnits},
	{"dates", tryDates},
	{"equation", tryEquation},
	{"stats", tryStats},
	{"sets", trySets},
	{"sort_filter", trySortFilter},
	{"strings", tryStrings},
	{"validate", tryValidate},
	{"regex", tryRegex},
	{"geometry", tryGeometry},
	{"formula", tryFormula},
}

// Solve runs the solver chain over the normalized prompt. It returns
// nil when no solver recognizes the prompt.
func Solve(prompt string) *Answer {
	p := strings.TrimSpace(prompt)
	if p == "" {
		return nil
	}
	for _, e := range chain {
		if line := e.fn(p); line != "" {
			return &Answer{Text: format.Envelope(line), Solver: e.name}
		}
	}
	return nil
}

// formatNumber renders v the way a person would write it: integers
// without a decimal point, everything else rounded to four places with
// trailing zeros trimmed.
func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// parseNumberList splits a bracketed or comma-separated list of
// numbers. ok is false if any element fails to parse.
func parseNumberList(s string) ([]float64, bool) {
	parts := splitListItems(s)
	if len(parts) == 0 {
		return nil, false
	}
	nums := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, false
		}
		nums = append(nums, v)
	}
	return nums, true
}

func splitListItems(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	items := make([]string, 0, len(raw))
	for _, r := range raw {
		if t := strings.TrimSpace(r); t != "" {
			items = append(items, t)
		}
	}
	return items
}

func joinNumbers(nums []float64) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = formatNumber(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
