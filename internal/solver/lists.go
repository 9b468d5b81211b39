package solver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	reSetOp    = regexp.MustCompile(`(?i)\b(union|intersection|difference)\b.*?\[([^\]]*)\].*?\[([^\]]*)\]`)
	reSortList = regexp.MustCompile(`(?i)\bsort\b[^\[]*\[([^\]]*)\]`)
	reFilterOp = regexp.MustCompile(`(?i)\bfilter\b[^\[]*\[([^\]]*)\]\s*(>=|<=|!=|>|<|=)\s*(-?\d+(?:\.\d+)?)`)
	reDescWord = regexp.MustCompile(`(?i)\b(desc|descending|reverse)\b`)
)

// trySets answers union/intersection/difference over two bracketed
// lists. Items keep first-list order; duplicates collapse.
func trySets(prompt string) string {
	m := reSetOp.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	op := strings.ToLower(m[1])
	a := splitListItems(m[2])
	b := splitListItems(m[3])
	if len(a) == 0 && len(b) == 0 {
		return ""
	}

	inB := make(map[string]bool, len(b))
	for _, x := range b {
		inB[x] = true
	}

	var out []string
	seen := make(map[string]bool)
	keep := func(x string, want bool) {
		if inB[x] == want && !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	switch op {
	case "union":
		for _, x := range a {
			if !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		}
		for _, x := range b {
			if !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		}
	case "intersection":
		for _, x := range a {
			keep(x, true)
		}
	case "difference":
		for _, x := range a {
			keep(x, false)
		}
	}
	return fmt.Sprintf("%s = [%s]", op, strings.Join(out, ", "))
}

// trySortFilter answers "sort [...]" (ascending unless desc appears)
// and "filter [...] <op> <number>" with a single comparison operator.
func trySortFilter(prompt string) string {
	if m := reFilterOp.FindStringSubmatch(prompt); m != nil {
		nums, ok := parseNumberList(m[1])
		if !ok {
			return ""
		}
		threshold, _ := strconv.ParseFloat(m[3], 64)
		var out []float64
		for _, n := range nums {
			if compareOp(n, m[2], threshold) {
				out = append(out, n)
			}
		}
		return fmt.Sprintf("filtered (%s %s) = %s", m[2], formatNumber(threshold), joinNumbers(out))
	}

	if m := reSortList.FindStringSubmatch(prompt); m != nil {
		desc := reDescWord.MatchString(prompt)
		if nums, ok := parseNumberList(m[1]); ok {
			sort.Float64s(nums)
			if desc {
				reverseFloats(nums)
			}
			return "sorted = " + joinNumbers(nums)
		}
		items := splitListItems(m[1])
		if len(items) == 0 {
			return ""
		}
		sort.Strings(items)
		if desc {
			reverseStrings(items)
		}
		return "sorted = [" + strings.Join(items, ", ") + "]"
	}
	return ""
}

func compareOp(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case "<":
		return v < threshold
	case ">=":
		return v >= threshold
	case "<=":
		return v <= threshold
	case "=":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func reverseFloats(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}

func reverseStrings(v []string) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
