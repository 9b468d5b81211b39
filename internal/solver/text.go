package solver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reQuoted     = regexp.MustCompile(`['"]([^'"]*)['"]`)
	reEmailCand  = regexp.MustCompile(`[\w.+-]+@[\w.-]+`)
	reEmailValid = regexp.MustCompile(`^[\w.+-]+@[\w-]+(\.[\w-]+)+$`)
	reURLCand    = regexp.MustCompile(`https?://\S+`)
	reRegexLit   = regexp.MustCompile(`/((?:[^/\\]|\\.)+)/`)
)

// tryStrings answers small string utilities on a quoted argument.
func tryStrings(prompt string) string {
	m := reQuoted.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	arg := m[1]
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "reverse"):
		return fmt.Sprintf("%q reversed is %q", arg, reverseRunes(arg))
	case strings.Contains(lower, "uppercase") || strings.Contains(lower, "upper case"):
		return fmt.Sprintf("%q in uppercase is %q", arg, strings.ToUpper(arg))
	case strings.Contains(lower, "lowercase") || strings.Contains(lower, "lower case"):
		return fmt.Sprintf("%q in lowercase is %q", arg, strings.ToLower(arg))
	case strings.Contains(lower, "how many words") || strings.Contains(lower, "count words") || strings.Contains(lower, "word count"):
		return fmt.Sprintf("%q has %d words", arg, len(strings.Fields(arg)))
	case strings.Contains(lower, "length") || strings.Contains(lower, "how many characters") || strings.Contains(lower, "count characters"):
		return fmt.Sprintf("%q has %d characters", arg, utf8.RuneCountInString(arg))
	}
	return ""
}

// tryValidate answers email and URL validity questions.
func tryValidate(prompt string) string {
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "email") && (strings.Contains(lower, "valid") || strings.Contains(lower, "validate")) {
		cand := reEmailCand.FindString(prompt)
		if cand == "" {
			return ""
		}
		if reEmailValid.MatchString(cand) {
			return cand + " is a valid email address"
		}
		return cand + " is not a valid email address"
	}
	if strings.Contains(lower, "url") && (strings.Contains(lower, "valid") || strings.Contains(lower, "validate")) {
		cand := strings.TrimRight(reURLCand.FindString(prompt), ".,!?")
		if cand == "" {
			return ""
		}
		u, err := url.Parse(cand)
		if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return cand + " is a valid URL"
		}
		return cand + " is not a valid URL"
	}
	return ""
}

// tryRegex evaluates a /pattern/ literal against a quoted sample.
func tryRegex(prompt string) string {
	lower := strings.ToLower(prompt)
	if !strings.Contains(lower, "match") && !strings.Contains(lower, "test") {
		return ""
	}
	lit := reRegexLit.FindStringSubmatch(prompt)
	if lit == nil {
		return ""
	}
	// The sample is the quoted string outside the /.../ literal.
	rest := strings.Replace(prompt, lit[0], "", 1)
	sample := reQuoted.FindStringSubmatch(rest)
	if sample == nil {
		return ""
	}
	re, err := regexp.Compile(lit[1])
	if err != nil {
		return ""
	}
	if re.MatchString(sample[1]) {
		return fmt.Sprintf("yes, /%s/ matches %q", lit[1], sample[1])
	}
	return fmt.Sprintf("no, /%s/ does not match %q", lit[1], sample[1])
}

// Formula shortcuts evaluate a handful of spreadsheet functions whose
// arguments are string literals.
var reFormulaCall = regexp.MustCompile(`(?i)=\s*(SUBSTITUTE|TRIM|UPPER|LOWER)\s*\(([^)]*)\)`)

func tryFormula(prompt string) string {
	m := reFormulaCall.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	args := reQuoted.FindAllStringSubmatch(m[2], -1)
	name := strings.ToUpper(m[1])
	switch name {
	case "TRIM":
		if len(args) != 1 {
			return ""
		}
		return fmt.Sprintf("%s(%q) = %q", name, args[0][1], strings.Join(strings.Fields(args[0][1]), " "))
	case "UPPER":
		if len(args) != 1 {
			return ""
		}
		return fmt.Sprintf("%s(%q) = %q", name, args[0][1], strings.ToUpper(args[0][1]))
	case "LOWER":
		if len(args) != 1 {
			return ""
		}
		return fmt.Sprintf("%s(%q) = %q", name, args[0][1], strings.ToLower(args[0][1]))
	case "SUBSTITUTE":
		if len(args) != 3 {
			return ""
		}
		out := strings.ReplaceAll(args[0][1], args[1][1], args[2][1])
		return fmt.Sprintf("%s(%q, %q, %q) = %q", name, args[0][1], args[1][1], args[2][1], out)
	}
	return ""
}

func reverseRunes(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
