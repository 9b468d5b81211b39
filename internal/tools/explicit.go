package tools

import (
	"regexp"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/fetch"
)

var fenceOpen = regexp.MustCompile("(?s)^```([a-zA-Z0-9_+-]*)\\s*\n(.*?)\n?```\\s*$")

// ParseExplicit recognizes prompts that invoke a tool directly, either
// "/sql SELECT ..." or "sql: SELECT ...". The remainder of the prompt
// becomes the tool's primary argument. Prompts that merely contain a
// colon somewhere do not match; the head must be a known tool name.
func ParseExplicit(prompt string) (Name, Args, bool) {
	t := strings.TrimSpace(prompt)
	if t == "" {
		return "", Args{}, false
	}

	var head, rest string
	switch {
	case strings.HasPrefix(t, "/"):
		head, rest = splitHead(t[1:])
	default:
		idx := strings.Index(t, ":")
		if idx <= 0 || strings.ContainsAny(t[:idx], " \t\n") {
			return "", Args{}, false
		}
		head, rest = t[:idx], strings.TrimSpace(t[idx+1:])
	}

	name, ok := Lookup(head)
	if !ok {
		return "", Args{}, false
	}
	return name, ArgsFromText(name, rest), true
}

func splitHead(s string) (string, string) {
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i:])
	}
	return s, ""
}

// ArgsFromText builds the argument struct a tool expects from a bare
// text payload, stripping code fences where the tool takes code.
func ArgsFromText(name Name, text string) Args {
	text = strings.TrimSpace(text)
	switch name {
	case Python:
		code, _ := stripFence(text)
		return Args{Code: code}
	case CodeExecute:
		code, lang := stripFence(text)
		return Args{Code: code, Language: lang}
	case CodeAnalysis:
		code, lang := stripFence(text)
		return Args{Code: code, Language: lang}
	case Summarize, Visualize:
		return Args{Text: text}
	case SQL:
		code, _ := stripFence(text)
		return Args{Query: code}
	case SQLSchema:
		return Args{DBPath: text}
	case Sympy:
		return Args{Expression: text}
	case Ingest:
		return Args{Path: text}
	case Search:
		return Args{Query: text}
	case Fetch:
		if urls := fetch.ExtractURLs(text, 1); len(urls) > 0 {
			return Args{URL: urls[0]}
		}
		return Args{URL: text}
	default:
		return Args{Text: text}
	}
}

// stripFence unwraps a single fenced code block, returning the inner
// code and the fence's language tag. Unfenced text passes through.
func stripFence(text string) (code, lang string) {
	if m := fenceOpen.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return m[2], strings.ToLower(m[1])
	}
	return text, ""
}
