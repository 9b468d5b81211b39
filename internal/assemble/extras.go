package assemble

import (
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/intent"
)

// categoryTokens are the subjects a ranking prompt usually names. A
// ranking prompt naming none of them gets the vague-leaderboard hint.
var categoryTokens = []string{
	"llm", "model", "ai", "assistant",
	"phone", "smartphone", "laptop", "tablet", "gpu", "cpu", "camera",
	"car", "ev", "bike",
	"language", "framework", "library", "database", "editor", "ide",
	"browser", "distro", "cloud", "tool",
	"movie", "film", "series", "show", "book", "album", "song", "game",
	"city", "country", "company", "startup", "university",
	"crypto", "coin", "stock", "etf",
	"team", "player", "club",
	"restaurant", "hotel", "beach",
}

func vagueRankingHint(verdict intent.Verdict, prompt string) string {
	if verdict.Intent != intent.RankingQuery {
		return ""
	}
	lower := strings.ToLower(prompt)
	for _, tok := range categoryTokens {
		if containsWord(lower, tok) {
			return ""
		}
	}
	return "Note: the ranking request names no category. Open the Result by stating " +
		"the category you assume, then rank within it."
}

// containsWord is a whole-word match so "ai" does not fire inside
// "maintain".
func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(s[i-1])
		end := i + len(word)
		after := end >= len(s) || !isWordByte(s[end])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// intentExtras returns the static requirement block some intents pin
// onto the composed prompt.
func intentExtras(tag intent.Intent) string {
	switch tag {
	case intent.Creative:
		return "Style: concrete imagery, varied sentence length, no stock phrases."
	case intent.Visualization:
		return "If a chart helps, end the Result with one CHART_JSON: line holding a " +
			"single JSON object with type, labels, and datasets."
	case intent.SystemDesign:
		return "Include a component diagram in a ```mermaid fence and one line of " +
			"responsibility per component."
	case intent.HTMLMarkup:
		return "Emit one complete HTML document with inline CSS. No external assets."
	case intent.ProofSolving:
		return "Number the proof steps and state the final claim on its own line."
	default:
		return ""
	}
}
