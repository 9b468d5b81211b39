package memory

import (
	"strings"
	"unicode"
)

// stopwords are filler words that carry no recall signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "him": {}, "his": {},
	"how": {}, "its": {}, "did": {}, "get": {}, "got": {}, "let": {},
	"may": {}, "she": {}, "too": {}, "use": {}, "who": {}, "why": {},
	"this": {}, "that": {}, "with": {}, "have": {}, "from": {}, "what": {},
	"your": {}, "will": {}, "they": {}, "them": {}, "then": {}, "than": {},
	"when": {}, "want": {}, "just": {}, "like": {}, "know": {}, "make": {},
	"made": {}, "take": {}, "into": {}, "some": {}, "over": {}, "also": {},
	"been": {}, "does": {}, "about": {}, "would": {}, "could": {},
	"should": {}, "there": {}, "their": {}, "which": {}, "these": {},
	"those": {}, "where": {}, "because": {}, "please": {},
}

// Keywords extracts lowercase keywords from text in order of first
// appearance, skipping stopwords and words shorter than three
// characters. A max of zero or less means no cap.
func Keywords(text string, max int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
