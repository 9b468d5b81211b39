package pipeline

import (
	"regexp"
	"strings"
)

// spelling is the normalization table applied word-wise before any
// other stage sees the prompt. Entries are lowercase; the replacement
// keeps a leading capital when the original had one.
var spelling = map[string]string{
	"teh":        "the",
	"hte":        "the",
	"wich":       "which",
	"waht":       "what",
	"wath":       "what",
	"wehn":       "when",
	"becuase":    "because",
	"recieve":    "receive",
	"seperate":   "separate",
	"definately": "definitely",
	"calulate":   "calculate",
	"calcualte":  "calculate",
	"lenght":     "length",
	"widht":      "width",
	"heigth":     "height",
	"adress":     "address",
}

var reWord = regexp.MustCompile(`[a-zA-Z]+`)

// Normalize trims the prompt and fixes the spelling table's known
// typos. The raw prompt stays on the Request untouched.
func Normalize(prompt string) string {
	t := strings.TrimSpace(prompt)
	if t == "" {
		return ""
	}
	return reWord.ReplaceAllStringFunc(t, func(w string) string {
		fix, ok := spelling[strings.ToLower(w)]
		if !ok {
			return w
		}
		if w[0] >= 'A' && w[0] <= 'Z' {
			return strings.ToUpper(fix[:1]) + fix[1:]
		}
		return fix
	})
}

// memoryPhrases trigger an explicit save to the memory store. The text
// after the phrase becomes the entry; a bare phrase saves the previous
// assistant answer.
var memoryPhrases = []string{
	"remember this:",
	"remember this,",
	"remember this ",
	"remember that ",
	"save to memory:",
	"save to memory ",
	"save this to memory",
	"add to memory:",
	"add to memory ",
	"keep in mind that ",
	"keep in mind:",
	"note for later:",
	"note for later ",
}

// MemorySaveRequest detects the save-to-memory trigger. It returns the
// note content, which is empty when the phrase stood alone, and whether
// the trigger fired at all. The phrases are ASCII, so prefix lengths
// line up between the prompt and its lowercased form.
func MemorySaveRequest(prompt string) (string, bool) {
	t := strings.TrimSpace(prompt)
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "please ") {
		t = strings.TrimSpace(t[len("please "):])
		lower = strings.ToLower(t)
	}

	for _, phrase := range memoryPhrases {
		if strings.HasPrefix(lower, phrase) {
			return strings.TrimSpace(t[len(phrase):]), true
		}
	}
	switch strings.TrimRight(lower, "?!. ") {
	case "remember this", "save to memory", "add to memory":
		return "", true
	}
	return "", false
}

// expandFollowUp re-opens the previous exchange as grounded context for
// a vague follow-up prompt.
func expandFollowUp(prompt, prevUser, prevAssistant string) string {
	var b strings.Builder
	b.WriteString("Previous exchange:\nUser: ")
	b.WriteString(prevUser)
	b.WriteString("\nAssistant: ")
	b.WriteString(prevAssistant)
	b.WriteString("\n\nFollow-up: ")
	b.WriteString(prompt)
	return b.String()
}
