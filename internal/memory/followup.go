package memory

import "strings"

// followUpCues open prompts that lean on the previous exchange rather
// than standing alone. Matched as a whole prompt or as a prefix after
// trimming trailing punctuation.
var followUpCues = []string{
	"why", "how so", "how come", "what about", "how about", "and",
	"also", "then", "but", "ok but", "okay but", "so", "really",
	"again", "more", "tell me more", "go on", "continue", "expand",
	"elaborate", "what else", "anything else", "it", "that", "this",
	"is it", "does it", "can it", "shorter", "longer", "simpler",
	"in detail", "an example", "for example", "such as",
}

// IsFollowUp reports whether a prompt is too vague to stand alone and
// should re-open the previous user and assistant turn as grounded
// context. Long prompts carry their own subject and never qualify.
func IsFollowUp(prompt string) bool {
	p := strings.ToLower(strings.TrimSpace(prompt))
	p = strings.TrimRight(p, "?!. ")
	if p == "" {
		return false
	}
	if len(p) > 60 || len(strings.Fields(p)) > 7 {
		return false
	}
	for _, cue := range followUpCues {
		if p == cue || strings.HasPrefix(p, cue+" ") {
			return true
		}
	}
	return false
}
