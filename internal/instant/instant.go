// Package instant answers greetings, small talk, and a short table of
// canonical riddles without touching any model. Replies rotate so a
// user who says "hi" twice doesn't get the identical line back.
package instant

import (
	"strings"
	"sync"

	"github.com/BA-SupportII/BA-AI/internal/format"
	"github.com/BA-SupportII/BA-AI/internal/solver"
)

// group is one conversational exchange: any pattern in it, matched
// against the whole normalized prompt, yields the next reply in
// rotation. The first reply listed is what a fresh engine returns.
type group struct {
	tag      string
	patterns []string
	replies  []string
}

var groups = []group{
	{
		tag:      "greeting",
		patterns: []string{"hi", "hello", "hey", "hiya", "howdy", "yo", "hi there", "hello there", "hey there"},
		replies:  []string{"Hi!", "Hello!", "Hey! What do you need?"},
	},
	{
		tag:      "greeting",
		patterns: []string{"good morning", "morning"},
		replies:  []string{"Good morning!", "Morning! What's first today?"},
	},
	{
		tag:      "greeting",
		patterns: []string{"good afternoon"},
		replies:  []string{"Good afternoon!"},
	},
	{
		tag:      "greeting",
		patterns: []string{"good evening", "evening"},
		replies:  []string{"Good evening!"},
	},
	{
		tag:      "small_talk",
		patterns: []string{"how are you", "how are you doing", "how is it going", "how's it going", "hows it going", "how are things", "what's up", "whats up", "sup"},
		replies: []string{
			"All good here. What can I help you with?",
			"Running fine. What do you need?",
			"Can't complain. What's next?",
		},
	},
	{
		tag:      "thanks",
		patterns: []string{"thanks", "thank you", "thank you so much", "thanks a lot", "thx", "ty", "cheers"},
		replies:  []string{"You're welcome!", "Anytime.", "Happy to help."},
	},
	{
		tag:      "farewell",
		patterns: []string{"bye", "goodbye", "see you", "see ya", "later", "good night", "goodnight"},
		replies:  []string{"Bye!", "See you later.", "Take care!"},
	},
	{
		tag:      "acknowledge",
		patterns: []string{"ok", "okay", "cool", "nice", "great", "got it", "perfect"},
		replies:  []string{"Anything else?", "Let me know if you need anything else."},
	},
	{
		tag:      "identity",
		patterns: []string{"who are you", "what are you"},
		replies: []string{
			"I'm a local assistant. I route your question to a solver, a tool, or the best available model.",
		},
	},
	{
		tag:      "capabilities",
		patterns: []string{"what can you do", "what do you do", "help"},
		replies: []string{
			"Ask me anything: math, code, SQL, rankings, reports. I answer locally when I can and pick the right model when I can't.",
		},
	},
}

// Engine serves conversational instant replies. It is safe for
// concurrent use; the only state is one rotation cursor per group.
type Engine struct {
	mu      sync.Mutex
	cursors []int
}

func NewEngine() *Engine {
	return &Engine{cursors: make([]int, len(groups))}
}

// Reply returns a finished answer when the whole prompt is a greeting
// or small talk, nil otherwise. A prompt that merely starts with a
// greeting ("hi, write me a parser") is not claimed.
func (e *Engine) Reply(prompt string) *solver.Answer {
	key := canon(prompt)
	if key == "" {
		return nil
	}
	for i := range groups {
		g := &groups[i]
		for _, p := range g.patterns {
			if key != p {
				continue
			}
			e.mu.Lock()
			r := g.replies[e.cursors[i]%len(g.replies)]
			e.cursors[i]++
			e.mu.Unlock()
			return &solver.Answer{Text: format.Envelope(r), Solver: g.tag}
		}
	}
	return nil
}

// canon lowercases, trims outer punctuation, and collapses runs of
// whitespace so "  Hello!! " and "hello" compare equal.
func canon(prompt string) string {
	s := strings.ToLower(strings.TrimSpace(prompt))
	s = strings.Trim(s, "!?.,:; ")
	return strings.Join(strings.Fields(s), " ")
}

// riddle is matched by cue substrings that must all appear; the cues
// are long enough that ordinary prompts do not trip them.
type riddle struct {
	cues   []string
	answer string
}

var riddles = []riddle{
	{[]string{"keys", "open locks"}, "A piano."},
	{[]string{"wetter", "dries"}, "A towel."},
	{[]string{"more you take", "leave behind"}, "Footsteps."},
	{[]string{"hands", "can't clap"}, "A clock."},
	{[]string{"hands", "cannot clap"}, "A clock."},
	{[]string{"face", "hands", "no arms"}, "A clock."},
	{[]string{"broken before", "use"}, "An egg."},
	{[]string{"goes up", "never comes down"}, "Your age."},
	{[]string{"around the world", "corner"}, "A stamp."},
	{[]string{"neck", "no head"}, "A bottle."},
	{[]string{"one eye", "can't see"}, "A needle."},
	{[]string{"one eye", "cannot see"}, "A needle."},
	{[]string{"full of holes", "holds water"}, "A sponge."},
	{[]string{"month", "28 days"}, "All of them."},
	{[]string{"belongs to you", "use it more"}, "Your name."},
	{[]string{"without a mouth", "hear"}, "An echo."},
	{[]string{"always in front of you", "seen"}, "The future."},
	{[]string{"teeth", "can't bite"}, "A comb."},
	{[]string{"teeth", "cannot bite"}, "A comb."},
	{[]string{"catch", "not throw"}, "A cold."},
	{[]string{"catch", "can't throw"}, "A cold."},
}

// Riddle answers a small set of canonical puzzles with a one-line
// answer. It returns nil for anything it does not recognize exactly.
func Riddle(prompt string) *solver.Answer {
	lower := strings.ToLower(prompt)
	for _, r := range riddles {
		hit := true
		for _, cue := range r.cues {
			if !strings.Contains(lower, cue) {
				hit = false
				break
			}
		}
		if hit {
			return &solver.Answer{Text: format.Envelope(r.answer), Solver: "riddle"}
		}
	}
	return nil
}
