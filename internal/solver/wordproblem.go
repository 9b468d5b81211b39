package solver

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/format"
)

// WordProblemSolver is the tag reported for narrative tally answers.
const WordProblemSolver = "word_problem"

var tallyVerbs = map[string]int{
	// starting quantity
	"have": 0, "had": 0, "has": 0, "start with": 0, "started with": 0,
	"there are": 0, "there were": 0,
	// gains
	"buy": +1, "buys": +1, "bought": +1, "get": +1, "gets": +1, "gain": +1,
	"find": +1, "finds": +1, "found": +1, "receive": +1, "received": +1,
	"win": +1, "wins": +1, "won": +1, "add": +1, "pick": +1, "earn": +1,
	"collect": +1,
	// losses
	"eat": -1, "ate": -1, "eats": -1, "lose": -1, "loses": -1, "lost": -1,
	"give": -1, "gives": -1, "gave": -1, "sell": -1, "sells": -1,
	"sold": -1, "spend": -1, "spends": -1, "spent": -1, "remove": -1,
	"drop": -1, "dropped": -1, "use": -1, "uses": -1, "used": -1,
	"break": -1, "broke": -1, "donate": -1,
}

var (
	reTallyPair   = buildTallyRegexp()
	reQuestionCue = regexp.MustCompile(`(?i)\b(how many|how much|left|remain|in total|altogether|right now)\b`)
)

func buildTallyRegexp() *regexp.Regexp {
	verbs := make([]string, 0, len(tallyVerbs))
	for v := range tallyVerbs {
		verbs = append(verbs, regexp.QuoteMeta(v))
	}
	// Longest first so "start with" wins over a bare "start" prefix,
	// and sorted for a deterministic pattern.
	sort.Slice(verbs, func(i, j int) bool {
		if len(verbs[i]) != len(verbs[j]) {
			return len(verbs[i]) > len(verbs[j])
		}
		return verbs[i] < verbs[j]
	})
	return regexp.MustCompile(`\b(` + strings.Join(verbs, "|") + `)\b[^\d]{0,20}?(\d+(?:\.\d+)?)`)
}

// WordProblem solves short running-tally narratives ("i have 28 apples
// and i eat 4 then i buy 2 more"). It returns nil unless the prompt has
// a starting quantity, at least one gain or loss, and a question cue,
// so a partial story never produces a confident wrong number.
func WordProblem(prompt string) *Answer {
	lower := strings.ToLower(prompt)
	if !reQuestionCue.MatchString(lower) {
		return nil
	}

	matches := reTallyPair.FindAllStringSubmatch(lower, -1)
	if len(matches) < 2 {
		return nil
	}

	var (
		total   float64
		started bool
		opCount int
	)
	for _, m := range matches {
		verb, numText := m[1], m[2]
		n, err := strconv.ParseFloat(numText, 64)
		if err != nil {
			return nil
		}
		switch tallyVerbs[verb] {
		case 0:
			if !started {
				total = n
				started = true
			}
		case +1:
			if started {
				total += n
				opCount++
			}
		case -1:
			if started {
				total -= n
				opCount++
			}
		}
	}
	if !started || opCount == 0 {
		return nil
	}
	return &Answer{
		Text:   format.Envelope("Answer: " + formatNumber(total)),
		Solver: WordProblemSolver,
	}
}
