package assemble

import (
	"strings"
	"unicode"
)

// bypassHeavy reports whether the prompt is light enough to skip the
// heavy context sections. This is a load-shedding guarantee: light
// prompts must never fan out to files, RAG, web, memory, or auxiliary
// models.
func bypassHeavy(prompt string) bool {
	n := len(prompt)
	if n <= 80 {
		return true
	}
	return n <= 140 && !strings.Contains(prompt, "?")
}

// messy reports whether a short prompt looks sloppy enough to be worth
// one cleanup pass by the grammar model. Two independent signals are
// required so ordinary terse prompts stay untouched.
func messy(prompt string) bool {
	p := strings.TrimSpace(prompt)
	if len(p) > 120 || len(strings.Fields(p)) < 3 {
		return false
	}
	signals := 0
	if strings.Contains(p, "  ") {
		signals++
	}
	if hasLoneLowerI(p) {
		signals++
	}
	if hasTripleLetter(p) {
		signals++
	}
	if missingSpaceAfterComma(p) {
		signals++
	}
	return signals >= 2
}

func hasLoneLowerI(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != 'i' {
			continue
		}
		before := i == 0 || s[i-1] == ' '
		after := i == len(s)-1 || s[i+1] == ' ' || s[i+1] == ','
		if before && after {
			return true
		}
	}
	return false
}

func hasTripleLetter(s string) bool {
	var prev rune
	run := 1
	for _, r := range s {
		if !unicode.IsLetter(r) {
			prev, run = 0, 1
			continue
		}
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			prev, run = r, 1
		}
	}
	return false
}

func missingSpaceAfterComma(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == ',' && s[i+1] != ' ' && s[i+1] != '\n' {
			return true
		}
	}
	return false
}
