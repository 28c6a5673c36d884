package quiz

import (
	"fmt"
	"strings"
	"unicode"
)

// Normalize strips all whitespace and lower-cases an answer before
// comparison. It is idempotent.
func Normalize(answer string) string {
	var b strings.Builder
	b.Grow(len(answer))
	for _, r := range answer {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Score compares a submitted answer string against the key, one rune per
// question. It returns the per-question report shown to the user and the 0/1
// score vector. The caller must ensure both sequences have equal length; the
// function has no side effects.
func Score(submitted []string, key []string) (string, []int) {
	vector := make([]int, len(key))
	lines := make([]string, 0, len(key))
	for i, answer := range submitted {
		mark := "❌"
		if Normalize(answer) == Normalize(key[i]) {
			vector[i] = 1
			mark = "✅"
		}
		lines = append(lines, fmt.Sprintf("%d. %s %s", i+1, answer, mark))
	}
	return strings.Join(lines, "\n"), vector
}

// SplitAnswers breaks a raw submission into per-question answers, one rune
// each, preserving the user's original characters for the report.
func SplitAnswers(raw string) []string {
	runes := []rune(strings.TrimSpace(raw))
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
