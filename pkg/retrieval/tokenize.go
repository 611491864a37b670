// Package retrieval implements the Retrieval Engine (spec.md §4.2): turn a
// raw query into the structured plan the Storage Layer's strategy ladder
// consumes, optionally via an analysis-LLM query planner, and fall back
// to heuristic tokenization when no planner is configured or it times
// out. Canonicalization and Aho-Corasick scanning are adapted from the
// teacher's pkg/implicit-matcher, which used the identical technique
// (single normalizer shared by pattern compilation and text scanning) to
// resolve game-entity mentions; here the same machinery resolves the
// spec's person/technology/topic/... entity mentions instead.
package retrieval

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var en = stopwords.EnglishStopwords()

// canonicalize lowercases, folds curly quotes/dashes, keeps letters,
// digits, and in-word joiners (apostrophe, hyphen, period, underscore),
// and collapses every other run of characters to a single space —
// exactly CanonicalizeForMatch's rule, so multiword entity names like
// "Jean-Luc" or "O'Brien" still match as one token.
func canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	lastWasSpace := true

	for _, ch := range s {
		c := unicode.ToLower(ch)
		switch c {
		case '’', '‘':
			c = '\''
		case '–', '—':
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}

	result := strings.TrimRight(out.String(), " ")
	return result
}

func isJoiner(r rune) bool {
	switch r {
	case '\'', '-', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

// tokenize splits normalized text into deduplicated, stopword-filtered
// tokens — the keyword-like strategy's (spec.md §4.2 strategy 2) and the
// entity-match strategy's (strategy 4) shared tokenization step.
func tokenize(text string) []string {
	words := strings.Fields(canonicalize(text))
	seen := map[string]bool{}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" || seen[w] || en.IsStopword(w) {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
