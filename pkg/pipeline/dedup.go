package pipeline

import "strings"

// normalize matches the Storage Layer's own normalizeForDedup rule
// (spec.md §4.3 step 3: trimmed, lowercased, punctuation-stripped) so
// the pipeline's pre-store dedup check and the database's uniqueness
// constraint agree on what counts as "the same content".
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevSpace = false
		case r == ' ' || r == '\t' || r == '\n':
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(normalize(s)) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccard computes the token-set Jaccard similarity of two normalized
// strings, used alongside exact-equality for the dedup predicate
// (spec.md §4.3 step 3: "exact equality counts; a token-set Jaccard ≥
// 0.85 also counts").
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// isDuplicate reports whether candidate's searchable content matches
// existing closely enough to count as a duplicate (spec.md §4.3 step 3).
const dedupJaccardThreshold = 0.85

func isDuplicate(candidate, existing string) bool {
	nc, ne := normalize(candidate), normalize(existing)
	if nc == ne {
		return true
	}
	return jaccard(tokenSet(nc), tokenSet(ne)) >= dedupJaccardThreshold
}
