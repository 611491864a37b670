package retrieval

import (
	"github.com/coregx/ahocorasick"

	"github.com/memori-run/memori/internal/store"
)

// entityIndex is a per-query Aho-Corasick automaton built over the entity
// values it is given, used by the entity-match strategy (spec.md §4.2
// strategy 4) to find those values inside a raw query. The automaton
// itself matches multiword values ("San Francisco"), but Engine builds it
// only from stored entities whose value equals a single query token, so
// through the engine it recognizes single-token mentions. Adapted from the teacher's RuntimeDictionary,
// which served the identical dual role — the same canonicalizer
// compiles patterns and scans text — stripped of the alias-generation
// and narrative-scoping machinery the spec's flat entity list has no
// use for.
type entityIndex struct {
	ac       *ahocorasick.Automaton
	patterns []string
	values   map[string]store.EntityType // canonicalized pattern -> entity type
}

// buildEntityIndex compiles an automaton from the given entities. Returns a nil index (not an error) when there are no
// entities to match against, so callers can skip the strategy cleanly.
func buildEntityIndex(entities []store.Entity) (*entityIndex, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	seen := map[string]bool{}
	idx := &entityIndex{values: make(map[string]store.EntityType, len(entities))}

	for _, e := range entities {
		key := canonicalize(e.Value)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		idx.patterns = append(idx.patterns, key)
		idx.values[key] = e.Type
	}
	if len(idx.patterns) == 0 {
		return nil, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(idx.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	idx.ac = automaton
	return idx, nil
}

// matchTokens scans query for known entity mentions and returns their
// canonicalized surface forms, to be looked up in memory_entities by
// the entity-match strategy.
func (idx *entityIndex) matchTokens(query string) []string {
	if idx == nil || idx.ac == nil {
		return nil
	}
	haystack := []byte(canonicalize(query))
	matches := idx.ac.FindAllOverlapping(haystack)

	seen := map[string]bool{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.PatternID < 0 || m.PatternID >= len(idx.patterns) {
			continue
		}
		p := idx.patterns[m.PatternID]
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
