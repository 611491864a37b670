package response

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memori-run/memori/internal/store"
)

func TestFromSearchResultsOmitsInternalFields(t *testing.T) {
	results := []store.SearchResult{
		{
			Memory: store.ProcessedMemory{ID: "m1", Summary: "likes go", PrimaryCategory: store.CategoryPreference, Importance: store.ImportanceHigh},
			Score:  0.9, Strategy: store.StrategyFulltext,
		},
	}
	slim := FromSearchResults(results)
	require.Len(t, slim, 1)
	require.Equal(t, "m1", slim[0].ID)
	require.Equal(t, "preference", slim[0].Category)
	require.Equal(t, store.StrategyFulltext, store.SearchStrategy(slim[0].Strategy))
}

func TestFromStatsCopiesPerCategory(t *testing.T) {
	stats := store.MemoryStats{
		Namespace: "ns", ChatCount: 3, LongTermCount: 2,
		PerCategory: map[store.MemoryCategory]int{store.CategoryFact: 1, store.CategorySkill: 1},
	}
	slim := FromStats(stats)
	require.Equal(t, "ns", slim.Namespace)
	require.Equal(t, 1, slim.PerCategory["fact"])
	require.Equal(t, 1, slim.PerCategory["skill"])
}

func TestMarshalSlimSearchResponse(t *testing.T) {
	b, err := MarshalSlimSearchResponse(nil, 42)
	require.NoError(t, err)
	require.Contains(t, string(b), `"timing_us":42`)
}
