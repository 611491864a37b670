// Package response provides slim JSON response builders: only the
// fields an API caller actually needs, not the full internal row shape
// (SearchResult carries ranking internals the caller never asked for).
// Adapted from the teacher's graph-slimming package — same "minimal
// view type + From* converter + MarshalSlimResponse" shape, retargeted
// from concept-graph nodes/edges to memory search results and
// namespace stats.
package response

import (
	"encoding/json"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/pool"
)

// SlimMemory is the minimal memory representation for API callers.
type SlimMemory struct {
	ID         string  `json:"id"`
	Summary    string  `json:"summary"`
	Category   string  `json:"category"`
	Importance string  `json:"importance"`
	Score      float64 `json:"score"`
	Strategy   string  `json:"strategy"`
}

// SlimSearchResponse is the minimal search response for API callers.
type SlimSearchResponse struct {
	Results  []SlimMemory `json:"results"`
	TimingUS int64        `json:"timing_us"`
}

// SlimStats is the minimal per-namespace stats view.
type SlimStats struct {
	Namespace              string         `json:"namespace"`
	ChatCount              int            `json:"chat_count"`
	ShortTermCount         int            `json:"short_term_count"`
	LongTermCount          int            `json:"long_term_count"`
	PerCategory            map[string]int `json:"per_category,omitempty"`
	DroppedExtractionCount int            `json:"dropped_extraction_count"`
}

// FromSearchResults converts full SearchResult rows to SlimMemory.
func FromSearchResults(results []store.SearchResult) []SlimMemory {
	if results == nil {
		return nil
	}
	out := make([]SlimMemory, 0, len(results))
	for _, r := range results {
		out = append(out, SlimMemory{
			ID:         r.Memory.ID,
			Summary:    r.Memory.Summary,
			Category:   string(r.Memory.PrimaryCategory),
			Importance: string(r.Memory.Importance),
			Score:      r.Score,
			Strategy:   string(r.Strategy),
		})
	}
	return out
}

// FromStats converts a MemoryStats snapshot to SlimStats. It borrows a
// pooled map from pkg/pool to stage the per-category counts, then copies
// them into a newly allocated JSON-tagged map.
func FromStats(stats store.MemoryStats) SlimStats {
	scratch := pool.GetMap()
	defer pool.PutMap(scratch)

	for cat, count := range stats.PerCategory {
		scratch[string(cat)] = count
	}

	perCategory := make(map[string]int, len(scratch))
	for k, v := range scratch {
		if n, ok := v.(int); ok {
			perCategory[k] = n
		}
	}

	return SlimStats{
		Namespace:              stats.Namespace,
		ChatCount:              stats.ChatCount,
		ShortTermCount:         stats.ShortTermCount,
		LongTermCount:          stats.LongTermCount,
		PerCategory:            perCategory,
		DroppedExtractionCount: stats.DroppedExtractionCount,
	}
}

// MarshalSlimSearchResponse creates a minimal JSON search response.
func MarshalSlimSearchResponse(results []store.SearchResult, timingUS int64) ([]byte, error) {
	resp := SlimSearchResponse{
		Results:  FromSearchResults(results),
		TimingUS: timingUS,
	}
	return json.Marshal(resp)
}
