package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/analysis"
)

// plannerSystemPrompt mirrors the teacher's extraction.SystemPrompt shape:
// a single instruction sentence plus a strict output-schema description,
// adapted from entity/relation extraction to query planning.
const plannerSystemPrompt = "You turn a user's raw search query into a structured memory search plan. " +
	"Respond with JSON matching the requested schema only."

// planSchema constrains the planner's output the same way
// analysis.ProcessedMemorySchema constrains extraction output.
const planSchema = `{
  "type": "object",
  "required": ["keywords"],
  "properties": {
    "keywords": {"type": "array", "items": {"type": "string"}},
    "category": {"type": "string", "enum": ["fact", "preference", "skill", "context", "rule", ""]},
    "entities": {"type": "array", "items": {"type": "string"}}
  }
}`

// plan is the structured search plan a planner call (or the heuristic
// fallback) produces, consumed by Engine.Search to fill in SearchQuery.
type plan struct {
	Keywords []string            `json:"keywords"`
	Category store.MemoryCategory `json:"category"`
	Entities []string            `json:"entities"`
}

// planResponse is the wire shape the analysis LLM returns.
type planResponse struct {
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
	Entities []string `json:"entities"`
}

// planQuery asks the configured analysis provider to rewrite a raw query
// into a plan (spec.md §4.2: "a retrieval planner may rewrite a raw user
// query into a structured search plan"). Errors are always returned to
// the caller, which falls back to heuristicPlan rather than surfacing
// the failure — this mirrors the extraction package's
// ExtractFromNote/ParseResponse split, with relation extraction dropped
// since the spec's retrieval plan has no relation concept.
func planQuery(ctx context.Context, provider analysis.Provider, query string) (plan, error) {
	if provider == nil {
		return plan{}, fmt.Errorf("retrieval: no planner configured")
	}

	messages := []analysis.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: "Query: " + query},
	}

	raw, err := provider.Chat(ctx, messages, 256, 0.0, planSchema)
	if err != nil {
		return plan{}, fmt.Errorf("retrieval: planner call failed: %w", err)
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return plan{}, fmt.Errorf("retrieval: parsing planner output: %w", err)
	}

	return plan{
		Keywords: resp.Keywords,
		Category: store.MemoryCategory(resp.Category),
		Entities: resp.Entities,
	}, nil
}

// heuristicPlan builds a plan from tokenization alone, used when no
// planner is configured, the planner call fails, or it times out
// (spec.md §4.2: "if the planner is unavailable or times out, the
// engine proceeds with the raw query").
func heuristicPlan(query string) plan {
	return plan{Keywords: tokenize(query)}
}
