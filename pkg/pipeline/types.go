// Package pipeline implements the Memory Pipeline (spec.md §4.3): turn a
// captured ChatTurn into a structured ProcessedMemory via the analysis
// LLM, deduplicate it against recent memory, filter it, and store it. It
// is the Go rewrite of the teacher's pkg/memory, whose Extractor did the
// same extract-then-store shape against a hardcoded OpenRouter client;
// here the LLM call is the vendor-neutral analysis.Provider contract and
// dispatch runs through a bounded worker pool instead of a raw goroutine
// per call.
package pipeline

import "github.com/memori-run/memori/internal/store"

// UserContext carries caller-supplied hints into extraction, grounded on
// update_user_context / _get_conscious_context in the original's
// memory.py — current projects, relevant skills, and freeform
// preferences the analysis LLM is told about when building a
// ConversationContext.
type UserContext struct {
	CurrentProjects []string
	RelevantSkills  []string
	Preferences     []string
}

// ConversationContext is built once per turn and handed to the analysis
// LLM (spec.md §4.3 step 1): session id, model, user-context hints, and
// up to 10 recent memory summaries.
type ConversationContext struct {
	SessionID       string
	Model           string
	UserContext     UserContext
	RecentSummaries []string
}

// Filters are the namespace-level allow/deny rules applied after
// extraction and dedup (spec.md §4.3 step 4). A nil CategoryAllowList
// means all categories pass.
type Filters struct {
	CategoryAllowList []store.MemoryCategory
	MinImportance     store.Importance
}

func (f Filters) allows(mem *store.ProcessedMemory) bool {
	if len(f.CategoryAllowList) > 0 {
		ok := false
		for _, c := range f.CategoryAllowList {
			if c == mem.PrimaryCategory {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MinImportance != "" && mem.Importance.Score() < f.MinImportance.Score() {
		return false
	}
	return true
}
