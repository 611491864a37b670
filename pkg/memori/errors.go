package memori

import "errors"

// Sentinel error kinds (spec.md §7). Wrap one of these with fmt.Errorf's
// %w so callers can classify a failure with errors.Is without parsing
// message text.
var (
	// ErrConfiguration covers an invalid or incomplete Config: bad URI,
	// missing required field. Always fatal, and only ever returned from
	// Open.
	ErrConfiguration = errors.New("memori: configuration error")

	// ErrDatabase covers a storage-layer failure reached after Open
	// succeeded: a failed query, a closed connection, a constraint
	// violation. Surfaced to the caller from Record/Search/Clear/Stats;
	// the pipeline's own background path swallows and logs it instead
	// (spec.md §7: "pipeline continues, turn stays chat-history-only").
	ErrDatabase = errors.New("memori: database error")

	// ErrAnalysis covers an extraction or retrieval-planning LLM call
	// failing or returning something unparseable. Always swallowed on
	// the critical path; pipeline.Process and retrieval.Engine fall back
	// to non-LLM behavior rather than returning this to a caller. It
	// exists so internal logging can classify the failure.
	ErrAnalysis = errors.New("memori: analysis error")

	// ErrValidation covers a caller-supplied argument that fails a
	// structural check: an unknown Clear type, an empty session ID where
	// one is required. Always surfaced.
	ErrValidation = errors.New("memori: validation error")

	// ErrInterception covers a hook that failed to enable. No function
	// returns it: Enable reports per-hook failure as false in its
	// map[string]bool result — enabling hooks is best-effort per spec.md §7.
	ErrInterception = errors.New("memori: interception error")
)
