// Package queries holds the per-database-dialect SQL fragments that the
// generic store implementation in internal/store needs: schema DDL,
// placeholder syntax, full-text search predicates, and dedup-safe insert
// clauses. Adding a fourth dialect means adding one file here plus one
// Opener registration, not touching internal/store's query logic.
package queries

import "fmt"

// Dialect isolates the handful of places SQLite, MySQL, and Postgres
// genuinely diverge: placeholder syntax, schema DDL (including the
// full-text index artifact spec.md §4.1 calls for), the native full-text
// match predicate, and the "insert, but silently skip on duplicate"
// clause used for dedup-safe writes.
type Dialect interface {
	// Name identifies the dialect for DatabaseInfo and log fields.
	Name() string

	// Placeholder returns the positional-parameter marker for the n-th
	// (1-indexed) bound argument: "?" for sqlite/mysql, "$n" for postgres.
	Placeholder(n int) string

	// SchemaStatements returns the ordered, idempotent DDL statements
	// that create spec.md §4.1's six tables plus this dialect's
	// full-text artifact.
	SchemaStatements() []string

	// FullTextMatch returns a SQL boolean expression testing whether
	// table's (summary, searchable_content) match the query bound at
	// argIndex, plus a parallel expression computing the dialect's native
	// relevance score (not normalized; the store maps it into [0,1]
	// afterwards), and the next free argument index. The caller supplies the
	// table alias to qualify column references.
	FullTextMatch(table string, argIndex int) (predicate, scoreExpr string, nextArg int)

	// InsertIgnoreClause returns the statement-terminal clause (or
	// prefix, via InsertIgnorePrefix) that makes an insert a no-op
	// instead of an error when a dedup-uniqueness constraint is hit.
	InsertIgnorePrefix() string
	InsertIgnoreClause(conflictColumns string) string
}

// BuildPlaceholders returns n placeholders starting at argument index
// `from`, comma-joined, e.g. BuildPlaceholders(d, 1, 3) -> "?, ?, ?" or
// "$1, $2, $3".
func BuildPlaceholders(d Dialect, from, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += d.Placeholder(from + i)
	}
	return out
}

// ErrNoSuchDialect is returned by lookups against an unregistered name.
var ErrNoSuchDialect = fmt.Errorf("queries: no such dialect")
