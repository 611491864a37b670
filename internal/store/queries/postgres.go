package queries

import "fmt"

// Postgres implements Dialect using a generated tsvector column plus a
// GIN index, queried with plainto_tsquery, per spec.md §4.1.
type postgresDialect struct{}

var Postgres Dialect = postgresDialect{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) SchemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS chat_history (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			user_input TEXT NOT NULL,
			ai_output TEXT NOT NULL,
			model TEXT,
			timestamp TIMESTAMPTZ NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history(namespace, session_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS short_term_memory (
			memory_id TEXT PRIMARY KEY,
			source_turn_id TEXT,
			namespace TEXT NOT NULL,
			summary TEXT NOT NULL,
			searchable_content TEXT NOT NULL,
			category_primary TEXT NOT NULL,
			importance TEXT NOT NULL,
			retention_type TEXT NOT NULL,
			is_permanent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_short_term_namespace ON short_term_memory(namespace, created_at)`,

		`CREATE TABLE IF NOT EXISTS long_term_memory (
			memory_id TEXT PRIMARY KEY,
			source_turn_id TEXT,
			namespace TEXT NOT NULL,
			summary TEXT NOT NULL,
			searchable_content TEXT NOT NULL,
			searchable_norm TEXT NOT NULL,
			category_primary TEXT NOT NULL,
			importance TEXT NOT NULL,
			classification TEXT NOT NULL,
			promotion_eligible BOOLEAN NOT NULL DEFAULT FALSE,
			duplicate_of TEXT,
			processed_for_duplicates BOOLEAN NOT NULL DEFAULT FALSE,
			retention_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ,
			search_vector TSVECTOR GENERATED ALWAYS AS (
				setweight(to_tsvector('english', coalesce(summary, '')), 'A') ||
				setweight(to_tsvector('english', coalesce(searchable_content, '')), 'B')
			) STORED,
			UNIQUE(namespace, searchable_norm)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_long_term_namespace ON long_term_memory(namespace, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_long_term_dedup_scan ON long_term_memory(namespace, processed_for_duplicates, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_long_term_search_vector ON long_term_memory USING GIN(search_vector)`,

		`CREATE TABLE IF NOT EXISTS memory_entities (
			entity_id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_value TEXT NOT NULL,
			occurrence_count INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_entities_lookup ON memory_entities(namespace, entity_value)`,

		`CREATE TABLE IF NOT EXISTS memory_categories (
			memory_id TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (memory_id, category)
		)`,

		`CREATE TABLE IF NOT EXISTS category_index (
			namespace TEXT NOT NULL,
			category TEXT NOT NULL,
			memory_id TEXT NOT NULL,
			PRIMARY KEY (namespace, category, memory_id)
		)`,

		`CREATE TABLE IF NOT EXISTS working_memory (
			item_id TEXT PRIMARY KEY,
			source_memory_id TEXT,
			namespace TEXT NOT NULL,
			summary TEXT NOT NULL,
			searchable_content TEXT NOT NULL,
			importance TEXT NOT NULL,
			is_permanent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ,
			access_count INTEGER NOT NULL DEFAULT 0,
			UNIQUE(namespace, source_memory_id)
		)`,

		`CREATE TABLE IF NOT EXISTS namespace_stats (
			namespace TEXT PRIMARY KEY,
			dropped_extraction_count INTEGER NOT NULL DEFAULT 0
		)`,
	}
}

func (postgresDialect) FullTextMatch(table string, argIndex int) (string, string, int) {
	placeholder := fmt.Sprintf("$%d", argIndex)
	predicate := fmt.Sprintf("%s.search_vector @@ plainto_tsquery('english', %s)", table, placeholder)
	score := fmt.Sprintf("ts_rank(%s.search_vector, plainto_tsquery('english', %s))", table, placeholder)
	return predicate, score, argIndex + 1
}

func (postgresDialect) InsertIgnorePrefix() string { return "INSERT INTO" }

func (postgresDialect) InsertIgnoreClause(conflictColumns string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", conflictColumns)
}
