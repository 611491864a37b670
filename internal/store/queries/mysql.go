package queries

import "fmt"

// MySQL implements Dialect using FULLTEXT(summary, searchable_content)
// indexes and NATURAL LANGUAGE MODE queries, per spec.md §4.1.
type mysqlDialect struct{}

var MySQL Dialect = mysqlDialect{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) SchemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS chat_history (
			turn_id VARCHAR(64) PRIMARY KEY,
			session_id VARCHAR(128) NOT NULL,
			namespace VARCHAR(128) NOT NULL,
			user_input TEXT NOT NULL,
			ai_output TEXT NOT NULL,
			model VARCHAR(128),
			timestamp DATETIME NOT NULL,
			tokens INT NOT NULL DEFAULT 0,
			metadata TEXT,
			INDEX idx_chat_history_session (namespace, session_id, timestamp)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS short_term_memory (
			memory_id VARCHAR(64) PRIMARY KEY,
			source_turn_id VARCHAR(64),
			namespace VARCHAR(128) NOT NULL,
			summary VARCHAR(500) NOT NULL,
			searchable_content TEXT NOT NULL,
			category_primary VARCHAR(32) NOT NULL,
			importance VARCHAR(16) NOT NULL,
			retention_type VARCHAR(16) NOT NULL,
			is_permanent TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NULL,
			INDEX idx_short_term_namespace (namespace, created_at),
			FULLTEXT KEY ftx_short_term (summary, searchable_content)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS long_term_memory (
			memory_id VARCHAR(64) PRIMARY KEY,
			source_turn_id VARCHAR(64),
			namespace VARCHAR(128) NOT NULL,
			summary VARCHAR(500) NOT NULL,
			searchable_content TEXT NOT NULL,
			searchable_norm VARCHAR(5000) NOT NULL,
			category_primary VARCHAR(32) NOT NULL,
			importance VARCHAR(16) NOT NULL,
			classification VARCHAR(32) NOT NULL,
			promotion_eligible TINYINT(1) NOT NULL DEFAULT 0,
			duplicate_of VARCHAR(64),
			processed_for_duplicates TINYINT(1) NOT NULL DEFAULT 0,
			retention_type VARCHAR(16) NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NULL,
			UNIQUE KEY uq_long_term_dedup (namespace, searchable_norm(255)),
			INDEX idx_long_term_namespace (namespace, created_at),
			INDEX idx_long_term_dedup_scan (namespace, processed_for_duplicates, created_at),
			FULLTEXT KEY ftx_long_term (summary, searchable_content)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS memory_entities (
			entity_id VARCHAR(64) PRIMARY KEY,
			memory_id VARCHAR(64) NOT NULL,
			namespace VARCHAR(128) NOT NULL,
			entity_type VARCHAR(32) NOT NULL,
			entity_value VARCHAR(256) NOT NULL,
			occurrence_count INT NOT NULL DEFAULT 1,
			INDEX idx_memory_entities_lookup (namespace, entity_value)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS memory_categories (
			memory_id VARCHAR(64) NOT NULL,
			category VARCHAR(32) NOT NULL,
			confidence DOUBLE NOT NULL DEFAULT 0,
			PRIMARY KEY (memory_id, category)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS category_index (
			namespace VARCHAR(128) NOT NULL,
			category VARCHAR(32) NOT NULL,
			memory_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (namespace, category, memory_id)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS working_memory (
			item_id VARCHAR(64) PRIMARY KEY,
			source_memory_id VARCHAR(64),
			namespace VARCHAR(128) NOT NULL,
			summary VARCHAR(500) NOT NULL,
			searchable_content TEXT NOT NULL,
			importance VARCHAR(16) NOT NULL,
			is_permanent TINYINT(1) NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NULL,
			access_count INT NOT NULL DEFAULT 0,
			UNIQUE KEY uq_working_source (namespace, source_memory_id)
		) ENGINE=InnoDB`,

		`CREATE TABLE IF NOT EXISTS namespace_stats (
			namespace VARCHAR(128) PRIMARY KEY,
			dropped_extraction_count INT NOT NULL DEFAULT 0
		) ENGINE=InnoDB`,
	}
}

func (mysqlDialect) FullTextMatch(table string, argIndex int) (string, string, int) {
	predicate := fmt.Sprintf(
		"MATCH(%s.summary, %s.searchable_content) AGAINST (? IN NATURAL LANGUAGE MODE)",
		table, table,
	)
	score := fmt.Sprintf(
		"MATCH(%s.summary, %s.searchable_content) AGAINST (? IN NATURAL LANGUAGE MODE)",
		table, table,
	)
	// the score expression and the predicate each take their own `?`
	// placeholder; callers bind the query text twice, once for the
	// SELECT score and once for the WHERE predicate.
	return predicate, score, argIndex + 1
}

func (mysqlDialect) InsertIgnorePrefix() string { return "INSERT IGNORE INTO" }

func (mysqlDialect) InsertIgnoreClause(string) string {
	// MySQL expresses dedup-insert-or-skip via the INSERT IGNORE prefix,
	// not a trailing clause.
	return ""
}
