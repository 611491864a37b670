package queries

import "fmt"

// SQLite implements Dialect using FTS5 for full-text search, matching the
// teacher's own schema (internal/store/sqlite_store.go kept an FTS5
// virtual table with insert/update/delete triggers; this keeps that
// pattern and generalizes the tracked table to long_term_memory).
type sqliteDialect struct{}

// SQLite is the default dialect used for "sqlite://", "sqlite3://", and
// plain-path database URIs.
var SQLite Dialect = sqliteDialect{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) SchemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS chat_history (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			user_input TEXT NOT NULL,
			ai_output TEXT NOT NULL,
			model TEXT,
			timestamp DATETIME NOT NULL,
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
			is_permanent INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			expires_at DATETIME
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
			promotion_eligible INTEGER NOT NULL DEFAULT 0,
			duplicate_of TEXT,
			processed_for_duplicates INTEGER NOT NULL DEFAULT 0,
			retention_type TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			UNIQUE(namespace, searchable_norm)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_long_term_namespace ON long_term_memory(namespace, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_long_term_dedup_scan ON long_term_memory(namespace, processed_for_duplicates, created_at)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS long_term_memory_fts USING fts5(
			summary, searchable_content, content='long_term_memory', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS long_term_memory_ai AFTER INSERT ON long_term_memory BEGIN
			INSERT INTO long_term_memory_fts(rowid, summary, searchable_content)
			VALUES (new.rowid, new.summary, new.searchable_content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS long_term_memory_ad AFTER DELETE ON long_term_memory BEGIN
			INSERT INTO long_term_memory_fts(long_term_memory_fts, rowid, summary, searchable_content)
			VALUES ('delete', old.rowid, old.summary, old.searchable_content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS long_term_memory_au AFTER UPDATE ON long_term_memory BEGIN
			INSERT INTO long_term_memory_fts(long_term_memory_fts, rowid, summary, searchable_content)
			VALUES ('delete', old.rowid, old.summary, old.searchable_content);
			INSERT INTO long_term_memory_fts(rowid, summary, searchable_content)
			VALUES (new.rowid, new.summary, new.searchable_content);
		END`,

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
			confidence REAL NOT NULL DEFAULT 0,
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
			is_permanent INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			access_count INTEGER NOT NULL DEFAULT 0,
			UNIQUE(namespace, source_memory_id)
		)`,

		`CREATE TABLE IF NOT EXISTS namespace_stats (
			namespace TEXT PRIMARY KEY,
			dropped_extraction_count INTEGER NOT NULL DEFAULT 0
		)`,
	}
}

func (sqliteDialect) FullTextMatch(table string, argIndex int) (string, string, int) {
	predicate := fmt.Sprintf(
		"%s.rowid IN (SELECT rowid FROM long_term_memory_fts WHERE long_term_memory_fts MATCH ?)",
		table,
	)
	score := "bm25(long_term_memory_fts)"
	return predicate, score, argIndex + 1
}

func (sqliteDialect) InsertIgnorePrefix() string { return "INSERT OR IGNORE INTO" }

func (sqliteDialect) InsertIgnoreClause(conflictColumns string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", conflictColumns)
}
