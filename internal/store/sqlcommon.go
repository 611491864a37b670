package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/memori-run/memori/internal/store/queries"
)

// sqlStore implements Store on top of database/sql, generic across any
// queries.Dialect. Each dialect's Opener (in sqlitestore.go, mysqlstore.go,
// pgstore.go) is responsible only for opening *sql.DB with the right
// driver and handing it to newSQLStore.
type sqlStore struct {
	db      *sql.DB
	dialect queries.Dialect
}

func newSQLStore(db *sql.DB, d queries.Dialect) *sqlStore {
	return &sqlStore{db: db, dialect: d}
}

func (s *sqlStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.SchemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: schema init: %s: %w", ErrDatabase, firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func (s *sqlStore) ph(i int) string { return s.dialect.Placeholder(i) }

func (s *sqlStore) StoreChatTurn(ctx context.Context, turn ChatTurn) error {
	meta, err := json.Marshal(turn.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshaling chat turn metadata: %w", err)
	}
	q := fmt.Sprintf(`INSERT INTO chat_history
		(turn_id, session_id, namespace, user_input, ai_output, model, timestamp, tokens, metadata)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))
	_, err = s.db.ExecContext(ctx, q,
		turn.ID, turn.SessionID, turn.Namespace, turn.UserInput, turn.AIOutput,
		turn.Model, turn.Timestamp, turn.TokenCount, string(meta))
	if err != nil {
		return fmt.Errorf("%w: storing chat turn: %w", ErrDatabase, err)
	}
	return nil
}

func (s *sqlStore) GetChatHistory(ctx context.Context, namespace, sessionID string, limit int) ([]ChatTurn, error) {
	q := fmt.Sprintf(`SELECT turn_id, session_id, namespace, user_input, ai_output, model, timestamp, tokens, metadata
		FROM chat_history WHERE namespace = %s AND session_id = %s
		ORDER BY timestamp DESC LIMIT %s`, s.ph(1), s.ph(2), s.ph(3))
	rows, err := s.db.QueryContext(ctx, q, namespace, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: getting chat history: %w", ErrDatabase, err)
	}
	defer rows.Close()

	var out []ChatTurn
	for rows.Next() {
		var t ChatTurn
		var meta string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Namespace, &t.UserInput, &t.AIOutput,
			&t.Model, &t.Timestamp, &t.TokenCount, &meta); err != nil {
			return nil, fmt.Errorf("%w: scanning chat turn: %w", ErrDatabase, err)
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &t.Metadata)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) StoreProcessedMemory(ctx context.Context, mem ProcessedMemory) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: beginning transaction: %w", ErrDatabase, err)
	}
	defer tx.Rollback()

	table := "long_term_memory"
	if mem.IsShortTerm {
		table = "short_term_memory"
	}

	norm := normalizeForDedup(mem.SearchableContent)
	var inserted bool

	if mem.IsShortTerm {
		q := fmt.Sprintf(`INSERT INTO short_term_memory
			(memory_id, source_turn_id, namespace, summary, searchable_content,
			 category_primary, importance, retention_type, is_permanent, created_at, expires_at)
			VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11))
		res, err := tx.ExecContext(ctx, q, mem.ID, mem.SourceTurnID, mem.Namespace, mem.Summary,
			mem.SearchableContent, string(mem.PrimaryCategory), string(mem.Importance),
			string(mem.RetentionType), mem.Classification == ClassificationEssential, mem.CreatedAt, mem.ExpiresAt)
		if err != nil {
			return false, fmt.Errorf("%w: storing short-term memory: %w", ErrDatabase, err)
		}
		n, _ := res.RowsAffected()
		inserted = n > 0
	} else {
		prefix := s.dialect.InsertIgnorePrefix()
		q := fmt.Sprintf(`%s long_term_memory
			(memory_id, source_turn_id, namespace, summary, searchable_content, searchable_norm,
			 category_primary, importance, classification, promotion_eligible, duplicate_of,
			 processed_for_duplicates, retention_type, created_at, expires_at)
			VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s) %s`,
			prefix,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9),
			s.ph(10), s.ph(11), s.ph(12), s.ph(13), s.ph(14), s.ph(15),
			s.dialect.InsertIgnoreClause("namespace, searchable_norm"))
		var duplicateOf any
		if mem.DuplicateOf != "" {
			duplicateOf = mem.DuplicateOf
		}
		res, err := tx.ExecContext(ctx, q, mem.ID, mem.SourceTurnID, mem.Namespace, mem.Summary,
			mem.SearchableContent, norm, string(mem.PrimaryCategory), string(mem.Importance),
			string(mem.Classification), mem.PromotionEligible, duplicateOf, mem.ProcessedForDuplicates,
			string(mem.RetentionType), mem.CreatedAt, mem.ExpiresAt)
		if err != nil {
			// a dedup uniqueness violation is reported as "already present",
			// per spec.md §4.1 Failure semantics, not surfaced as ErrDatabase.
			if isUniqueViolation(err) {
				return false, nil
			}
			return false, fmt.Errorf("%w: storing long-term memory: %w", ErrDatabase, err)
		}
		n, _ := res.RowsAffected()
		inserted = n > 0
	}

	if inserted {
		for _, e := range mem.Entities {
			q := fmt.Sprintf(`INSERT INTO memory_entities
				(entity_id, memory_id, namespace, entity_type, entity_value, occurrence_count)
				VALUES (%s,%s,%s,%s,%s,%s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
			if _, err := tx.ExecContext(ctx, q, e.ID, mem.ID, mem.Namespace, string(e.Type), strings.ToLower(e.Value), e.OccurrenceCount); err != nil {
				return false, fmt.Errorf("%w: storing entity: %w", ErrDatabase, err)
			}
		}
		for _, c := range mem.SecondaryCategories {
			q := fmt.Sprintf(`INSERT INTO memory_categories (memory_id, category, confidence)
				VALUES (%s,%s,%s)`, s.ph(1), s.ph(2), s.ph(3))
			if _, err := tx.ExecContext(ctx, q, mem.ID, string(c.Category), c.Confidence); err != nil {
				return false, fmt.Errorf("%w: storing category tag: %w", ErrDatabase, err)
			}
			idxQ := fmt.Sprintf(`INSERT INTO category_index (namespace, category, memory_id) VALUES (%s,%s,%s)`,
				s.ph(1), s.ph(2), s.ph(3))
			if _, err := tx.ExecContext(ctx, idxQ, mem.Namespace, string(c.Category), mem.ID); err != nil {
				return false, fmt.Errorf("%w: indexing category: %w", ErrDatabase, err)
			}
		}
		idxQ := fmt.Sprintf(`INSERT INTO category_index (namespace, category, memory_id) VALUES (%s,%s,%s)`,
			s.ph(1), s.ph(2), s.ph(3))
		if _, err := tx.ExecContext(ctx, idxQ, mem.Namespace, string(mem.PrimaryCategory), mem.ID); err != nil {
			return false, fmt.Errorf("%w: indexing primary category: %w", ErrDatabase, err)
		}
	}

	_ = table
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: committing memory store: %w", ErrDatabase, err)
	}
	return inserted, nil
}

func (s *sqlStore) GetRecentUndedupedMemories(ctx context.Context, namespace string, limit int) ([]ProcessedMemory, error) {
	q := fmt.Sprintf(`SELECT memory_id, source_turn_id, namespace, summary, searchable_content,
		category_primary, importance, classification, promotion_eligible, duplicate_of,
		processed_for_duplicates, retention_type, created_at, expires_at
		FROM long_term_memory WHERE namespace = %s AND processed_for_duplicates = %s
		ORDER BY created_at DESC LIMIT %s`, s.ph(1), s.ph(2), s.ph(3))
	rows, err := s.db.QueryContext(ctx, q, namespace, false, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: getting recent un-deduped memories: %w", ErrDatabase, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *sqlStore) MarkProcessedForDuplicates(ctx context.Context, memoryID string) error {
	q := fmt.Sprintf(`UPDATE long_term_memory SET processed_for_duplicates = %s WHERE memory_id = %s`, s.ph(1), s.ph(2))
	if _, err := s.db.ExecContext(ctx, q, true, memoryID); err != nil {
		return fmt.Errorf("%w: marking processed for duplicates: %w", ErrDatabase, err)
	}
	return nil
}

func (s *sqlStore) GetMemoriesForPromotion(ctx context.Context, namespace string) ([]ProcessedMemory, error) {
	q := fmt.Sprintf(`SELECT memory_id, source_turn_id, namespace, summary, searchable_content,
		category_primary, importance, classification, promotion_eligible, duplicate_of,
		processed_for_duplicates, retention_type, created_at, expires_at
		FROM long_term_memory WHERE namespace = %s AND promotion_eligible = %s AND duplicate_of IS NULL
		ORDER BY created_at ASC`, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, q, namespace, true)
	if err != nil {
		return nil, fmt.Errorf("%w: getting promotion candidates: %w", ErrDatabase, err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]ProcessedMemory, error) {
	var out []ProcessedMemory
	for rows.Next() {
		var m ProcessedMemory
		var duplicateOf sql.NullString
		if err := rows.Scan(&m.ID, &m.SourceTurnID, &m.Namespace, &m.Summary, &m.SearchableContent,
			&m.PrimaryCategory, &m.Importance, &m.Classification, &m.PromotionEligible, &duplicateOf,
			&m.ProcessedForDuplicates, &m.RetentionType, &m.CreatedAt, &m.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: scanning processed memory: %w", ErrDatabase, err)
		}
		m.DuplicateOf = duplicateOf.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqlStore) StoreWorkingMemoryItem(ctx context.Context, item WorkingMemoryItem) (bool, error) {
	q := fmt.Sprintf(`%s working_memory
		(item_id, source_memory_id, namespace, summary, searchable_content, importance,
		 is_permanent, created_at, expires_at, access_count)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s) %s`,
		s.dialect.InsertIgnorePrefix(),
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10),
		s.dialect.InsertIgnoreClause("namespace, source_memory_id"))
	res, err := s.db.ExecContext(ctx, q, item.ID, item.SourceMemoryID, item.Namespace, item.Summary,
		item.SearchableContent, string(item.Importance), item.IsPermanent, item.CreatedAt,
		item.ExpiresAt, item.AccessCount)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: storing working memory item: %w", ErrDatabase, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqlStore) GetWorkingMemoryItems(ctx context.Context, namespace string) ([]WorkingMemoryItem, error) {
	q := fmt.Sprintf(`SELECT item_id, source_memory_id, namespace, summary, searchable_content,
		importance, is_permanent, created_at, expires_at, access_count
		FROM working_memory WHERE namespace = %s ORDER BY created_at ASC`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: getting working memory items: %w", ErrDatabase, err)
	}
	defer rows.Close()

	var out []WorkingMemoryItem
	for rows.Next() {
		var it WorkingMemoryItem
		var sourceID sql.NullString
		if err := rows.Scan(&it.ID, &sourceID, &it.Namespace, &it.Summary, &it.SearchableContent,
			&it.Importance, &it.IsPermanent, &it.CreatedAt, &it.ExpiresAt, &it.AccessCount); err != nil {
			return nil, fmt.Errorf("%w: scanning working memory item: %w", ErrDatabase, err)
		}
		it.SourceMemoryID = sourceID.String
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqlStore) TouchWorkingMemoryItem(ctx context.Context, id string) error {
	q := fmt.Sprintf(`UPDATE working_memory SET access_count = access_count + 1 WHERE item_id = %s`, s.ph(1))
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("%w: touching working memory item: %w", ErrDatabase, err)
	}
	return nil
}

// SearchMemories implements the strategy ladder: full-text, keyword-like,
// category, entity, recent-fallback (spec.md §4.2). A strategy that
// errors is skipped and the ladder continues with the next one; its
// error is not returned.
func (s *sqlStore) SearchMemories(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	results := map[string]SearchResult{} // keyed by normalized searchable_content

	merge := func(rs []SearchResult) {
		for _, r := range rs {
			norm := normalizeForDedup(r.Memory.SearchableContent)
			if existing, ok := results[norm]; !ok || r.Score > existing.Score {
				results[norm] = r
			}
		}
	}

	if q.Text != "" {
		if ft, err := s.fullTextSearch(ctx, q.Namespace, q.Text, limit); err == nil && len(ft) > 0 {
			merge(ft)
		} else if kw, err := s.keywordLikeSearch(ctx, q.Namespace, q.Text, limit); err == nil {
			merge(kw)
		}
	}

	if q.CategoryFilter != "" {
		if cat, err := s.categorySearch(ctx, q.Namespace, q.CategoryFilter, limit); err == nil {
			merge(cat)
		}
	}

	if len(q.EntityTokens) > 0 {
		if ent, err := s.entitySearch(ctx, q.Namespace, q.EntityTokens, limit); err == nil {
			merge(ent)
		}
	}

	if len(results) == 0 {
		rf, err := s.recentFallback(ctx, q.Namespace, limit)
		if err != nil {
			return nil, nil
		}
		merge(rf)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Memory.Importance.Score() != out[j].Memory.Importance.Score() {
			return out[i].Memory.Importance.Score() > out[j].Memory.Importance.Score()
		}
		if !out[i].Memory.CreatedAt.Equal(out[j].Memory.CreatedAt) {
			return out[i].Memory.CreatedAt.After(out[j].Memory.CreatedAt)
		}
		return out[i].Memory.ID < out[j].Memory.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *sqlStore) fullTextSearch(ctx context.Context, namespace, text string, limit int) ([]SearchResult, error) {
	predicate, scoreExpr, _ := s.dialect.FullTextMatch("long_term_memory", 2)
	q := fmt.Sprintf(`SELECT memory_id, source_turn_id, namespace, summary, searchable_content,
		category_primary, importance, classification, promotion_eligible, duplicate_of,
		processed_for_duplicates, retention_type, created_at, expires_at, %s AS score
		FROM long_term_memory WHERE namespace = %s AND (%s)
		ORDER BY score DESC LIMIT %s`, scoreExpr, s.ph(1), predicate, s.ph(3))

	args := []any{namespace, text, limit}
	if s.dialect.Name() == "mysql" {
		// MySQL's MATCH…AGAINST appears twice (predicate + score select);
		// bind the query text for both occurrences.
		q = fmt.Sprintf(`SELECT memory_id, source_turn_id, namespace, summary, searchable_content,
			category_primary, importance, classification, promotion_eligible, duplicate_of,
			processed_for_duplicates, retention_type, created_at, expires_at, %s AS score
			FROM long_term_memory WHERE namespace = ? AND (%s)
			ORDER BY score DESC LIMIT ?`, scoreExpr, predicate)
		args = []any{text, namespace, text, limit}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: full-text search: %w", ErrDatabase, err)
	}
	defer rows.Close()
	return scanSearchResults(rows, StrategyFulltext, true)
}

func (s *sqlStore) keywordLikeSearch(ctx context.Context, namespace, text string, limit int) ([]SearchResult, error) {
	tokens := tokenizeSimple(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	var clauses []string
	args := []any{namespace}
	idx := 2
	for _, t := range tokens {
		clauses = append(clauses, fmt.Sprintf("(searchable_content LIKE %s OR summary LIKE %s)", s.ph(idx), s.ph(idx+1)))
		args = append(args, "%"+t+"%", "%"+t+"%")
		idx += 2
	}
	q := fmt.Sprintf(`SELECT memory_id, source_turn_id, namespace, summary, searchable_content,
		category_primary, importance, classification, promotion_eligible, duplicate_of,
		processed_for_duplicates, retention_type, created_at, expires_at
		FROM long_term_memory WHERE namespace = %s AND (%s)
		ORDER BY created_at DESC LIMIT %s`, s.ph(1), strings.Join(clauses, " OR "), s.ph(idx))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword-like search: %w", ErrDatabase, err)
	}
	defer rows.Close()

	mems, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(mems))
	for _, m := range mems {
		matched := 0
		lc := strings.ToLower(m.SearchableContent + " " + m.Summary)
		for _, t := range tokens {
			if strings.Contains(lc, t) {
				matched++
			}
		}
		score := float64(matched) / float64(len(tokens))
		out = append(out, SearchResult{Memory: m, Strategy: StrategyKeywordLike, Score: score})
	}
	return out, nil
}

func (s *sqlStore) categorySearch(ctx context.Context, namespace string, category MemoryCategory, limit int) ([]SearchResult, error) {
	q := fmt.Sprintf(`SELECT memory_id, source_turn_id, namespace, summary, searchable_content,
		category_primary, importance, classification, promotion_eligible, duplicate_of,
		processed_for_duplicates, retention_type, created_at, expires_at
		FROM long_term_memory WHERE namespace = %s AND category_primary = %s
		ORDER BY created_at DESC LIMIT %s`, s.ph(1), s.ph(2), s.ph(3))
	rows, err := s.db.QueryContext(ctx, q, namespace, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: category search: %w", ErrDatabase, err)
	}
	defer rows.Close()
	return scanSearchResults(rows, StrategyCategoryFilter, false)
}

func (s *sqlStore) entitySearch(ctx context.Context, namespace string, tokens []string, limit int) ([]SearchResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	placeholders := queries.BuildPlaceholders(s.dialect, 2, len(tokens))
	q := fmt.Sprintf(`SELECT DISTINCT m.memory_id, m.source_turn_id, m.namespace, m.summary, m.searchable_content,
		m.category_primary, m.importance, m.classification, m.promotion_eligible, m.duplicate_of,
		m.processed_for_duplicates, m.retention_type, m.created_at, m.expires_at
		FROM long_term_memory m JOIN memory_entities e ON e.memory_id = m.memory_id
		WHERE m.namespace = %s AND e.entity_value IN (%s)
		ORDER BY m.created_at DESC LIMIT %s`, s.ph(1), placeholders, s.ph(2+len(tokens)))
	args := []any{namespace}
	for _, t := range tokens {
		args = append(args, strings.ToLower(t))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: entity search: %w", ErrDatabase, err)
	}
	defer rows.Close()
	return scanSearchResults(rows, StrategyEntityMatch, false)
}

func (s *sqlStore) recentFallback(ctx context.Context, namespace string, limit int) ([]SearchResult, error) {
	q := fmt.Sprintf(`SELECT memory_id, source_turn_id, namespace, summary, searchable_content,
		category_primary, importance, classification, promotion_eligible, duplicate_of,
		processed_for_duplicates, retention_type, created_at, expires_at
		FROM long_term_memory WHERE namespace = %s
		ORDER BY created_at DESC LIMIT %s`, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, q, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent fallback: %w", ErrDatabase, err)
	}
	defer rows.Close()
	return scanSearchResults(rows, StrategyRecentFallback, false)
}

func scanSearchResults(rows *sql.Rows, strategy SearchStrategy, hasScore bool) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var m ProcessedMemory
		var duplicateOf sql.NullString
		var rawScore sql.NullFloat64
		scanArgs := []any{&m.ID, &m.SourceTurnID, &m.Namespace, &m.Summary, &m.SearchableContent,
			&m.PrimaryCategory, &m.Importance, &m.Classification, &m.PromotionEligible, &duplicateOf,
			&m.ProcessedForDuplicates, &m.RetentionType, &m.CreatedAt, &m.ExpiresAt}
		if hasScore {
			scanArgs = append(scanArgs, &rawScore)
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("%w: scanning search result: %w", ErrDatabase, err)
		}
		m.DuplicateOf = duplicateOf.String

		score := 0.7 // fixed baseline for non-ranked strategies (category/entity/recent)
		if hasScore && rawScore.Valid {
			score = normalizeRank(rawScore.Float64)
		}
		out = append(out, SearchResult{Memory: m, Strategy: strategy, Score: score})
	}
	return out, rows.Err()
}

// normalizeRank squashes an unbounded native ranking score (bm25 is
// negative-is-better, ts_rank/MATCH…AGAINST are positive-unbounded) into
// [0,1] via a simple saturating curve — exact calibration is left to the
// dialect in a future revision; what matters for the ordering invariant
// is monotonicity, which this preserves.
func normalizeRank(raw float64) float64 {
	if raw < 0 {
		raw = -raw
	}
	return raw / (raw + 1)
}

func tokenizeSimple(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func normalizeForDedup(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevSpace = false
		case r == ' ' || r == '\t' || r == '\n':
			if !prevSpace {
				b.WriteRune(' ')
			}
			prevSpace = true
		default:
			// punctuation is stripped, not replaced with a space
		}
	}
	return strings.TrimSpace(b.String())
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "constraint")
}

func (s *sqlStore) GetEntitiesByTokens(ctx context.Context, namespace string, tokens []string) ([]Entity, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	placeholders := queries.BuildPlaceholders(s.dialect, 2, len(tokens))
	q := fmt.Sprintf(`SELECT entity_id, memory_id, namespace, entity_type, entity_value, occurrence_count
		FROM memory_entities WHERE namespace = %s AND entity_value IN (%s)`, s.ph(1), placeholders)
	args := []any{namespace}
	for _, t := range tokens {
		args = append(args, strings.ToLower(t))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: getting entities by tokens: %w", ErrDatabase, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.Namespace, &e.Type, &e.Value, &e.OccurrenceCount); err != nil {
			return nil, fmt.Errorf("%w: scanning entity: %w", ErrDatabase, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetMemoryStats(ctx context.Context, namespace string) (MemoryStats, error) {
	stats := MemoryStats{Namespace: namespace, PerCategory: map[MemoryCategory]int{}}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM chat_history WHERE namespace = %s`, s.ph(1)), namespace)
	if err := row.Scan(&stats.ChatCount); err != nil {
		return stats, fmt.Errorf("%w: counting chat history: %w", ErrDatabase, err)
	}

	row = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM short_term_memory WHERE namespace = %s`, s.ph(1)), namespace)
	if err := row.Scan(&stats.ShortTermCount); err != nil {
		return stats, fmt.Errorf("%w: counting short-term memory: %w", ErrDatabase, err)
	}

	row = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM long_term_memory WHERE namespace = %s`, s.ph(1)), namespace)
	if err := row.Scan(&stats.LongTermCount); err != nil {
		return stats, fmt.Errorf("%w: counting long-term memory: %w", ErrDatabase, err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT category_primary, COUNT(*) FROM long_term_memory
		WHERE namespace = %s GROUP BY category_primary`, s.ph(1)), namespace)
	if err != nil {
		return stats, fmt.Errorf("%w: counting categories: %w", ErrDatabase, err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat MemoryCategory
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return stats, fmt.Errorf("%w: scanning category count: %w", ErrDatabase, err)
		}
		stats.PerCategory[cat] = n
	}

	row = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT dropped_extraction_count FROM namespace_stats WHERE namespace = %s`, s.ph(1)), namespace)
	if err := row.Scan(&stats.DroppedExtractionCount); err != nil {
		if err != sql.ErrNoRows {
			return stats, fmt.Errorf("%w: reading dropped extraction count: %w", ErrDatabase, err)
		}
	}

	return stats, nil
}

func (s *sqlStore) IncrementDroppedExtraction(ctx context.Context, namespace string) error {
	upsert := fmt.Sprintf(`%s namespace_stats (namespace, dropped_extraction_count) VALUES (%s, 1) %s`,
		s.dialect.InsertIgnorePrefix(), s.ph(1), s.dialect.InsertIgnoreClause("namespace"))
	if _, err := s.db.ExecContext(ctx, upsert, namespace); err != nil {
		return fmt.Errorf("%w: seeding namespace stats: %w", ErrDatabase, err)
	}
	q := fmt.Sprintf(`UPDATE namespace_stats SET dropped_extraction_count = dropped_extraction_count + 1 WHERE namespace = %s`, s.ph(1))
	if _, err := s.db.ExecContext(ctx, q, namespace); err != nil {
		return fmt.Errorf("%w: incrementing dropped extraction count: %w", ErrDatabase, err)
	}
	return nil
}

func (s *sqlStore) ClearMemory(ctx context.Context, namespace string, what ClearType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning clear transaction: %w", ErrDatabase, err)
	}
	defer tx.Rollback()

	exec := func(table string) error {
		q := fmt.Sprintf(`DELETE FROM %s WHERE namespace = %s`, table, s.ph(1))
		if table == "memory_categories" {
			// memory_categories has no namespace column; its rows are found
			// through category_index, which is cleared after it.
			q = fmt.Sprintf(`DELETE FROM memory_categories WHERE memory_id IN (SELECT memory_id FROM category_index WHERE namespace = %s)`, s.ph(1))
		}
		_, err := tx.ExecContext(ctx, q, namespace)
		return err
	}

	switch what {
	case ClearShort:
		if err := exec("short_term_memory"); err != nil {
			return fmt.Errorf("%w: clearing short-term memory: %w", ErrDatabase, err)
		}
	case ClearLong:
		for _, t := range []string{"memory_entities", "memory_categories", "category_index", "long_term_memory"} {
			if err := exec(t); err != nil {
				return fmt.Errorf("%w: clearing long-term memory (%s): %w", ErrDatabase, t, err)
			}
		}
	case ClearAll:
		for _, t := range []string{"memory_entities", "memory_categories", "category_index",
			"long_term_memory", "short_term_memory", "working_memory", "chat_history"} {
			if err := exec(t); err != nil {
				return fmt.Errorf("%w: clearing all memory (%s): %w", ErrDatabase, t, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing clear: %w", ErrDatabase, err)
	}
	return nil
}

func (s *sqlStore) GetDatabaseInfo(ctx context.Context) (DatabaseInfo, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_history`)
	initialized := row.Scan(&n) == nil
	return DatabaseInfo{Dialect: s.dialect.Name(), SchemaInitialized: initialized}, nil
}

func (s *sqlStore) Close() error { return s.db.Close() }
