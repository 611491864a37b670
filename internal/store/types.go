// Package store provides the dialect-agnostic persistence layer for Memori.
// It is the Go counterpart of the teacher's internal/store package, widened
// from a single SQLite file into a Store interface backed by SQLite, MySQL,
// or Postgres (picked by the database URI scheme).
package store

import (
	"errors"
	"time"
)

// MemoryCategory is the primary classification of a ProcessedMemory.
type MemoryCategory string

const (
	CategoryFact       MemoryCategory = "fact"
	CategoryPreference MemoryCategory = "preference"
	CategorySkill      MemoryCategory = "skill"
	CategoryContext    MemoryCategory = "context"
	CategoryRule       MemoryCategory = "rule"
)

// ValidCategory reports whether c is one of the five recognized categories.
func ValidCategory(c MemoryCategory) bool {
	switch c {
	case CategoryFact, CategoryPreference, CategorySkill, CategoryContext, CategoryRule:
		return true
	default:
		return false
	}
}

// Importance is the enum band an analysis LLM assigns; Score maps it to the
// numeric value spec.md §4.3 defines (low=0.3, medium=0.5, high=0.75, critical=1.0).
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// Score returns the numeric importance in [0,1]. Unrecognized values score 0.5.
func (i Importance) Score() float64 {
	switch i {
	case ImportanceLow:
		return 0.3
	case ImportanceMedium:
		return 0.5
	case ImportanceHigh:
		return 0.75
	case ImportanceCritical:
		return 1.0
	default:
		return 0.5
	}
}

// ImportanceFromScore maps a numeric score back to the nearest band.
func ImportanceFromScore(score float64) Importance {
	switch {
	case score >= 0.9:
		return ImportanceCritical
	case score >= 0.65:
		return ImportanceHigh
	case score >= 0.4:
		return ImportanceMedium
	default:
		return ImportanceLow
	}
}

// Classification is the promotion band a ProcessedMemory falls into.
type Classification string

const (
	ClassificationEssential      Classification = "essential"
	ClassificationConsciousInfo  Classification = "conscious-info"
	ClassificationConversational Classification = "conversational"
)

// EntityType enumerates the entity kinds memory_entities rows may carry.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityTechnology   EntityType = "technology"
	EntityTopic        EntityType = "topic"
	EntitySkill        EntityType = "skill"
	EntityProject      EntityType = "project"
	EntityKeyword      EntityType = "keyword"
	EntityLocation     EntityType = "location"
	EntityOrganization EntityType = "organization"
)

// ValidEntityType reports whether t is one of the eight recognized kinds.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityPerson, EntityTechnology, EntityTopic, EntitySkill, EntityProject,
		EntityKeyword, EntityLocation, EntityOrganization:
		return true
	default:
		return false
	}
}

// RetentionType selects the default expiry policy for a memory row.
type RetentionType string

const (
	RetentionShortTerm RetentionType = "short_term" // defaults to a 7-day expiry
	RetentionLongTerm  RetentionType = "long_term"   // permanent, no expiry
)

// DefaultTTL returns the retention policy's default lifetime, or 0 for permanent.
func (r RetentionType) DefaultTTL() time.Duration {
	if r == RetentionShortTerm {
		return 7 * 24 * time.Hour
	}
	return 0
}

// ChatTurn is the immutable record of one request/response pair.
type ChatTurn struct {
	ID         string
	SessionID  string
	Namespace  string
	UserInput  string
	AIOutput   string
	Model      string
	Timestamp  time.Time
	TokenCount int
	Metadata   map[string]any
}

// Entity is a normalized entity mention extracted from a ProcessedMemory.
type Entity struct {
	ID              string
	MemoryID        string
	Namespace       string
	Type            EntityType
	Value           string // lowercased
	OccurrenceCount int
}

// CategoryTag is a secondary category attached to a memory (kept for
// forward-compatibility per spec.md §9; not consulted by retrieval today).
type CategoryTag struct {
	MemoryID   string
	Category   MemoryCategory
	Confidence float64
}

// ProcessedMemory is the structured interpretation of a ChatTurn.
type ProcessedMemory struct {
	ID                 string
	SourceTurnID       string
	Namespace          string
	Summary            string // <=500 chars
	SearchableContent  string // <=5000 chars
	PrimaryCategory    MemoryCategory
	Importance         Importance
	Classification     Classification
	PromotionEligible  bool
	DuplicateOf        string // empty when not a duplicate
	Entities           []Entity
	SecondaryCategories []CategoryTag
	RetentionType      RetentionType
	CreatedAt          time.Time
	ExpiresAt          *time.Time

	// IsShortTerm reports which physical table the row lives in
	// (short_term_memory vs long_term_memory). Conversational memories
	// with a short retention policy land in short_term_memory; everything
	// else defaults to long_term_memory, per spec.md §4.3 step 5.
	IsShortTerm bool

	// ProcessedForDuplicates marks a long-term row that has already been
	// scanned as a dedup candidate against newer turns.
	ProcessedForDuplicates bool
}

// IsDuplicate reports whether this memory has been marked as a duplicate.
func (m *ProcessedMemory) IsDuplicate() bool { return m.DuplicateOf != "" }

// WorkingMemoryItem is a memory copied into the always-injected working set.
type WorkingMemoryItem struct {
	ID                string
	SourceMemoryID    string
	Namespace         string
	Summary           string
	SearchableContent string
	Importance        Importance
	IsPermanent       bool
	CreatedAt         time.Time
	ExpiresAt         *time.Time
	AccessCount       int
}

// PrimaryCategory for a WorkingMemoryItem is always this fixed tag, per
// spec.md §3.1.
const WorkingMemoryCategory = "conscious_context"

// SearchStrategy names which retrieval strategy produced a SearchResult.
type SearchStrategy string

const (
	StrategyFulltext       SearchStrategy = "fulltext"
	StrategyKeywordLike    SearchStrategy = "keyword-like"
	StrategyCategoryFilter SearchStrategy = "category"
	StrategyEntityMatch    SearchStrategy = "entity"
	StrategyRecentFallback SearchStrategy = "recent-fallback"
)

// SearchResult wraps a stored memory with its retrieval score and strategy.
type SearchResult struct {
	Memory   ProcessedMemory
	Strategy SearchStrategy
	Score    float64 // normalized to [0,1]
}

// SearchQuery describes a single call to Store.SearchMemories.
type SearchQuery struct {
	Text           string
	Namespace      string
	CategoryFilter MemoryCategory // empty = no category hint
	EntityTokens   []string       // tokens to look up in memory_entities
	Limit          int
}

// MemoryStats is the per-namespace snapshot spec.md §6.1 Orchestrator.stats() returns.
type MemoryStats struct {
	Namespace               string
	ChatCount               int
	ShortTermCount          int
	LongTermCount           int
	PerCategory             map[MemoryCategory]int
	DroppedExtractionCount  int // backpressure counter, spec.md §5
}

// ClearType selects what Store.ClearMemory removes.
type ClearType string

const (
	ClearShort ClearType = "short"
	ClearLong  ClearType = "long"
	ClearAll   ClearType = "all"
)

// DatabaseInfo is a small introspection snapshot, spec.md §4.1 get-database-info.
type DatabaseInfo struct {
	Dialect           string
	SchemaInitialized bool
}

// ErrDatabase wraps connection, constraint, and query failures (spec.md §7).
// It is never returned for a dedup constraint hit — those are swallowed and
// reported as success, per spec.md §4.1 Failure semantics.
var ErrDatabase = errors.New("store: database error")

// ErrNotFound indicates a lookup found no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrUnsupportedDialect is returned by New for an unrecognized URI scheme.
var ErrUnsupportedDialect = errors.New("store: unsupported database dialect")
