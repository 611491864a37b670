package store

import (
	"context"
	"fmt"
	"strings"
)

// Store is the dialect-agnostic persistence surface spec.md §4.1 names.
// The implementation is sqlStore (sqlcommon.go); the per-dialect openers
// live in sqlitestore.go, mysqlstore.go, and pgstore.go in this package,
// and New picks one based on the URI scheme.
type Store interface {
	// Init creates the schema if it does not already exist.
	Init(ctx context.Context) error

	StoreChatTurn(ctx context.Context, turn ChatTurn) error
	GetChatHistory(ctx context.Context, namespace, sessionID string, limit int) ([]ChatTurn, error)

	// StoreProcessedMemory persists a memory row. Returns false (no error)
	// when a uniqueness constraint on normalized searchable content
	// silently absorbed a duplicate insert — see spec.md §4.1 Failure
	// semantics.
	StoreProcessedMemory(ctx context.Context, mem ProcessedMemory) (bool, error)
	GetRecentUndedupedMemories(ctx context.Context, namespace string, limit int) ([]ProcessedMemory, error)
	MarkProcessedForDuplicates(ctx context.Context, memoryID string) error
	GetMemoriesForPromotion(ctx context.Context, namespace string) ([]ProcessedMemory, error)

	// StoreWorkingMemoryItem copies a memory into the always-injected
	// working set. Returns false when the item already exists there.
	StoreWorkingMemoryItem(ctx context.Context, item WorkingMemoryItem) (bool, error)
	GetWorkingMemoryItems(ctx context.Context, namespace string) ([]WorkingMemoryItem, error)
	TouchWorkingMemoryItem(ctx context.Context, id string) error

	SearchMemories(ctx context.Context, q SearchQuery) ([]SearchResult, error)
	GetEntitiesByTokens(ctx context.Context, namespace string, tokens []string) ([]Entity, error)

	GetMemoryStats(ctx context.Context, namespace string) (MemoryStats, error)
	IncrementDroppedExtraction(ctx context.Context, namespace string) error
	ClearMemory(ctx context.Context, namespace string, what ClearType) error

	GetDatabaseInfo(ctx context.Context) (DatabaseInfo, error)
	Close() error
}

// Opener constructs a Store from a parsed database URI. Each dialect
// file registers its constructor in the dialects map via init().
type Opener func(ctx context.Context, uri string) (Store, error)

var dialects = map[string]Opener{}

// Register is called from each dialect file's init() to advertise
// the URI schemes it handles (e.g. "sqlite", "mysql", "postgres").
func Register(scheme string, open Opener) {
	dialects[scheme] = open
}

// New dispatches uri to the matching dialect's Opener based on its
// leading scheme (e.g. "sqlite://", "mysql://", "postgresql://"). Scheme
// detection is a plain prefix check rather than net/url.Parse: sqlite
// DSNs like "sqlite::memory:" or bare filesystem paths containing colons
// do not round-trip cleanly through URL host/port parsing, and each
// dialect's own Opener is responsible for interpreting the remainder of
// the URI anyway.
func New(ctx context.Context, uri string) (Store, error) {
	scheme, rawScheme := detectScheme(uri)

	open, ok := dialects[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, rawScheme)
	}
	s, err := open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", scheme, err)
	}
	return s, nil
}

func detectScheme(uri string) (scheme, raw string) {
	prefix, _, found := strings.Cut(uri, ":")
	if !found {
		return "sqlite", "" // bare filesystem path
	}
	raw = strings.ToLower(prefix)
	switch raw {
	case "sqlite", "sqlite3", "file", "":
		return "sqlite", raw
	case "mysql":
		return "mysql", raw
	case "postgres", "postgresql":
		return "postgres", raw
	default:
		return raw, raw
	}
}
