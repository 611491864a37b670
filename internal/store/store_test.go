package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/memori-run/memori/internal/store/queries"
)

func newTestStore(t *testing.T) *sqlStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := newSQLStore(db, queries.SQLite)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestStoreChatTurnAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turn := ChatTurn{
		ID: "turn-1", SessionID: "sess-1", Namespace: "ns",
		UserInput: "hello", AIOutput: "hi there", Model: "test-model",
		Timestamp: time.Now(), TokenCount: 3,
		Metadata: map[string]any{"k": "v"},
	}
	if err := s.StoreChatTurn(ctx, turn); err != nil {
		t.Fatalf("StoreChatTurn: %v", err)
	}

	hist, err := s.GetChatHistory(ctx, "ns", "sess-1", 10)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(hist))
	}
	if hist[0].UserInput != "hello" {
		t.Errorf("UserInput = %q, want %q", hist[0].UserInput, "hello")
	}
	if hist[0].Metadata["k"] != "v" {
		t.Errorf("Metadata did not round-trip: %#v", hist[0].Metadata)
	}
}

func TestStoreProcessedMemoryDedupByConstraint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem := ProcessedMemory{
		ID: "mem-1", Namespace: "ns", Summary: "user name is Bob",
		SearchableContent: "User name is Bob", PrimaryCategory: CategoryFact,
		Importance: ImportanceMedium, Classification: ClassificationConversational,
		RetentionType: RetentionLongTerm, CreatedAt: time.Now(),
	}
	inserted, err := s.StoreProcessedMemory(ctx, mem)
	if err != nil {
		t.Fatalf("StoreProcessedMemory (first): %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report inserted=true")
	}

	dup := mem
	dup.ID = "mem-2"
	dup.SearchableContent = "user name is bob" // same after normalization
	inserted, err = s.StoreProcessedMemory(ctx, dup)
	if err != nil {
		t.Fatalf("StoreProcessedMemory (dup): %v", err)
	}
	if inserted {
		t.Fatalf("expected dedup-constraint insert to report inserted=false")
	}

	stats, err := s.GetMemoryStats(ctx, "ns")
	if err != nil {
		t.Fatalf("GetMemoryStats: %v", err)
	}
	if stats.LongTermCount != 1 {
		t.Errorf("LongTermCount = %d, want 1", stats.LongTermCount)
	}
}

func TestSearchMemoriesRecentFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mem := ProcessedMemory{
			ID: "mem-" + string(rune('a'+i)), Namespace: "ns",
			Summary: "note", SearchableContent: "completely unrelated content " + string(rune('a'+i)),
			PrimaryCategory: CategoryContext, Importance: ImportanceLow,
			Classification: ClassificationConversational, RetentionType: RetentionLongTerm,
			CreatedAt: time.Now(),
		}
		if _, err := s.StoreProcessedMemory(ctx, mem); err != nil {
			t.Fatalf("StoreProcessedMemory: %v", err)
		}
	}

	results, err := s.SearchMemories(ctx, SearchQuery{Namespace: "ns", Limit: 10})
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 recent-fallback results, got %d", len(results))
	}
	for _, r := range results {
		if r.Strategy != StrategyRecentFallback {
			t.Errorf("strategy = %q, want %q", r.Strategy, StrategyRecentFallback)
		}
	}
}

func TestClearMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mem := ProcessedMemory{
		ID: "mem-x", Namespace: "ns", Summary: "x", SearchableContent: "x content",
		PrimaryCategory: CategoryFact, Importance: ImportanceLow,
		Classification: ClassificationConversational, RetentionType: RetentionLongTerm,
		CreatedAt: time.Now(),
	}
	if _, err := s.StoreProcessedMemory(ctx, mem); err != nil {
		t.Fatalf("StoreProcessedMemory: %v", err)
	}
	if err := s.ClearMemory(ctx, "ns", ClearLong); err != nil {
		t.Fatalf("ClearMemory: %v", err)
	}
	stats, err := s.GetMemoryStats(ctx, "ns")
	if err != nil {
		t.Fatalf("GetMemoryStats: %v", err)
	}
	if stats.LongTermCount != 0 {
		t.Errorf("LongTermCount after clear = %d, want 0", stats.LongTermCount)
	}
}
