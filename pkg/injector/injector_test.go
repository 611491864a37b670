package injector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/retrieval"
	"github.com/memori-run/memori/pkg/session"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.New(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInjectAddsConsciousContext(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.StoreWorkingMemoryItem(ctx, store.WorkingMemoryItem{
		ID: "w1", Namespace: "ns", Summary: "user's name is Alice",
		SearchableContent: "user's name is Alice", Importance: store.ImportanceHigh,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	in := New(Config{Store: st})
	out := in.Inject(ctx, "ns", "sess-1", []Message{{Role: "user", Content: "what is my name?"}})

	require.Len(t, out, 2)
	require.Equal(t, "system", out[0].Role)
	require.Contains(t, out[0].Content, "AUTHORIZED USER CONTEXT DATA")
	require.Contains(t, out[0].Content, "Alice")
}

func TestInjectReturnsUnmodifiedWithoutSources(t *testing.T) {
	ctx := context.Background()
	in := New(Config{})
	messages := []Message{{Role: "user", Content: "hello"}}
	out := in.Inject(ctx, "ns", "sess-2", messages)
	require.Equal(t, messages, out)
}

func TestInjectMergesIntoExistingSystemMessage(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.StoreWorkingMemoryItem(ctx, store.WorkingMemoryItem{
		ID: "w2", Namespace: "ns", Summary: "likes tea", SearchableContent: "likes tea",
		Importance: store.ImportanceMedium, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	in := New(Config{Store: st})
	messages := []Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "hi"},
	}
	out := in.Inject(ctx, "ns", "sess-3", messages)

	require.Len(t, out, 2)
	require.Contains(t, out[0].Content, "You are a helpful assistant.")
	require.Contains(t, out[0].Content, "likes tea")
}

func TestInjectAddsAutoContextFromEngine(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	turn := store.ChatTurn{ID: "t1", SessionID: "s", Namespace: "ns", UserInput: "hi", Timestamp: time.Now()}
	require.NoError(t, st.StoreChatTurn(ctx, turn))
	inserted, err := st.StoreProcessedMemory(ctx, store.ProcessedMemory{
		ID: "m1", SourceTurnID: "t1", Namespace: "ns",
		Summary: "prefers dark mode", SearchableContent: "prefers dark mode",
		PrimaryCategory: store.CategoryPreference, Importance: store.ImportanceMedium,
		Classification: store.ClassificationEssential, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	eng := retrieval.New(retrieval.Config{Store: st})
	in := New(Config{Store: st, Engine: eng})

	out := in.Inject(ctx, "ns", "sess-4", []Message{{Role: "user", Content: "dark mode preference"}})
	require.Len(t, out, 2)
	require.Contains(t, out[0].Content, "Relevant Memory Context")
}

func TestInjectSkipsConsciousContextOnSecondCallSameSession(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.StoreWorkingMemoryItem(ctx, store.WorkingMemoryItem{
		ID: "w3", Namespace: "ns", Summary: "user's name is Bob",
		SearchableContent: "user's name is Bob", Importance: store.ImportanceHigh,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	tracker := session.New(session.DefaultConfig(), nil)
	in := New(Config{Store: st, Sessions: tracker})

	first := in.Inject(ctx, "ns", "sess-6", []Message{{Role: "user", Content: "what is my name?"}})
	require.Contains(t, first[0].Content, "AUTHORIZED USER CONTEXT DATA")

	second := in.Inject(ctx, "ns", "sess-6", []Message{{Role: "user", Content: "what is my name again?"}})
	for _, m := range second {
		require.NotContains(t, m.Content, "AUTHORIZED USER CONTEXT DATA")
	}
}

func TestInjectOrdersConsciousItemsByImportanceDesc(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now()
	require.NoError(t, storeWorkingItem(ctx, st, "low", "likes rain", store.ImportanceLow, now))
	require.NoError(t, storeWorkingItem(ctx, st, "high", "name is Carol", store.ImportanceHigh, now.Add(time.Second)))
	require.NoError(t, storeWorkingItem(ctx, st, "medium", "lives in Maine", store.ImportanceMedium, now.Add(2*time.Second)))

	in := New(Config{Store: st})
	out := in.Inject(ctx, "ns", "sess-7", []Message{{Role: "user", Content: "tell me about myself"}})

	content := out[0].Content
	iHigh := indexOf(content, "Carol")
	iMedium := indexOf(content, "Maine")
	iLow := indexOf(content, "rain")
	require.True(t, iHigh >= 0 && iMedium >= 0 && iLow >= 0)
	require.Less(t, iHigh, iMedium)
	require.Less(t, iMedium, iLow)
}

func TestInjectCombinedModeSkipsConsciousBlock(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, storeWorkingItem(ctx, st, "w4", "user's name is Dana", store.ImportanceHigh, time.Now()))

	turn := store.ChatTurn{ID: "t2", SessionID: "s", Namespace: "ns", UserInput: "hi", Timestamp: time.Now()}
	require.NoError(t, st.StoreChatTurn(ctx, turn))
	_, err := st.StoreProcessedMemory(ctx, store.ProcessedMemory{
		ID: "m2", SourceTurnID: "t2", Namespace: "ns",
		Summary: "prefers tea", SearchableContent: "prefers tea",
		PrimaryCategory: store.CategoryPreference, Importance: store.ImportanceMedium,
		Classification: store.ClassificationEssential, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	eng := retrieval.New(retrieval.Config{Store: st})
	in := New(Config{Store: st, Engine: eng})
	require.Equal(t, ModeCombined, in.mode)

	out := in.Inject(ctx, "ns", "sess-8", []Message{{Role: "user", Content: "tea preference"}})
	require.NotContains(t, out[0].Content, "AUTHORIZED USER CONTEXT DATA")
	require.Contains(t, out[0].Content, "Relevant Memory Context")
}

func storeWorkingItem(ctx context.Context, st store.Store, id, content string, importance store.Importance, createdAt time.Time) error {
	_, err := st.StoreWorkingMemoryItem(ctx, store.WorkingMemoryItem{
		ID: id, Namespace: "ns", Summary: content, SearchableContent: content,
		Importance: importance, CreatedAt: createdAt,
	})
	return err
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestInjectHistoryIncludesPriorTurns(t *testing.T) {
	ctx := context.Background()
	tracker := session.New(session.DefaultConfig(), nil)
	tracker.AddUserMessage("sess-5", "first question")
	tracker.AddAssistantMessage("sess-5", "first answer")
	tracker.AddUserMessage("sess-5", "second question")

	in := New(Config{Sessions: tracker})
	out := in.Inject(ctx, "ns", "sess-5", []Message{{Role: "user", Content: "second question"}})

	require.Len(t, out, 2)
	require.Contains(t, out[0].Content, "Conversation History")
	require.Contains(t, out[0].Content, "first question")
}
