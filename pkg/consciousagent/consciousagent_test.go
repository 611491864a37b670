package consciousagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memori-run/memori/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.New(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPromoteCopiesEligibleMemory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	turn := store.ChatTurn{ID: "t1", SessionID: "s", Namespace: "ns", UserInput: "hi", Timestamp: time.Now()}
	require.NoError(t, st.StoreChatTurn(ctx, turn))
	inserted, err := st.StoreProcessedMemory(ctx, store.ProcessedMemory{
		ID: "m1", SourceTurnID: "t1", Namespace: "ns",
		Summary: "user is named Carol", SearchableContent: "user is named Carol",
		PrimaryCategory: store.CategoryFact, Importance: store.ImportanceHigh,
		Classification: store.ClassificationEssential, PromotionEligible: true,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	agent := New(Config{Store: st, Namespace: "ns"})
	require.NoError(t, agent.promote(ctx))

	items, err := st.GetWorkingMemoryItems(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "user is named Carol", items[0].SearchableContent)
}

func TestStartRunsInitialPassThenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := newTestStore(t)
	agent := New(Config{Store: st, Namespace: "ns"})

	done := make(chan struct{})
	go func() {
		agent.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return agent.IsRunning() }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
	require.False(t, agent.IsRunning())
}
