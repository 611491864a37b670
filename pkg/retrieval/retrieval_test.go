package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memori-run/memori/internal/store"
)

func TestCanonicalizeKeepsJoiners(t *testing.T) {
	require.Equal(t, "jean-luc picard", canonicalize("Jean-Luc Picard!"))
	require.Equal(t, "o'brien", canonicalize("O’Brien"))
}

func TestTokenizeDropsStopwordsAndDupes(t *testing.T) {
	got := tokenize("The the Go language and the Go runtime")
	require.ElementsMatch(t, []string{"go", "language", "runtime"}, got)
}

func TestEntityIndexMatchesMultiwordEntity(t *testing.T) {
	idx, err := buildEntityIndex([]store.Entity{
		{Type: store.EntityLocation, Value: "San Francisco"},
		{Type: store.EntityPerson, Value: "Bob"},
	})
	require.NoError(t, err)
	require.NotNil(t, idx)

	matches := idx.matchTokens("I'm moving to San Francisco soon, said Bob")
	require.ElementsMatch(t, []string{"san francisco", "bob"}, matches)
}

func TestBuildEntityIndexEmpty(t *testing.T) {
	idx, err := buildEntityIndex(nil)
	require.NoError(t, err)
	require.Nil(t, idx)
	require.Empty(t, idx.matchTokens("anything"))
}

func TestHeuristicPlanFallsBackWithoutPlanner(t *testing.T) {
	ctx := context.Background()
	st, err := store.New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer st.Close()

	eng := New(Config{Store: st})
	results, err := eng.Search(ctx, "ns", "golang concurrency", 10)
	require.NoError(t, err)
	require.Empty(t, results) // nothing stored yet, but no error either
}

func TestEngineSearchWithoutPlannerSucceeds(t *testing.T) {
	ctx := context.Background()
	st, err := store.New(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer st.Close()

	turn := store.ChatTurn{ID: "t1", SessionID: "s1", Namespace: "ns", UserInput: "hi", Timestamp: time.Now()}
	require.NoError(t, st.StoreChatTurn(ctx, turn))

	eng := New(Config{Store: st, Planner: nil})
	_, err = eng.Search(ctx, "ns", "hi there", 5)
	require.NoError(t, err)
}
