package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/intercept"
	"github.com/memori-run/memori/pkg/session"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.New(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordStoresTurnAndHistory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := session.New(session.DefaultConfig(), nil)

	r := NewRecorder(st, nil, sessions, "ns")
	err := r.Record(ctx, intercept.Turn{SessionID: "s1", UserInput: "hi", AIOutput: "hello"})
	require.NoError(t, err)

	history, err := r.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "hi", history[0].UserInput)

	require.Len(t, sessions.History("s1", 10), 2)
}

func TestRecordGeneratesSessionIDWhenMissing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := NewRecorder(st, nil, nil, "ns")

	err := r.Record(ctx, intercept.Turn{UserInput: "hi", AIOutput: "hello"})
	require.NoError(t, err)
}
