package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/analysis"
)

// stubProvider returns a fixed extraction response regardless of input.
type stubProvider struct {
	response string
	calls    int
}

func (s *stubProvider) Chat(ctx context.Context, messages []analysis.Message, maxTokens int, temperature float64, schema string) (string, error) {
	s.calls++
	return s.response, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.New(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessStoresExtractedMemory(t *testing.T) {
	st := newTestStore(t)
	provider := &stubProvider{response: `{"summary":"likes go","searchable_content":"the user likes golang",` +
		`"category":"preference","importance":"medium","classification":"conversational","promotion_eligible":false}`}

	p, err := New(Config{Store: st, Provider: provider})
	require.NoError(t, err)
	defer p.Close()

	turn := store.ChatTurn{
		ID: "turn-1", SessionID: "sess-1", Namespace: "ns",
		UserInput: "I really like golang", AIOutput: "Great choice!",
		Timestamp: time.Now(),
	}
	require.NoError(t, st.StoreChatTurn(context.Background(), turn))
	require.NoError(t, p.Process(context.Background(), turn))

	stats, err := st.GetMemoryStats(context.Background(), "ns")
	require.NoError(t, err)
	require.Equal(t, 1, stats.ShortTermCount+stats.LongTermCount)
}

func TestProcessDeduplicatesAgainstRecentMemory(t *testing.T) {
	st := newTestStore(t)
	provider := &stubProvider{response: `{"summary":"user name is Bob","searchable_content":"User name is Bob",` +
		`"category":"fact","importance":"high","classification":"essential","promotion_eligible":true}`}

	p, err := New(Config{Store: st, Provider: provider, ConsciousMode: true})
	require.NoError(t, err)
	defer p.Close()

	turnA := store.ChatTurn{ID: "a", SessionID: "s", Namespace: "ns", UserInput: "my name is Bob", Timestamp: time.Now()}
	turnB := store.ChatTurn{ID: "b", SessionID: "s", Namespace: "ns", UserInput: "my name is bob", Timestamp: time.Now()}

	require.NoError(t, st.StoreChatTurn(context.Background(), turnA))
	require.NoError(t, p.Process(context.Background(), turnA))

	provider.response = `{"summary":"user name is bob","searchable_content":"user name is bob",` +
		`"category":"fact","importance":"high","classification":"essential","promotion_eligible":true}`
	require.NoError(t, st.StoreChatTurn(context.Background(), turnB))
	require.NoError(t, p.Process(context.Background(), turnB))

	stats, err := st.GetMemoryStats(context.Background(), "ns")
	require.NoError(t, err)
	require.Equal(t, 1, stats.LongTermCount, "second memory should be absorbed as a duplicate")
}
