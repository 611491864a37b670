package memori

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memori-run/memori/internal/store"
	"github.com/memori-run/memori/pkg/injector"
	"github.com/memori-run/memori/pkg/pipeline"
)

func openTest(t *testing.T, mutate func(*Config)) *Orchestrator {
	t.Helper()
	cfg := Config{
		DatabaseURI:   "sqlite://:memory:",
		Namespace:     "ns",
		ConsciousMode: true,
		AutoMode:      true,
		SchemaInit:    true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

func TestOpenRejectsMissingConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{Namespace: "ns"})
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = Open(context.Background(), Config{DatabaseURI: "sqlite://:memory:"})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestRecordAndSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	o := openTest(t, nil)

	turnID, err := o.Record(ctx, "I love hiking", "Great, noted!", "test-model", nil)
	require.NoError(t, err)
	require.NotEmpty(t, turnID)

	results, err := o.Search(ctx, "hiking", 5)
	require.NoError(t, err)
	_ = results // may be empty: no analysis provider configured, extraction is a no-op

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, "ns", stats.Namespace)
	require.Equal(t, 1, stats.ChatCount)
}

func TestRecordRejectsEmptyUserInput(t *testing.T) {
	o := openTest(t, nil)
	_, err := o.Record(context.Background(), "", "reply", "", nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestClearRejectsUnknownType(t *testing.T) {
	o := openTest(t, nil)
	err := o.Clear(context.Background(), store.ClearType("bogus"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestClearAllSucceeds(t *testing.T) {
	ctx := context.Background()
	o := openTest(t, nil)
	_, err := o.Record(ctx, "hello", "hi", "", nil)
	require.NoError(t, err)

	require.NoError(t, o.Clear(ctx, store.ClearAll))
}

func TestStatsIncludesSessionOccupancy(t *testing.T) {
	ctx := context.Background()
	o := openTest(t, nil)
	_, err := o.Record(ctx, "hi", "hello", "", nil)
	require.NoError(t, err)

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sessions.ActiveSessions)
}

func TestClearSessionAndClearAllSessions(t *testing.T) {
	ctx := context.Background()
	o := openTest(t, nil)
	turnID, err := o.Record(ctx, "hi", "hello", "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, turnID)

	o.ClearAllSessions()
	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Sessions.ActiveSessions)
}

func TestHookStatusReportsRegisteredHooks(t *testing.T) {
	o := openTest(t, nil)
	o.Enable()
	status := o.HookStatus()
	require.NotNil(t, status)
}

func TestSetUserContextUpdatesPipelineHints(t *testing.T) {
	o := openTest(t, nil)
	require.NotPanics(t, func() {
		o.SetUserContext(pipeline.UserContext{CurrentProjects: []string{"memori"}})
	})
}

func TestEnableDisableIsIdempotent(t *testing.T) {
	o := openTest(t, nil)

	results := o.Enable()
	require.NotNil(t, results)

	// Second call is a no-op: returns an empty map rather than
	// re-enabling or starting a second agent goroutine.
	again := o.Enable()
	require.Empty(t, again)

	disabled := o.Disable()
	require.NotNil(t, disabled)

	// Disabling twice is also a no-op.
	require.Empty(t, o.Disable())
}

func TestSearchFallsBackToStoreWithoutAutoMode(t *testing.T) {
	ctx := context.Background()
	o := openTest(t, func(c *Config) { c.AutoMode = false })
	require.Nil(t, o.engine)

	_, err := o.Search(ctx, "anything", 5)
	require.NoError(t, err)
}

func TestAddToMessagesPassesThroughWithoutSources(t *testing.T) {
	o := openTest(t, func(c *Config) { c.ConsciousMode = false; c.AutoMode = false })
	in := []injector.Message{{Role: "user", Content: "hi"}}
	out := o.AddToMessages(context.Background(), "sess", in)
	require.Len(t, out, 1)
	require.Equal(t, "hi", out[0].Content)
}

func TestTriggerConsciousAnalysisWithoutAgentDoesNotPanic(t *testing.T) {
	o := openTest(t, func(c *Config) { c.ConsciousMode = false })
	require.NotPanics(t, func() { o.TriggerConsciousAnalysis() })
}

func TestRecordReusesSessionAcrossCalls(t *testing.T) {
	ctx := context.Background()
	o := openTest(t, nil)

	first := o.CurrentSessionID()
	require.NotEmpty(t, first)

	_, err := o.Record(ctx, "turn one", "ack", "", nil)
	require.NoError(t, err)
	_, err = o.Record(ctx, "turn two", "ack", "", nil)
	require.NoError(t, err)

	// Both turns land in the same session, so occupancy is one active
	// session, not two.
	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sessions.ActiveSessions)
	require.Equal(t, first, o.CurrentSessionID())
}

func TestStartNewConversationRotatesSession(t *testing.T) {
	ctx := context.Background()
	o := openTest(t, nil)

	first := o.CurrentSessionID()
	_, err := o.Record(ctx, "hello", "hi", "", nil)
	require.NoError(t, err)

	second := o.StartNewConversation()
	require.NotEqual(t, first, second)
	require.Equal(t, second, o.CurrentSessionID())

	_, err = o.Record(ctx, "new topic", "ok", "", nil)
	require.NoError(t, err)

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Sessions.ActiveSessions)
}

func TestDatabaseErrorIsWrapped(t *testing.T) {
	o := openTest(t, nil)
	o.Close() // underlying connection now closed; next call must fail

	_, err := o.Stats(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDatabase)
}
