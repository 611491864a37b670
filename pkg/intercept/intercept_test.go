package intercept

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHook struct {
	name       string
	enableOK   bool
	enableCnt  int
	disableCnt int
}

func (h *fakeHook) Name() string  { return h.name }
func (h *fakeHook) Enable() bool  { h.enableCnt++; return h.enableOK }
func (h *fakeHook) Disable() bool { h.disableCnt++; return true }

type fakeRecorder struct {
	calls int
	err   error
}

func (r *fakeRecorder) Record(ctx context.Context, turn Turn) error {
	r.calls++
	return r.err
}

func TestEnableFallsBackAcrossHooks(t *testing.T) {
	native := &fakeHook{name: "native", enableOK: false}
	transport := &fakeHook{name: "transport", enableOK: true}
	reg := New(&fakeRecorder{}, nil, native, transport)

	results := reg.Enable()
	require.False(t, results["native"])
	require.True(t, results["transport"])

	status := reg.Health()
	require.Len(t, status, 2)
}

func TestCaptureIsFailOpenOnRecordError(t *testing.T) {
	hook := &fakeHook{name: "http", enableOK: true}
	rec := &fakeRecorder{err: errors.New("db down")}
	reg := New(rec, nil, hook)
	reg.Enable()

	require.NotPanics(t, func() {
		reg.Capture(context.Background(), "http", Turn{SessionID: "s", UserInput: "hi", AIOutput: "hello"})
	})
	require.Equal(t, 1, rec.calls)

	status := reg.Health()
	require.Equal(t, 1, status[0].FailureCount)
}

func TestCaptureDedupsSameTurnWithinWindow(t *testing.T) {
	hook := &fakeHook{name: "http", enableOK: true}
	rec := &fakeRecorder{}
	reg := New(rec, nil, hook)
	reg.Enable()

	turn := Turn{SessionID: "s", UserInput: "hi", AIOutput: "hello"}
	reg.Capture(context.Background(), "http", turn)
	reg.Capture(context.Background(), "http", turn)

	require.Equal(t, 1, rec.calls)
}

func TestDisableOnlyTouchesEnabledHooks(t *testing.T) {
	a := &fakeHook{name: "a", enableOK: true}
	b := &fakeHook{name: "b", enableOK: false}
	reg := New(&fakeRecorder{}, nil, a, b)
	reg.Enable()

	results := reg.Disable()
	require.Contains(t, results, "a")
	require.NotContains(t, results, "b")
}
