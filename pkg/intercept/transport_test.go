package intercept

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestTransportHookCapturesLLMEndpointExchange(t *testing.T) {
	rec := &fakeRecorder{}

	fake := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body := `{"choices":[{"message":{"content":"hi there"}}]}`
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
			Request:    req,
		}, nil
	})

	reg := New(rec, nil)
	hook := NewTransportHook(reg, fake)
	reg.hooks = append(reg.hooks, &hookState{hook: hook})
	reg.Enable("transport")

	reqBody := `{"model":"gpt-4","messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest("POST", "https://api.openai.com/v1/chat/completions", bytes.NewBufferString(reqBody))
	req = req.WithContext(context.Background())

	resp, err := hook.RoundTrip(req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 1, rec.calls)
}

func TestTransportHookPassesThroughNonLLMHosts(t *testing.T) {
	rec := &fakeRecorder{}
	reg := New(rec, nil)

	called := false
	fake := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBufferString("{}"))}, nil
	})
	hook := NewTransportHook(reg, fake)
	hook.Enable()

	req := httptest.NewRequest("GET", "https://example.com/other", nil)
	_, err := hook.RoundTrip(req)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, 0, rec.calls)
}
