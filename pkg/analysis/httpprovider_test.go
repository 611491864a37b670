package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderChatSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello back"}}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", "test-model")
	out, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, 100, 0.2, "")
	require.NoError(t, err)
	assert.Equal(t, "hello back", out)
}

func TestHTTPProviderRetriesOn5xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", "test-model")
	p.MaxRetries = 2
	out, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, 100, 0.2, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestHTTPProviderInvalidOutputNoRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", "test-model")
	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, 100, 0.2, "")
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "invalid-output errors must not be retried")
}

func TestValidateProcessedMemorySchema(t *testing.T) {
	valid := `{"summary":"likes go","searchable_content":"user likes go","category":"preference","importance":"medium","classification":"conversational","promotion_eligible":false}`
	assert.NoError(t, Validate(ProcessedMemorySchema, valid))

	invalid := `{"summary":"likes go"}`
	assert.Error(t, Validate(ProcessedMemorySchema, invalid))
}
