package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// HTTPProvider implements Provider against any OpenAI-compatible chat
// completions endpoint over net/http. This is the one stdlib-grounded
// piece of the domain stack: it generalizes the teacher's pkg/batch
// jsFetchWithAuth pattern (build a JSON body, POST it, parse the
// response) from syscall/js browser fetch to real sockets — no
// third-party HTTP client in the pack fits better than net/http for a
// thin, generic JSON-over-HTTP client.
type HTTPProvider struct {
	Endpoint   string // e.g. "https://api.openai.com/v1/chat/completions"
	APIKey     string
	Model      string
	HTTPClient *http.Client

	// MaxRetries bounds the retry-go attempts for rate-limited failures
	// (exponential backoff up to 60s). A transient failure is retried at
	// most once within that bound (spec.md §7: "transient (retry one)").
	MaxRetries uint
}

// NewHTTPProvider builds an HTTPProvider with sane defaults.
func NewHTTPProvider(endpoint, apiKey, model string) *HTTPProvider {
	return &HTTPProvider{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 2,
	}
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat *responseFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type   string `json:"type"`
	Schema json.RawMessage `json:"json_schema,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat implements Provider. responseSchema, if non-empty, is a JSON
// Schema document requesting structured output; providers that don't
// support response_format simply ignore a field they don't recognize,
// and the Memory Pipeline validates the returned text against the same
// schema regardless (see schema.go).
func (p *HTTPProvider) Chat(ctx context.Context, messages []Message, maxTokens int, temperature float64, responseSchema string) (string, error) {
	if p.Endpoint == "" {
		return "", ErrNotConfigured
	}

	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	req := chatRequest{Model: p.Model, Messages: msgs, MaxTokens: maxTokens, Temperature: temperature}
	if responseSchema != "" {
		req.ResponseFormat = &responseFormat{Type: "json_schema", Schema: json.RawMessage(responseSchema)}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("analysis: marshaling request: %w", err)
	}

	var out string
	transientRetries := 0
	err = retry.Do(
		func() error {
			text, callErr := p.doCall(ctx, body)
			if callErr != nil {
				return callErr
			}
			out = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.MaxRetries+1),
		retry.MaxDelay(60*time.Second),
		retry.RetryIf(func(err error) bool {
			var pe *ProviderError
			if asProviderError(err, &pe) {
				if pe.Kind == ErrKindTransient {
					transientRetries++
					return transientRetries <= 1
				}
				return pe.Kind == ErrKindRateLimited
			}
			return true
		}),
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

func asProviderError(err error, target **ProviderError) bool {
	for err != nil {
		if pe, ok := err.(*ProviderError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (p *HTTPProvider) doCall(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Kind: ErrKindInvalidOutput, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", &ProviderError{Kind: ErrKindTransient, Err: fmt.Errorf("analysis: request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Kind: ErrKindTransient, Err: fmt.Errorf("analysis: reading response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &ProviderError{Kind: ErrKindRateLimited, Err: fmt.Errorf("analysis: rate limited: %s", strings.TrimSpace(string(raw)))}
	}
	if resp.StatusCode >= 500 {
		return "", &ProviderError{Kind: ErrKindTransient, Err: fmt.Errorf("analysis: server error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}
	if resp.StatusCode >= 400 {
		return "", &ProviderError{Kind: ErrKindInvalidOutput, Err: fmt.Errorf("analysis: request rejected %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ProviderError{Kind: ErrKindInvalidOutput, Err: fmt.Errorf("analysis: parsing response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &ProviderError{Kind: ErrKindInvalidOutput, Err: fmt.Errorf("analysis: provider error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Kind: ErrKindInvalidOutput, Err: fmt.Errorf("analysis: empty choices in response")}
	}
	return parsed.Choices[0].Message.Content, nil
}
