package intercept

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// TransportHook implements the "transport middleware" contract
// (spec.md §4.8) as an http.RoundTripper wrapper: it passes every
// request through to next unmodified, and on LLM-endpoint responses
// captures the exchange into the owning Registry. Wrapping
// http.RoundTripper is the idiomatic Go analogue of the Python
// original's httpx/requests transport patching in
// interceptors/http_interceptor.py.
type TransportHook struct {
	registry *Registry
	next     http.RoundTripper
	enabled  bool
}

// NewTransportHook builds a hook that wraps next (http.DefaultTransport
// if nil) and reports captured turns to registry.
func NewTransportHook(registry *Registry, next http.RoundTripper) *TransportHook {
	if next == nil {
		next = http.DefaultTransport
	}
	return &TransportHook{registry: registry, next: next}
}

func (h *TransportHook) Name() string { return "transport" }

func (h *TransportHook) Enable() bool {
	h.enabled = true
	return true
}

func (h *TransportHook) Disable() bool {
	h.enabled = false
	return true
}

// RoundTrip never blocks or alters the underlying request/response
// (fail-open by construction): it reads and restores the request body
// to extract the prompt, then reads and restores the response body to
// extract the completion, before handing both back to the caller
// untouched.
func (h *TransportHook) RoundTrip(req *http.Request) (*http.Response, error) {
	if !h.enabled || !isLLMEndpoint(req.URL.Host) {
		return h.next.RoundTrip(req)
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, err := h.next.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}

	var respBody []byte
	if resp.Body != nil {
		respBody, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
	}

	userInput, aiOutput, model := extractChatCompletion(reqBody, respBody)
	if userInput != "" && aiOutput != "" {
		h.registry.Capture(req.Context(), h.Name(), Turn{
			UserInput: userInput,
			AIOutput:  aiOutput,
			Model:     model,
			Metadata:  map[string]any{"interceptor": "transport", "url": req.URL.String()},
		})
	}

	return resp, nil
}

// llmHosts mirrors http_interceptor.py's _is_llm_endpoint domain list.
var llmHosts = []string{
	"api.openai.com",
	"api.anthropic.com",
	"api.cohere.ai",
	"api.together.xyz",
	"api.mistral.ai",
	"generativelanguage.googleapis.com",
}

func isLLMEndpoint(host string) bool {
	for _, h := range llmHosts {
		if host == h {
			return true
		}
	}
	return false
}

// chatCompletionRequest/Response are the OpenAI-compatible shapes
// extractChatCompletion parses; unrecognized bodies yield empty strings
// rather than an error, matching the original's best-effort extraction.
type chatCompletionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func extractChatCompletion(reqBody, respBody []byte) (userInput, aiOutput, model string) {
	var req chatCompletionRequest
	if err := json.Unmarshal(reqBody, &req); err == nil {
		model = req.Model
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				userInput = req.Messages[i].Content
				break
			}
		}
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err == nil && len(resp.Choices) > 0 {
		aiOutput = resp.Choices[0].Message.Content
	}
	return userInput, aiOutput, model
}
