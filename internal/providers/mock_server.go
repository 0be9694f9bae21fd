package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockServer is a mock Anthropic Messages API for testing the provider
// adapter. It replays queued responses in order and records every request
// body it receives.
type MockServer struct {
	server   *httptest.Server
	queue    []MockResponse
	fallback *MockResponse
	requests [][]byte
	mu       sync.Mutex
}

// MockResponse defines a mock response configuration.
type MockResponse struct {
	StatusCode int
	Body       any
	Delay      time.Duration
	Headers    map[string]string
}

// NewMockServer creates a new mock server serving /v1/messages.
func NewMockServer() *MockServer {
	ms := &MockServer{}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close closes the mock server.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// Enqueue appends responses that are served once each, in order.
func (ms *MockServer) Enqueue(responses ...MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.queue = append(ms.queue, responses...)
}

// SetFallback sets the response served once the queue is empty.
func (ms *MockServer) SetFallback(response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.fallback = &response
}

// RequestCount returns the number of requests received.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.requests)
}

// Request decodes the i-th request body into v.
func (ms *MockServer) Request(i int, v any) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if i < 0 || i >= len(ms.requests) {
		return fmt.Errorf("request %d not received (%d total)", i, len(ms.requests))
	}
	return json.Unmarshal(ms.requests[i], v)
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("x-api-key") == "" || r.Header.Get("anthropic-version") == "" {
		writeJSON(w, MockAuthError())
		return
	}

	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests = append(ms.requests, body)
	var response MockResponse
	switch {
	case len(ms.queue) > 0:
		response = ms.queue[0]
		ms.queue = ms.queue[1:]
	case ms.fallback != nil:
		response = *ms.fallback
	default:
		response = MockServerError()
	}
	ms.mu.Unlock()

	if response.Delay > 0 {
		time.Sleep(response.Delay)
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, response MockResponse) {
	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json")
	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch v := response.Body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(v))
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

// MockToolUse describes a tool_use block in a mock response.
type MockToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// MockAnthropicResponse creates a mock end_turn response with a single text
// block.
func MockAnthropicResponse(content, model string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"id":          "msg_text",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": content}},
			"model":       model,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 100, "output_tokens": 20},
		},
	}
}

// MockToolUseResponse creates a mock tool_use response with optional leading
// text.
func MockToolUseResponse(model, text string, calls ...MockToolUse) MockResponse {
	content := []map[string]any{}
	if text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	for _, c := range calls {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    c.ID,
			"name":  c.Name,
			"input": c.Input,
		})
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"id":          "msg_tools",
			"type":        "message",
			"role":        "assistant",
			"content":     content,
			"model":       model,
			"stop_reason": "tool_use",
			"usage":       map[string]any{"input_tokens": 150, "output_tokens": 40},
		},
	}
}

// MockErrorResponse creates a mock Anthropic error envelope.
func MockErrorResponse(statusCode int, errType, message string) MockResponse {
	return MockResponse{
		StatusCode: statusCode,
		Body: map[string]any{
			"type":  "error",
			"error": map[string]any{"type": errType, "message": message},
		},
	}
}

// MockAuthError creates a 401 authentication error response.
func MockAuthError() MockResponse {
	return MockErrorResponse(http.StatusUnauthorized, "authentication_error", "invalid x-api-key")
}

// MockRateLimitError creates a 429 rate limit error response.
func MockRateLimitError(retryAfter int) MockResponse {
	response := MockErrorResponse(http.StatusTooManyRequests, "rate_limit_error", "Rate limit exceeded")
	response.Headers = map[string]string{
		"Retry-After": fmt.Sprintf("%d", retryAfter),
	}
	return response
}

// MockOverloadedError creates a 529 overloaded response.
func MockOverloadedError() MockResponse {
	return MockErrorResponse(529, "overloaded_error", "Overloaded")
}

// MockServerError creates a 500 internal server error response.
func MockServerError() MockResponse {
	return MockErrorResponse(http.StatusInternalServerError, "api_error", "Internal server error")
}
