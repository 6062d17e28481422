// Package testutil provides testing utilities for the ADP API client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock ADP endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockADP is a configurable mock ADP API server. It serves the OAuth2 token
// endpoint at /auth/oauth/v2/token out of the box and custom handlers for
// resource paths. Counters and captured headers make request behavior
// assertable.
type MockADP struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	requestCount      int
	tokenCount        int
	pathCounts        map[string]int
	lastRequestHeader http.Header
}

// TokenPath is where the mock serves the client-credentials grant.
const TokenPath = "/auth/oauth/v2/token"

// NewMockADP creates and starts a mock ADP server.
func NewMockADP() *MockADP {
	mock := &MockADP{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		if r.URL.Path == TokenPath {
			mock.tokenCount++
		}
		mock.mu.Unlock()

		if r.URL.Path == TokenPath {
			mock.mu.RLock()
			handler, exists := mock.handlers[TokenPath]
			mock.mu.RUnlock()
			if exists {
				handler(w, r)
				return
			}
			mock.defaultTokenHandler(w, r)
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockADP) URL() string {
	return m.server.URL
}

// TokenURL returns the mock token endpoint URL.
func (m *MockADP) TokenURL() string {
	return m.server.URL + TokenPath
}

// Client returns a plain HTTP client for the mock server.
func (m *MockADP) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockADP) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockADP) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.tokenCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockADP) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockADP) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetToken configures the token endpoint to issue the given token value.
func (m *MockADP) SetToken(value string, expiresIn int) {
	m.SetHandler(TokenPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":%d}`, value, expiresIn)
	})
}

// defaultTokenHandler issues a static token valid for an hour.
func (m *MockADP) defaultTokenHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
}

// RequestCount returns the total number of requests received, token
// requests included.
func (m *MockADP) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// TokenCount returns the number of token requests received.
func (m *MockADP) TokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokenCount
}

// PathCount returns the number of requests received for one path.
func (m *MockADP) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockADP) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}
