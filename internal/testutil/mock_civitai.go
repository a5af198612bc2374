// Package testutil provides testing utilities for the Civitai downloader.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockAPI is a configurable mock Civitai TRPC server for testing.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount int
	perProcedure map[string]int
	lastInputs   map[string]map[string]any
}

// NewMockAPI creates a new mock TRPC server. Unconfigured procedures
// respond with an empty page.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:     make(map[string]http.HandlerFunc),
		perProcedure: make(map[string]int),
		lastInputs:   make(map[string]map[string]any),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		procedure := strings.TrimPrefix(r.URL.Path, "/api/trpc/")

		mock.mu.Lock()
		mock.requestCount++
		mock.perProcedure[procedure]++
		if input, err := decodeInput(r); err == nil {
			mock.lastInputs[procedure] = input
		}
		handler, exists := mock.handlers[procedure]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		WritePage(w, http.StatusOK, `{"items": []}`)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for one TRPC procedure.
func (m *MockAPI) SetHandler(procedure string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[procedure] = handler
}

// SetPages configures a procedure to return the given page payloads in
// order. Payloads are raw TRPC result JSON, e.g.
// `{"items": [...], "nextCursor": "c2"}`. Requests past the last page
// receive an empty page.
func (m *MockAPI) SetPages(procedure string, pages ...string) {
	var idx int
	var mu sync.Mutex

	m.SetHandler(procedure, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := idx
		idx++
		mu.Unlock()

		if i >= len(pages) {
			WritePage(w, http.StatusOK, `{"items": []}`)
			return
		}
		WritePage(w, http.StatusOK, pages[i])
	})
}

// SetStatus configures a procedure to always answer with the given HTTP
// status and an empty body.
func (m *MockAPI) SetStatus(procedure string, status int) {
	m.SetHandler(procedure, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

// Requests returns the number of requests seen for one procedure.
func (m *MockAPI) Requests(procedure string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.perProcedure[procedure]
}

// TotalRequests returns the number of requests across all procedures.
func (m *MockAPI) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastInput returns the decoded TRPC input of the most recent request to a
// procedure, or nil.
func (m *MockAPI) LastInput(procedure string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInputs[procedure]
}

// WritePage writes a TRPC envelope response with the given result payload.
func WritePage(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"result": {"data": {"json": %s}}}`, payload)
}

// decodeInput parses the TRPC input query parameter into the inner json
// object.
func decodeInput(r *http.Request) (map[string]any, error) {
	raw := r.URL.Query().Get("input")
	if raw == "" {
		return nil, fmt.Errorf("no input parameter")
	}

	var wrapper struct {
		JSON map[string]any `json:"json"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.JSON, nil
}
