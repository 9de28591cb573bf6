// Package testutil provides testing utilities for paginated HTTP endpoints.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockPageResponse defines the behavior of one page of a mock endpoint.
type MockPageResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
	// Failures is how many requests fail with StatusCode before the page
	// succeeds; -1 fails forever.
	Failures int
}

// MockPages is a configurable paginated HTTP server for testing.
// Endpoints serve ?page=N and report the page count in X-Pages.
type MockPages struct {
	server    *httptest.Server
	mu        sync.RWMutex
	endpoints map[string]int
	pages     map[string]map[int]*MockPageResponse

	// Tracking
	RequestCount  int
	PageRequests  map[string]map[int]int
	LastUserAgent string
	inFlight      int
	PeakInFlight  int
}

// NewMockPages creates a new mock server.
func NewMockPages() *MockPages {
	mock := &MockPages{
		endpoints:    make(map[string]int),
		pages:        make(map[string]map[int]*MockPageResponse),
		PageRequests: make(map[string]map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockPages) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPages) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPages) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PageRequests = make(map[string]map[int]int)
	m.LastUserAgent = ""
	m.PeakInFlight = 0
}

// SetEndpoint registers an endpoint with totalPages pages whose bodies are
// `{"endpoint":"<path>","page":N}`.
func (m *MockPages) SetEndpoint(path string, totalPages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[path] = totalPages
	if m.pages[path] == nil {
		m.pages[path] = make(map[int]*MockPageResponse)
	}
}

// SetPage overrides the response of a single page.
func (m *MockPages) SetPage(path string, page int, resp MockPageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages[path] == nil {
		m.pages[path] = make(map[int]*MockPageResponse)
	}
	r := resp
	m.pages[path][page] = &r
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPages) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPageRequests returns how often a page of an endpoint was requested.
func (m *MockPages) GetPageRequests(path string, page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PageRequests[path][page]
}

// GetPeakInFlight returns the highest number of concurrent requests seen.
func (m *MockPages) GetPeakInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PeakInFlight
}

// GetLastUserAgent returns the User-Agent of the latest request.
func (m *MockPages) GetLastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastUserAgent
}

func (m *MockPages) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, `{"error": "invalid page"}`, http.StatusBadRequest)
			return
		}
		page = n
	}

	m.mu.Lock()
	m.RequestCount++
	m.LastUserAgent = r.Header.Get("User-Agent")
	if m.PageRequests[path] == nil {
		m.PageRequests[path] = make(map[int]int)
	}
	m.PageRequests[path][page]++
	m.inFlight++
	if m.inFlight > m.PeakInFlight {
		m.PeakInFlight = m.inFlight
	}
	total, known := m.endpoints[path]
	override := m.pages[path][page]
	var resp MockPageResponse
	if override != nil {
		resp = *override
		if override.Failures > 0 {
			override.Failures--
		}
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	if !known {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Pages", strconv.Itoa(total))

	if override != nil && resp.Failures != 0 {
		w.WriteHeader(resp.StatusCode)
		fmt.Fprintf(w, `{"error": "page %d unavailable"}`, page)
		return
	}

	if page > total {
		http.Error(w, `{"error": "page out of range"}`, http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
		return
	}
	fmt.Fprintf(w, `{"endpoint":%q,"page":%d}`, path, page)
}

// NewFlakyPage creates a page that fails n times with a 502 before succeeding.
func NewFlakyPage(n int) MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusBadGateway,
		Failures:   n,
	}
}

// NewBrokenPage creates a page that always fails with the given status.
func NewBrokenPage(status int) MockPageResponse {
	return MockPageResponse{
		StatusCode: status,
		Failures:   -1,
	}
}

// NewSlowPage creates a page that succeeds after delay.
func NewSlowPage(delay time.Duration) MockPageResponse {
	return MockPageResponse{
		StatusCode: http.StatusOK,
		Delay:      delay,
	}
}
