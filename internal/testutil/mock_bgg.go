// Package testutil provides testing utilities for the ingestion pipeline.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock thing-endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBGG is a configurable mock XML API server for testing.
type MockBGG struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	LastQuery    url.Values
}

// NewMockBGG creates a new mock API server.
func NewMockBGG() *MockBGG {
	mock := &MockBGG{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBGG) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBGG) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBGG) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBGG) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetThingResponse configures the /thing endpoint response.
func (m *MockBGG) SetThingResponse(resp MockResponse) {
	m.SetHandler("/thing", func(w http.ResponseWriter, r *http.Request) {
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

// GetRequestCount returns the number of requests made to the server.
func (m *MockBGG) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler answers with a minimal empty items document.
func (m *MockBGG) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?><items/>`))
}

// NewThingsResponse creates a 200 OK response carrying the given XML body.
func NewThingsResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "text/xml; charset=utf-8",
		},
	}
}

// NewQueuedResponse creates a 202 Accepted response; the API uses it
// while an export is still being generated.
func NewQueuedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusAccepted,
		Body:       `<message>Your request for this collection has been accepted and will be processed.</message>`,
		Headers: map[string]string{
			"Content-Type": "text/xml; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `<error><message>Rate limit exceeded.</message></error>`,
		Headers: map[string]string{
			"Content-Type": "text/xml; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `<error><message>Internal server error.</message></error>`,
		Headers: map[string]string{
			"Content-Type": "text/xml; charset=utf-8",
		},
	}
}

// SampleThingXML is a trimmed but structurally complete thing document
// with both polls, links, and statistics.
const SampleThingXML = `<?xml version="1.0" encoding="utf-8"?>
<items termsofuse="https://boardgamegeek.com/xmlapi/termsofuse">
  <item type="boardgame" id="174430">
    <thumbnail>https://cf.example/thumb.jpg</thumbnail>
    <image>https://cf.example/image.jpg</image>
    <name type="primary" sortindex="1" value="Gloomhaven"/>
    <name type="alternate" sortindex="1" value="幽港迷城"/>
    <description>Vanquish monsters with strategic cardplay.&amp;#10;Caf&amp;eacute; rules included.</description>
    <yearpublished value="2017"/>
    <minplayers value="1"/>
    <maxplayers value="4"/>
    <playingtime value="120"/>
    <minplaytime value="60"/>
    <maxplaytime value="120"/>
    <minage value="14"/>
    <poll name="suggested_numplayers" title="User Suggested Number of Players" totalvotes="1724">
      <results numplayers="1">
        <result value="Best" numvotes="151"/>
        <result value="Recommended" numvotes="610"/>
        <result value="Not Recommended" numvotes="194"/>
      </results>
      <results numplayers="2">
        <result value="Best" numvotes="771"/>
        <result value="Recommended" numvotes="568"/>
        <result value="Not Recommended" numvotes="39"/>
      </results>
      <results numplayers="4+">
        <result value="Best" numvotes="10"/>
        <result value="Recommended" numvotes="90"/>
        <result value="Not Recommended" numvotes="500"/>
      </results>
    </poll>
    <poll name="suggested_playerage" title="User Suggested Player Age" totalvotes="100">
      <results>
        <result value="12" numvotes="60"/>
        <result value="14" numvotes="40"/>
        <result value="16" numvotes="0"/>
      </results>
    </poll>
    <link type="boardgamecategory" id="1022" value="Adventure"/>
    <link type="boardgamecategory" id="1020" value="Exploration"/>
    <link type="boardgamemechanic" id="2689" value="Action Queue"/>
    <link type="boardgamedesigner" id="69802" value="Isaac Childres"/>
    <statistics page="1">
      <ratings>
        <usersrated value="60000"/>
        <average value="8.74"/>
        <bayesaverage value="8.57"/>
        <stddev value="1.61"/>
        <averageweight value="3.89"/>
      </ratings>
    </statistics>
  </item>
</items>`
