package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// RecordedRequest is what the fake backend saw for one call.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type fakeRoute struct {
	method  string
	pattern string
	handler http.HandlerFunc
}

// FakeBackend is an httptest server standing in for the hospital API.
// Routes use chi patterns and may be (re)registered while the server runs.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   []fakeRoute
	router   http.Handler
	requests map[string][]RecordedRequest
}

// NewFakeBackend starts a fake backend that is closed when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{requests: make(map[string][]RecordedRequest)}
	f.rebuild()
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		router := f.router
		f.mu.Unlock()
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake backend.
func (f *FakeBackend) URL() string {
	return f.Server.URL
}

// Handle serves body as JSON with status for method+pattern. A string body is written as is.
func (f *FakeBackend) Handle(method, pattern string, status int, body interface{}) {
	f.HandleFunc(method, pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch b := body.(type) {
		case string:
			_, _ = io.WriteString(w, b)
		case []byte:
			_, _ = w.Write(b)
		default:
			_ = json.NewEncoder(w).Encode(b)
		}
	})
}

// HandleFunc registers a custom handler, replacing any earlier one for method+pattern.
func (f *FakeBackend) HandleFunc(method, pattern string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.routes[:0]
	for _, r := range f.routes {
		if r.method != method || r.pattern != pattern {
			kept = append(kept, r)
		}
	}
	f.routes = append(kept, fakeRoute{method: method, pattern: pattern, handler: h})
	f.rebuildLocked()
}

// Hits returns how many requests reached method+pattern.
func (f *FakeBackend) Hits(method, pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[method+" "+pattern])
}

// Requests returns the requests recorded for method+pattern.
func (f *FakeBackend) Requests(method, pattern string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests[method+" "+pattern]))
	copy(out, f.requests[method+" "+pattern])
	return out
}

// TotalHits returns the number of requests served by any route.
func (f *FakeBackend) TotalHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, reqs := range f.requests {
		n += len(reqs)
	}
	return n
}

func (f *FakeBackend) rebuild() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuildLocked()
}

func (f *FakeBackend) rebuildLocked() {
	r := chi.NewRouter()
	for _, route := range f.routes {
		route := route
		key := route.method + " " + route.pattern
		r.MethodFunc(route.method, route.pattern, func(w http.ResponseWriter, req *http.Request) {
			body, _ := io.ReadAll(req.Body)
			f.mu.Lock()
			f.requests[key] = append(f.requests[key], RecordedRequest{
				Method: req.Method,
				Path:   req.URL.Path,
				Query:  req.URL.Query(),
				Header: req.Header.Clone(),
				Body:   body,
			})
			f.mu.Unlock()
			req.Body = io.NopCloser(bytes.NewReader(body))
			route.handler(w, req)
		})
	}
	f.router = r
}
