package api

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/goccy/go-json"
)

// RequestLogEntry records a request made to a fake transport.
type RequestLogEntry struct {
	Method string
	Path   string
	Query  url.Values
}

// HandlerFunc produces the response for one fake request. The returned value is
// JSON round-tripped into the caller's output.
type HandlerFunc func(req Request) (any, error)

// MockTransport is an in-memory fake suitable for deterministic unit tests.
// Requests are routed by exact Path.
type MockTransport struct {
	mu         sync.Mutex
	routes     map[string]HandlerFunc
	RequestLog []RequestLogEntry
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{routes: make(map[string]HandlerFunc)}
}

// Handle registers fn for path.
func (t *MockTransport) Handle(path string, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[path] = fn
}

// Respond registers a fixed response for path.
func (t *MockTransport) Respond(path string, resp any) {
	t.Handle(path, func(Request) (any, error) { return resp, nil })
}

// Fail makes every request to path return err.
func (t *MockTransport) Fail(path string, err error) {
	t.Handle(path, func(Request) (any, error) { return nil, err })
}

// RequestsMade returns the number of requests made to this transport.
func (t *MockTransport) RequestsMade() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.RequestLog)
}

// Requests returns a copy of the request log.
func (t *MockTransport) Requests() []RequestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RequestLogEntry(nil), t.RequestLog...)
}

// Reset clears recorded requests.
func (t *MockTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.RequestLog = nil
}

// Do simulates an upstream request using the registered handlers.
func (t *MockTransport) Do(ctx context.Context, req Request, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	q := url.Values{}
	for k, v := range req.Query {
		q[k] = append([]string(nil), v...)
	}
	t.RequestLog = append(t.RequestLog, RequestLogEntry{Method: req.Method, Path: req.Path, Query: q})
	fn, ok := t.routes[req.Path]
	t.mu.Unlock()

	if !ok {
		return &APIError{Upstream: "mock", StatusCode: 404, Message: fmt.Sprintf("no route for %s", req.Path)}
	}

	resp, err := fn(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
