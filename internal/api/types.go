// Package api provides the shared HTTP client that every upstream connector goes through.
//
// A Client owns one upstream (github, jira, bonusly): its base URL, credentials, retry
// policy, circuit breaker and metrics labels. Connectors describe calls as Requests and
// decode the JSON body into their own response types.
package api

import (
	"context"
	"net/url"
)

// Request describes one upstream call.
type Request struct {
	// Method defaults to GET.
	Method string

	// Path is appended to the client's base URL. Absolute URLs are used as-is.
	Path string

	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any
}

// Transport is the interface for making upstream requests.
type Transport interface {
	// Do performs req and decodes a successful JSON response into out (which may be nil).
	Do(ctx context.Context, req Request, out any) error
}
