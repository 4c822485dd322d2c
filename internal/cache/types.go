// Package cache provides the TTL cache store that sits between report runs and the
// rate-limited upstream APIs.
//
// # Overview
//
// The unit of caching is one connector fetch: every record a connector returned for a
// given set of query parameters, stored under a deterministic key (see keys.go). Each
// stored value is wrapped in an Entry envelope:
//
//	{
//	  "key": "search::acme::alice::2024-01-01::2024-01-31::author",
//	  "value": [...],
//	  "stored_at": "2024-02-01T10:00:00Z",
//	  "ttl": 2592000000000000
//	}
//
// # Validity Rules
//
//   - An entry is valid iff now - stored_at <= ttl.
//   - Expired entries are treated as absent and deleted on the read that finds them.
//   - An envelope that cannot be decoded is corrupt: it is deleted and reported as a miss.
//   - Backend I/O errors are returned to the caller unmodified.
//
// # Freshness
//
// Cached (aside.go) layers a second, shorter FreshnessTTL on top of the structural TTL.
// An entry older than its freshness window is refetched but not evicted by Get.
//
// # Backends
//
// Storage is pluggable: BadgerBackend (persistent, default for the CLI), FilesystemBackend
// (one JSON file per key), SturdycBackend (sharded in-process memory for the HTTP server)
// and MemoryBackend (tests).
package cache

import (
	"time"

	"github.com/goccy/go-json"
)

// Entry is one cached fetch result with its expiry metadata.
type Entry struct {
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Expired reports whether the entry has outlived its TTL at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.Age(now) > e.TTL
}

// Decode unmarshals the stored value into v.
func (e *Entry) Decode(v any) error {
	return json.Unmarshal(e.Value, v)
}

// Backend is the interface for cache storage backends.
// Backends store opaque encoded envelopes; expiry decisions belong to Store.
type Backend interface {
	// Read returns the stored bytes for key. A missing key is (nil, false, nil).
	Read(key string) ([]byte, bool, error)

	// Write stores data under key, replacing any previous value. ttl is a hint
	// for backends that can expire natively.
	Write(key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases resources held by the backend.
	Close() error
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys(prefix string) ([]string, error)
}
