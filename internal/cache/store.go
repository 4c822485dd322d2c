package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/logging"
)

// ErrNotListable is returned by Keys when the backend cannot enumerate keys.
var ErrNotListable = errors.New("cache backend cannot list keys")

// Store is a key/value store with per-entry expiry on top of a Backend.
// It is safe for concurrent use as long as the backend is.
type Store struct {
	backend    Backend
	clock      clockwork.Clock
	defaultTTL time.Duration
	log        zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithDefaultTTL sets the TTL applied when Set is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// NewStore creates a store over backend. If backend is nil an in-memory backend is used.
func NewStore(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend:    backend,
		clock:      clockwork.NewRealClock(),
		defaultTTL: core.DefaultTTL,
		log:        logging.With("cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// DefaultTTL returns the TTL used when callers do not override it.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Get returns the entry for key if present and unexpired, otherwise nil.
// Expired and undecodable entries are deleted before reporting a miss.
func (s *Store) Get(key string) (*Entry, error) {
	data, ok, err := s.backend.Read(key)
	if err != nil {
		return nil, fmt.Errorf("cache read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || len(entry.Value) == 0 {
		s.log.Debug().Str("key", key).Msg("Dropping corrupt cache entry")
		if err := s.backend.Delete(key); err != nil {
			return nil, fmt.Errorf("cache delete %s: %w", key, err)
		}
		return nil, nil
	}

	if entry.Expired(s.Now()) {
		s.log.Debug().Str("key", key).Time("stored_at", entry.StoredAt).Msg("Evicting expired cache entry")
		if err := s.backend.Delete(key); err != nil {
			return nil, fmt.Errorf("cache delete %s: %w", key, err)
		}
		return nil, nil
	}

	return &entry, nil
}

// Set stores value under key, overwriting any existing entry and stamping the current time.
// ttl <= 0 selects the store default.
func (s *Store) Set(key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	data, err := json.Marshal(Entry{
		Key:      key,
		Value:    raw,
		StoredAt: s.Now(),
		TTL:      ttl,
	})
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	if err := s.backend.Write(key, data, ttl); err != nil {
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. It is idempotent.
func (s *Store) Delete(key string) error {
	if err := s.backend.Delete(key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// GetValue is a typed convenience over Store.Get.
// A value that no longer decodes into T is treated as a miss.
func GetValue[T any](s *Store, key string) (T, bool, error) {
	var zero T

	entry, err := s.Get(key)
	if err != nil || entry == nil {
		return zero, false, err
	}

	var v T
	if err := entry.Decode(&v); err != nil {
		if err := s.Delete(key); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}
	return v, true, nil
}

// Keys lists stored keys with prefix when the backend supports enumeration.
func (s *Store) Keys(prefix string) ([]string, error) {
	l, ok := s.backend.(Lister)
	if !ok {
		return nil, fmt.Errorf("%T: %w", s.backend, ErrNotListable)
	}
	return l.Keys(prefix)
}
