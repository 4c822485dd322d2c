package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is an in-memory cache backend for testing.
type MemoryBackend struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory cache backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string][]byte),
	}
}

// Read returns a copy of the stored bytes for key.
func (b *MemoryBackend) Read(key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Write stores a copy of data. ttl is ignored; Store enforces expiry.
func (b *MemoryBackend) Write(key string, data []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key.
func (b *MemoryBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (b *MemoryBackend) Keys(prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for k := range b.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBackend) Close() error { return nil }

// Len returns the number of stored keys (for testing).
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Reset clears all entries (for testing).
func (b *MemoryBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string][]byte)
}

// Seed writes raw bytes directly, bypassing the envelope (for testing).
func (b *MemoryBackend) Seed(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = append([]byte(nil), data...)
}
