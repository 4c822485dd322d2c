package cache

import (
	"time"

	"github.com/viccon/sturdyc"

	"github.com/colthorp/teampulse-go/internal/core"
)

// SturdycBackend keeps envelopes in a sharded in-process sturdyc cache.
// It is used by the long-running server where a disk cache is not wanted.
type SturdycBackend struct {
	client *sturdyc.Client[[]byte]
}

// NewSturdycBackend creates a sturdyc-backed store. ttl bounds how long sturdyc keeps
// a value; Store's own envelope check still applies within that window.
func NewSturdycBackend(capacity, shards int, ttl time.Duration) *SturdycBackend {
	if capacity <= 0 {
		capacity = core.DefaultCacheCapacity
	}
	if shards <= 0 {
		shards = core.DefaultCacheShards
	}
	if ttl <= 0 {
		ttl = core.DefaultTTL
	}
	return &SturdycBackend{
		client: sturdyc.New[[]byte](capacity, shards, ttl, 10),
	}
}

func (b *SturdycBackend) Read(key string) ([]byte, bool, error) {
	data, ok := b.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (b *SturdycBackend) Write(key string, data []byte, _ time.Duration) error {
	b.client.Set(key, append([]byte(nil), data...))
	return nil
}

func (b *SturdycBackend) Delete(key string) error {
	b.client.Delete(key)
	return nil
}

// Size returns the number of entries currently held.
func (b *SturdycBackend) Size() int {
	return b.client.Size()
}

func (b *SturdycBackend) Close() error { return nil }
