package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/colthorp/teampulse-go/internal/core"
)

// BadgerBackend stores envelopes in an embedded BadgerDB.
// Entries carry a native TTL so Badger compaction reclaims space for keys nobody reads again.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadgerBackend opens (or creates) a Badger database at dir.
// An empty dir opens an in-memory database.
func OpenBadgerBackend(dir string) (*BadgerBackend, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerBackend{db: db}, nil
}

// DefaultBadgerDir returns the on-disk location used by the CLI.
func DefaultBadgerDir() string {
	return core.CacheRoot()
}

func (b *BadgerBackend) Read(key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *BadgerBackend) Write(key string, data []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			// Badger expiry has second granularity; pad so Store always decides first.
			e = e.WithTTL(ttl + time.Minute)
		}
		return txn.SetEntry(e)
	})
}

func (b *BadgerBackend) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Keys returns the stored keys with the given prefix, sorted.
func (b *BadgerBackend) Keys(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// Backend kinds accepted by Open.
const (
	KindBadger     = "badger"
	KindFilesystem = "filesystem"
	KindMemory     = "memory"
	KindSturdyc    = "sturdyc"
)

// Open builds the backend named by kind. dir is used by the persistent kinds.
func Open(kind, dir string, capacity, shards int, ttl time.Duration) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", KindBadger:
		if dir == "" {
			dir = DefaultBadgerDir()
		}
		return OpenBadgerBackend(dir)
	case KindFilesystem:
		return NewFilesystemBackend(dir), nil
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindSturdyc:
		return NewSturdycBackend(capacity, shards, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", kind)
	}
}
