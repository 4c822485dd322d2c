package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/colthorp/teampulse-go/internal/metrics"
)

// FetchFn fetches a value from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Policy controls how long a cached fetch is trusted.
type Policy struct {
	// StructuralTTL is stored with the entry and drives eviction. Zero uses the store default.
	StructuralTTL time.Duration

	// FreshnessTTL, when set, makes entries older than it count as misses without evicting
	// them. A successful refetch overwrites the stale entry.
	FreshnessTTL time.Duration
}

// Aside is the cache-aside layer used by every connector fetch.
type Aside struct {
	store *Store
	group *singleflight.Group
}

// NewAside wraps store. With singleFlight, concurrent misses on the same key share one fetch;
// without it, concurrent misses each call the fetcher and the last write wins.
func NewAside(store *Store, singleFlight bool) *Aside {
	a := &Aside{store: store}
	if singleFlight {
		a.group = &singleflight.Group{}
	}
	return a
}

// Store returns the underlying store.
func (a *Aside) Store() *Store {
	return a.store
}

// Invalidate deletes keys. Missing keys are ignored.
func (a *Aside) Invalidate(keys ...string) error {
	for _, key := range keys {
		if err := a.store.Delete(key); err != nil {
			return err
		}
		metrics.CacheInvalidations.WithLabelValues(Namespace(key)).Inc()
	}
	return nil
}

// GetOrFetch returns the cached value for key when present and fresh. Otherwise it calls
// fetch, stores a successful result under key and returns it. A failed fetch writes nothing.
// Storage errors are returned as-is.
func GetOrFetch[T any](ctx context.Context, a *Aside, key string, policy Policy, fetch FetchFn[T]) (T, error) {
	var zero T
	ns := Namespace(key)

	entry, err := a.store.Get(key)
	if err != nil {
		return zero, err
	}
	if entry != nil {
		if policy.FreshnessTTL > 0 && entry.Age(a.store.Now()) > policy.FreshnessTTL {
			metrics.CacheLookups.WithLabelValues(ns, "stale").Inc()
		} else {
			var v T
			if err := entry.Decode(&v); err == nil {
				metrics.CacheLookups.WithLabelValues(ns, "hit").Inc()
				return v, nil
			}
			metrics.CacheLookups.WithLabelValues(ns, "corrupt").Inc()
			if err := a.store.Delete(key); err != nil {
				return zero, err
			}
		}
	} else {
		metrics.CacheLookups.WithLabelValues(ns, "miss").Inc()
	}

	load := func() (T, error) {
		v, err := fetch(ctx)
		if err != nil {
			return zero, err
		}
		if err := a.store.Set(key, v, policy.StructuralTTL); err != nil {
			return zero, err
		}
		return v, nil
	}

	if a.group == nil {
		return load()
	}

	res, err, _ := a.group.Do(key, func() (any, error) {
		return load()
	})
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("cache: unexpected shared result type %T for %s", res, key)
	}
	return v, nil
}
