package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrFetchCachesResult(t *testing.T) {
	store, _, _ := newTestStore(t)
	aside := NewAside(store, false)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]pr, error) {
		calls++
		return []pr{{Title: "Add cache", Number: 7}}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetOrFetch(ctx, aside, "search::k", Policy{}, fetch)
		if err != nil {
			t.Fatalf("GetOrFetch failed: %v", err)
		}
		if len(got) != 1 || got[0].Number != 7 {
			t.Errorf("Unexpected value %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 fetch, got %d", calls)
	}
}

func TestGetOrFetchRefetchesAfterExpiry(t *testing.T) {
	store, _, clock := newTestStore(t)
	aside := NewAside(store, false)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	policy := Policy{StructuralTTL: time.Hour}
	v1, _ := GetOrFetch(ctx, aside, "k", policy, fetch)
	clock.Advance(2 * time.Hour)
	v2, _ := GetOrFetch(ctx, aside, "k", policy, fetch)

	if calls != 2 || v1 != 1 || v2 != 2 {
		t.Errorf("Expected refetch after expiry, calls=%d v1=%d v2=%d", calls, v1, v2)
	}
}

func TestGetOrFetchFreshnessWindow(t *testing.T) {
	store, _, clock := newTestStore(t)
	aside := NewAside(store, false)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "detail", nil
	}

	policy := Policy{FreshnessTTL: 24 * time.Hour}
	_, _ = GetOrFetch(ctx, aside, "pr::acme::api::1", policy, fetch)

	clock.Advance(23 * time.Hour)
	_, _ = GetOrFetch(ctx, aside, "pr::acme::api::1", policy, fetch)
	if calls != 1 {
		t.Fatalf("Expected cached value inside freshness window, calls=%d", calls)
	}

	clock.Advance(2 * time.Hour)

	// Stale but not evicted: the structural TTL still holds the entry.
	if entry, _ := store.Get("pr::acme::api::1"); entry == nil {
		t.Fatal("Expected stale entry to remain stored")
	}

	_, _ = GetOrFetch(ctx, aside, "pr::acme::api::1", policy, fetch)
	if calls != 2 {
		t.Errorf("Expected refetch after freshness window, calls=%d", calls)
	}
}

func TestGetOrFetchErrorNotCached(t *testing.T) {
	store, backend, _ := newTestStore(t)
	aside := NewAside(store, false)
	ctx := context.Background()

	boom := errors.New("rate limited")
	_, err := GetOrFetch(ctx, aside, "k", Policy{}, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected fetch error, got %v", err)
	}
	if backend.Len() != 0 {
		t.Error("Expected failed fetch to write nothing")
	}

	v, err := GetOrFetch(ctx, aside, "k", Policy{}, func(context.Context) (int, error) {
		return 5, nil
	})
	if err != nil || v != 5 {
		t.Errorf("Expected retry to fetch, got %d %v", v, err)
	}
}

func TestGetOrFetchUndecodableValueRefetches(t *testing.T) {
	store, _, _ := newTestStore(t)
	aside := NewAside(store, false)

	_ = store.Set("k", "not a number", time.Hour)

	v, err := GetOrFetch(context.Background(), aside, "k", Policy{}, func(context.Context) (int, error) {
		return 9, nil
	})
	if err != nil || v != 9 {
		t.Errorf("Expected refetch for mismatched value, got %d %v", v, err)
	}
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	store, _, _ := newTestStore(t)
	aside := NewAside(store, true)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := GetOrFetch(ctx, aside, "k", Policy{}, fetch); err != nil {
				t.Errorf("GetOrFetch failed: %v", err)
			}
		}()
	}

	// Give the goroutines time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("Expected one shared fetch, got %d", n)
	}
}

func TestInvalidate(t *testing.T) {
	store, backend, _ := newTestStore(t)
	aside := NewAside(store, false)

	_ = store.Set("a", 1, time.Hour)
	_ = store.Set("b", 1, time.Hour)

	if err := aside.Invalidate("a", "b", "missing"); err != nil {
		t.Fatal(err)
	}
	if backend.Len() != 0 {
		t.Errorf("Expected all keys removed, %d remain", backend.Len())
	}
}
