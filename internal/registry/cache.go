package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// swrCache is a TTL-based in-memory cache with stale-while-revalidate.
// Uses sync.Map for lock-free reads on the hot path. A nil value is a
// valid entry (negative cache).
//
// Stale-while-revalidate: when an entry expires, Get still returns the
// stale value immediately and signals that a background refresh is needed.
// The refreshing flag is CAS-guarded so only one goroutine refreshes per key.
type swrCache[T any] struct {
	store sync.Map // map[string]*swrEntry[T]
	ttl   time.Duration
}

type swrEntry[T any] struct {
	value      T
	expiresAt  time.Time
	refreshing atomic.Bool
}

func newSWRCache[T any](ttl time.Duration) *swrCache[T] {
	return &swrCache[T]{ttl: ttl}
}

// get returns (value, hit, needsRefresh).
//   - Fresh hit:  (value, true,  false)
//   - Stale hit:  (value, true,  true)   serve stale, refresh in background
//   - Miss:       (zero,  false, false)
func (c *swrCache[T]) get(key string) (T, bool, bool) {
	val, ok := c.store.Load(key)
	if !ok {
		var zero T
		return zero, false, false
	}

	entry := val.(*swrEntry[T])
	if time.Now().Before(entry.expiresAt) {
		return entry.value, true, false
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return entry.value, true, needsRefresh
}

// set stores a value with a fresh TTL.
func (c *swrCache[T]) set(key string, value T) {
	c.store.Store(key, &swrEntry[T]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// delete removes an entry so the next read goes to the store.
func (c *swrCache[T]) delete(key string) {
	c.store.Delete(key)
}
