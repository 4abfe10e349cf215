// Package otter backs a relay.QueryCache with the Otter cache library.
//
// Otter supports a distinct TTL per entry, which matches the Set contract of
// relay.Cache directly; MustNew is the only construction path.
package otter

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/byte4ever/relay"
)

// adapter bridges otter.CacheWithVariableTTL to the relay.Cache contract.
type adapter[K comparable, V any] struct {
	cache otter.CacheWithVariableTTL[K, V]
}

// MustNew builds an Otter-backed cache holding at most cfg.MaxSize entries.
// Entry lifetimes come from each Set call, so cfg.TTL is the caller's
// default rather than a property of the cache itself. Panics when the
// builder rejects the configuration, e.g. a non-positive capacity.
//
//nolint:ireturn,varnamelen // generic type params K,V are idiomatic in Go
func MustNew[K comparable, V any](cfg relay.CacheConfig) relay.Cache[K, V] {
	cache, err := otter.MustBuilder[K, V](cfg.MaxSize).
		WithVariableTTL().
		Build()
	if err != nil {
		panic("relay/otter: failed to build cache: " + err.Error())
	}

	return &adapter[K, V]{cache: cache}
}

// Get returns the live entry for key, if any.
//
//nolint:ireturn // generic type parameter V, not an interface
func (a *adapter[K, V]) Get(key K) (V, bool) {
	return a.cache.Get(key)
}

// Set stores value under key for the given lifetime.
func (a *adapter[K, V]) Set(key K, value V, ttl time.Duration) {
	a.cache.Set(key, value, ttl)
}

// Delete drops the entry for key, if present.
func (a *adapter[K, V]) Delete(key K) {
	a.cache.Delete(key)
}
