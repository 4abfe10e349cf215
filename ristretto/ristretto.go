// Package ristretto backs a relay.QueryCache with the Ristretto cache
// library.
//
// Ristretto admits entries asynchronously and restricts key types, so the
// adapter narrows relay.Cache's key parameter to [Key] and a Set may not be
// visible to an immediately following Get.
package ristretto

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/byte4ever/relay"
)

type (
	// Key constrains keys to the intersection of ristretto.Key and
	// comparable, as relay.Cache requires.
	Key interface {
		uint64 | string | byte | int | int32 | uint32 | int64
	}

	// adapter bridges a ristretto.Cache to the relay.Cache contract. Every
	// entry costs 1, so MaxCost behaves as an entry count.
	adapter[K Key, V any] struct {
		cache *ristretto.Cache[K, V]
	}
)

// MustNew builds a Ristretto-backed cache holding roughly cfg.MaxSize
// entries. NumCounters follows Ristretto's guidance of ten admission
// counters per entry. Panics when the configuration is rejected, e.g. a
// non-positive capacity.
//
//nolint:ireturn,varnamelen // generic type params K,V are idiomatic in Go
func MustNew[K Key, V any](cfg relay.CacheConfig) relay.Cache[K, V] {
	// nolint:mnd // counter and buffer sizing per the Ristretto docs.
	cache, err := ristretto.NewCache(&ristretto.Config[K, V]{
		NumCounters: int64(cfg.MaxSize) * 10,
		MaxCost:     int64(cfg.MaxSize),
		BufferItems: 64,
	})
	if err != nil {
		panic("relay/ristretto: failed to build cache: " + err.Error())
	}

	return &adapter[K, V]{cache: cache}
}

// Get returns the live entry for key, if any.
//
//nolint:ireturn // generic type parameter V, not an interface
func (a *adapter[K, V]) Get(key K) (V, bool) {
	return a.cache.Get(key)
}

// Set stores value under key for the given lifetime. Admission is
// asynchronous; the write becomes visible once Ristretto's buffers drain.
func (a *adapter[K, V]) Set(key K, value V, ttl time.Duration) {
	a.cache.SetWithTTL(key, value, 1, ttl)
}

// Delete drops the entry for key, if present.
func (a *adapter[K, V]) Delete(key K) {
	a.cache.Del(key)
}
