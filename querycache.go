package relay

import (
	"fmt"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

type (
	// Cache is the interface cache adapters must implement. TTL is passed
	// per Set call; the underlying library handles expiration.
	Cache[K comparable, V any] interface {
		// Get retrieves a cached value by key.
		Get(key K) (V, bool)
		// Set stores a value with the given TTL.
		Set(key K, value V, ttl time.Duration)
		// Delete removes a cached entry by key.
		Delete(key K)
	}

	// CacheConfig holds configuration for a cache instance.
	CacheConfig struct {
		// Options holds adapter-specific settings.
		Options map[string]any
		// TTL is the time-to-live for cached entries.
		TTL time.Duration
		// MaxSize is the maximum number of entries.
		MaxSize int
	}

	cacheConfigFile struct {
		Caches map[string]cacheConfigJSON `json:"caches"`
	}

	cacheConfigJSON struct {
		Options map[string]any `json:"options,omitempty"`
		TTL     string         `json:"ttl"`
		MaxSize int            `json:"max_size"`
	}
)

// LoadCacheConfig reads a JSON configuration file and returns the
// CacheConfig for the named cache entry.
func LoadCacheConfig(path, name string) (CacheConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CacheConfig{}, fmt.Errorf("relay: read cache config: %w", err)
	}

	var cfg cacheConfigFile

	if err = json.Unmarshal(data, &cfg); err != nil {
		return CacheConfig{}, fmt.Errorf("relay: parse cache config: %w", err)
	}

	raw, ok := cfg.Caches[name]
	if !ok {
		return CacheConfig{}, fmt.Errorf("relay: cache %q not found in config", name)
	}

	cc := CacheConfig{
		Options: raw.Options,
		MaxSize: raw.MaxSize,
	}

	if raw.TTL != "" {
		ttl, ttlErr := time.ParseDuration(raw.TTL)
		if ttlErr != nil {
			return CacheConfig{}, fmt.Errorf("relay: cache %q: ttl: %w", name, ttlErr)
		}

		cc.TTL = ttl
	}

	return cc, nil
}

// ---------------------------------------------------------------------------
// QueryCache
// ---------------------------------------------------------------------------.

// QueryCache keeps successful read responses keyed by endpoint and drops
// them when a mutation makes them stale. The pipeline stores GET responses
// after success and invalidates after successful mutations: the mutated
// endpoint's own entry plus any related read endpoints registered with
// [QueryCache.InvalidateOnWrite].
//
// Purely in-memory bookkeeping; the backing [Cache] decides eviction.
type QueryCache struct {
	cache Cache[string, *Response]
	ttl   time.Duration

	mu      sync.RWMutex
	related map[string][]string // write endpoint -> read endpoints to drop
}

// NewQueryCache creates a query cache backed by cache, storing entries with
// the given TTL.
func NewQueryCache(cache Cache[string, *Response], ttl time.Duration) *QueryCache {
	return &QueryCache{
		cache:   cache,
		ttl:     ttl,
		related: make(map[string][]string),
	}
}

// InvalidateOnWrite registers read endpoints whose cached responses become
// stale when writeEndpoint succeeds.
func (qc *QueryCache) InvalidateOnWrite(writeEndpoint string, readEndpoints ...string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.related[writeEndpoint] = append(qc.related[writeEndpoint], readEndpoints...)
}

// Lookup returns the cached response for a read endpoint.
func (qc *QueryCache) Lookup(endpoint string) (*Response, bool) {
	return qc.cache.Get(endpoint)
}

// Store caches a successful read response.
func (qc *QueryCache) Store(endpoint string, resp *Response) {
	qc.cache.Set(endpoint, resp, qc.ttl)
}

// Invalidate drops the endpoint's own entry and every read entry registered
// as related to it.
func (qc *QueryCache) Invalidate(endpoint string) {
	qc.cache.Delete(endpoint)

	qc.mu.RLock()
	related := qc.related[endpoint]
	qc.mu.RUnlock()

	for _, key := range related {
		qc.cache.Delete(key)
	}
}
