// Package cache holds decoded source responses for a bounded time so repeat
// reads skip the network, the quota window and the request spacing.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Responses is a TTL cache keyed by endpoint.
type Responses struct {
	cache      *gocache.Cache
	defaultTTL time.Duration
}

// New creates a cache whose entries live for defaultTTL unless Set is given
// an explicit TTL. Expired entries are swept every cleanup interval.
func New(defaultTTL, cleanup time.Duration) *Responses {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if cleanup <= 0 {
		cleanup = defaultTTL
	}
	return &Responses{
		cache:      gocache.New(defaultTTL, cleanup),
		defaultTTL: defaultTTL,
	}
}

// Get returns the cached value for key.
func (r *Responses) Get(key string) (any, bool) {
	return r.cache.Get(key)
}

// Set stores value under key. A ttl of zero uses the default.
func (r *Responses) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	r.cache.Set(key, value, ttl)
}

// GetOrLoad returns the cached value or calls load and caches its result.
// The bool reports whether the value came from the cache. Errors are not cached.
func (r *Responses) GetOrLoad(key string, ttl time.Duration, load func() (any, error)) (any, bool, error) {
	if val, found := r.Get(key); found {
		return val, true, nil
	}
	val, err := load()
	if err != nil {
		return nil, false, err
	}
	r.Set(key, val, ttl)
	return val, false, nil
}

// Flush drops every entry.
func (r *Responses) Flush() {
	r.cache.Flush()
}

// Len reports the number of live entries.
func (r *Responses) Len() int {
	return r.cache.ItemCount()
}
