// cache.go
// --------
// Category-aware response cache. Entries hold the raw JSON a read returned,
// keyed by category plus parameters. A fresh entry is served with zero
// network I/O; a stale entry is served immediately while a background
// revalidation replaces it (stale-while-revalidate); a missing entry blocks
// on the fetch. Revalidations are deduplicated through singleflight so
// concurrent stale reads issue one fetch. Categories with a poll interval
// get a background poller per key, started on first read-through and stopped
// on invalidation.
package resilientclient

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CacheKey is the structured identity of a cacheable read.
type CacheKey struct {
	Category Category
	Params   []string
}

// NewCacheKey builds a key from a category and its parameters.
func NewCacheKey(category Category, params ...string) CacheKey {
	return CacheKey{Category: category, Params: params}
}

// String returns the canonical form "category:param1:param2".
func (k CacheKey) String() string {
	if len(k.Params) == 0 {
		return string(k.Category)
	}
	return string(k.Category) + ":" + strings.Join(k.Params, ":")
}

// FetchFunc produces a fresh value for a cache key.
type FetchFunc func(ctx context.Context) ([]byte, error)

type cacheEntry struct {
	key       CacheKey
	value     []byte
	fetchedAt time.Time
	fetch     FetchFunc
}

// Cache is the shared response cache. All methods are safe for concurrent
// use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	pollers  map[string]chan struct{}
	policies map[Category]CachePolicy
	group    singleflight.Group
	logger   *log.Logger
	closed   bool

	// now is injectable for staleness tests.
	now func() time.Time
}

// NewCache builds a cache with the given policy table. A nil table uses
// DefaultPolicies.
func NewCache(policies map[Category]CachePolicy, logger *log.Logger) *Cache {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = log.New()
	}
	return &Cache{
		entries:  make(map[string]*cacheEntry),
		pollers:  make(map[string]chan struct{}),
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Cache) policyFor(category Category) CachePolicy {
	if p, ok := c.policies[category]; ok {
		return p
	}
	return c.policies[CategoryDefault]
}

// ReadThrough returns the cached value for key when fresh, serves a stale
// value while revalidating in the background, or blocks on fetch when no
// value is cached yet.
func (c *Cache) ReadThrough(ctx context.Context, key CacheKey, fetch FetchFunc) ([]byte, error) {
	k := key.String()
	policy := c.policyFor(key.Category)

	c.mu.Lock()
	entry, ok := c.entries[k]
	if ok {
		entry.fetch = fetch
		value := append([]byte(nil), entry.value...)
		fresh := c.now().Before(entry.fetchedAt.Add(policy.StaleAfter))
		c.mu.Unlock()
		if fresh {
			return value, nil
		}
		// Stale: hand back the last known value and revalidate behind the
		// caller's back.
		go func() {
			if _, err := c.revalidate(context.Background(), key, fetch, true); err != nil {
				c.logger.WithFields(log.Fields{"cache_key": k, "error": err}).
					Debug("background revalidation failed")
			}
		}()
		return value, nil
	}
	c.mu.Unlock()

	return c.revalidate(ctx, key, fetch, false)
}

// revalidate fetches and stores a fresh value, deduplicating concurrent
// fetches for the same key. Background refreshes pass onlyIfPresent so a
// result landing after an invalidation is dropped instead of resurrecting
// the entry.
func (c *Cache) revalidate(ctx context.Context, key CacheKey, fetch FetchFunc, onlyIfPresent bool) ([]byte, error) {
	k := key.String()
	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, data, fetch, onlyIfPresent)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (c *Cache) store(key CacheKey, value []byte, fetch FetchFunc, onlyIfPresent bool) {
	k := key.String()
	policy := c.policyFor(key.Category)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; !ok && onlyIfPresent {
		return
	}
	c.entries[k] = &cacheEntry{
		key:       key,
		value:     value,
		fetchedAt: c.now(),
		fetch:     fetch,
	}
	if policy.PollInterval > 0 && fetch != nil && !c.closed {
		c.startPollerLocked(key, policy.PollInterval)
	}
}

// Write stores a value directly (e.g. the body a successful write returned)
// and invalidates every entry matching the declared patterns.
func (c *Cache) Write(key CacheKey, value []byte, invalidates ...string) {
	c.store(key, value, nil, false)
	for _, pattern := range invalidates {
		c.Invalidate(pattern)
	}
}

// Get returns the cached value for key regardless of freshness.
func (c *Cache) Get(key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key.String()]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.value...), true
}

// Invalidate removes every entry whose canonical key matches pattern. A
// trailing "*" matches by prefix; anything else matches exactly. Pollers for
// removed keys are stopped.
func (c *Cache) Invalidate(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if matchKeyPattern(pattern, k) {
			delete(c.entries, k)
			c.stopPollerLocked(k)
		}
	}
}

// Clear drops every entry and stops all pollers.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	for k := range c.pollers {
		c.stopPollerLocked(k)
	}
}

// Close stops all background pollers. The cache remains readable.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for k := range c.pollers {
		c.stopPollerLocked(k)
	}
}

func matchKeyPattern(pattern, key string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}

// startPollerLocked launches the background poller for key unless one is
// already running. Callers hold c.mu.
func (c *Cache) startPollerLocked(key CacheKey, interval time.Duration) {
	k := key.String()
	if _, running := c.pollers[k]; running {
		return
	}
	stop := make(chan struct{})
	c.pollers[k] = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				entry, ok := c.entries[k]
				var fetch FetchFunc
				if ok {
					fetch = entry.fetch
				}
				c.mu.Unlock()
				if fetch == nil {
					// Entry written directly; poll once a read-through
					// registers a fetcher.
					continue
				}
				if _, err := c.revalidate(context.Background(), key, fetch, true); err != nil {
					c.logger.WithFields(log.Fields{"cache_key": k, "error": err}).
						Debug("poll refresh failed")
				}
			}
		}
	}()
}

// stopPollerLocked stops the poller for canonical key k, if any. Callers
// hold c.mu.
func (c *Cache) stopPollerLocked(k string) {
	if stop, ok := c.pollers[k]; ok {
		close(stop)
		delete(c.pollers, k)
	}
}
