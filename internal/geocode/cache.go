package geocode

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultCacheTTL = 24 * time.Hour
	// sharedLookupTimeout bounds an upstream call that no single caller owns.
	sharedLookupTimeout = time.Minute
)

// Cache memoises successful lookups of an underlying Geocoder.
// Concurrent lookups that normalise to the same key share one upstream call.
type Cache struct {
	next  Geocoder
	ttl   time.Duration
	clock func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  Result
	expires time.Time
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithCacheClock overrides the time source, mainly for tests.
func WithCacheClock(clock func() time.Time) CacheOption {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewCache wraps next with a TTL cache.
func NewCache(next Geocoder, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := &Cache{
		next:    next,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geocode implements Geocoder.
func (c *Cache) Geocode(ctx context.Context, address string) (Result, error) {
	key := NormalizeKey(address)
	if key == "" {
		return Result{}, errEmptyAddress
	}
	if res, ok := c.lookup(key); ok {
		return res, nil
	}

	// The shared call outlives whichever caller started it; each caller
	// still gives up on its own context.
	ch := c.group.DoChan(key, func() (any, error) {
		if res, ok := c.lookup(key); ok {
			return res, nil
		}
		upstream, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		res, err := c.next.Geocode(upstream, address)
		if err != nil {
			return Result{}, err
		}
		c.store(key, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

func (c *Cache) lookup(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !c.clock().Before(e.expires) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.result, true
}

func (c *Cache) store(key string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: res, expires: c.clock().Add(c.ttl)}
}

// NormalizeKey folds case, applies NFKC and collapses whitespace so that
// "Main St.  1" and "main st. 1" share a cache slot.
func NormalizeKey(address string) string {
	s := norm.NFKC.String(address)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
