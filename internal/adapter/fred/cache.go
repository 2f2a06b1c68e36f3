package fred

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/macro-ingest/internal/domain"
	"github.com/couchcryptid/macro-ingest/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedSource wraps a Source with an in-memory LRU cache for metadata:
// series metadata, series releases, and the release list. Observations and
// release dates always go to the inner source.
type CachedSource struct {
	inner   domain.Source
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a source. Entries expire
// after ttl according to clock.
func NewCachedSource(inner domain.Source, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedSource) FetchSeriesMetadata(ctx context.Context, seriesID string) (domain.Series, error) {
	return cached(c, "series:"+seriesID, func() (domain.Series, error) {
		return c.inner.FetchSeriesMetadata(ctx, seriesID)
	})
}

func (c *CachedSource) FetchSeriesRelease(ctx context.Context, seriesID string) (domain.SeriesReleaseCollection, error) {
	return cached(c, "series_release:"+seriesID, func() (domain.SeriesReleaseCollection, error) {
		return c.inner.FetchSeriesRelease(ctx, seriesID)
	})
}

func (c *CachedSource) FetchReleases(ctx context.Context) (domain.ReleaseCollection, error) {
	return cached(c, "releases", func() (domain.ReleaseCollection, error) {
		return c.inner.FetchReleases(ctx)
	})
}

func (c *CachedSource) FetchSeriesObservations(ctx context.Context, seriesID string) (domain.TimeSeries, error) {
	return c.inner.FetchSeriesObservations(ctx, seriesID)
}

func (c *CachedSource) FetchReleaseDates(ctx context.Context, releaseID int) (domain.ReleaseDateCollection, error) {
	return c.inner.FetchReleaseDates(ctx, releaseID)
}

// cached serves key from the cache or calls load. Errors are never cached so
// a failed fetch is retried on the next call.
func cached[T any](c *CachedSource, key string, load func() (T, error)) (T, error) {
	if v, ok := c.cache.get(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.MetadataCache.WithLabelValues("hit").Inc()
			return typed, nil
		}
	}
	c.metrics.MetadataCache.WithLabelValues("miss").Inc()
	result, err := load()
	if err != nil {
		return result, err
	}
	c.cache.put(key, result)
	return result, nil
}

// lruCache is a simple thread-safe LRU cache with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
