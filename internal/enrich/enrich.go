// Package enrich adds geocoding to a model.Job after normalization: a
// remote posting is detected heuristically and skipped outright,
// everything else goes through a rate-limited, cached Geocoder.
// Geocoding failures are always non-fatal.
package enrich

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"jobpipe/internal/model"
)

// Coordinates is a resolved lat/lng pair.
type Coordinates struct {
	Lat, Lng float64
}

// Geocoder resolves a free-text location string to coordinates. The
// concrete provider (Google, Mapbox, Nominatim, ...) lives outside
// this package; SPEC_FULL.md explicitly keeps provider internals out
// of scope.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coordinates, error)
}

// lruCache is a small fixed-capacity LRU keyed by normalized location
// string, avoiding repeat geocoding calls for the same career page's
// many postings that share one office location.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value Coordinates
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (Coordinates, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Coordinates{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lruCache) put(key string, value Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

// Enricher wraps a Geocoder with a token-bucket rate limiter and LRU
// cache, per SPEC_FULL.md §4.5.
type Enricher struct {
	geocoder      Geocoder
	limiter       *rate.Limiter
	cache         *lruCache
	acquireCeiling time.Duration
}

func NewEnricher(geocoder Geocoder, ratePerSecond float64, cacheSize int, acquireCeiling time.Duration) *Enricher {
	return &Enricher{
		geocoder:       geocoder,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		cache:          newLRUCache(cacheSize),
		acquireCeiling: acquireCeiling,
	}
}

// Enrich populates job's coordinates unless the posting is remote or
// geocoding fails for any reason; it never returns an error.
func (e *Enricher) Enrich(ctx context.Context, job *model.Job) {
	if job.IsRemote {
		return
	}

	query := locationQuery(*job)
	if query == "" {
		return
	}

	if coords, ok := e.cache.get(query); ok {
		job.Latitude = &coords.Lat
		job.Longitude = &coords.Lng
		job.GeocodingSource = "cache"
		stampGeocodedAt(job)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.acquireCeiling)
	defer cancel()
	if err := e.limiter.Wait(waitCtx); err != nil {
		return
	}

	coords, err := e.geocoder.Geocode(ctx, query)
	if err != nil {
		return
	}

	e.cache.put(query, coords)
	job.Latitude = &coords.Lat
	job.Longitude = &coords.Lng
	job.GeocodingSource = "geocoder"
	stampGeocodedAt(job)
}

func stampGeocodedAt(job *model.Job) {
	now := currentTime()
	job.GeocodedAt = &now
}

// currentTime returns time.Now.
func currentTime() time.Time { return time.Now() }

func locationQuery(job model.Job) string {
	parts := []string{}
	if job.City != "" {
		parts = append(parts, job.City)
	}
	if job.Country != "" {
		parts = append(parts, job.Country)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(job.LocationRaw)
	}
	return strings.Join(parts, ", ")
}
