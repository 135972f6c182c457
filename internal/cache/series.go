// Package cache keeps recently materialized chart series in process memory.
package cache

import (
	"encoding/json"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/observability"
)

const megabyte = 1024 * 1024

// SeriesCache stores JSON-encoded daily series in a freecache ring buffer.
type SeriesCache struct {
	cache *freecache.Cache
	ttl   time.Duration
}

// NewSeriesCache allocates a cache of sizeMegabytes. Entries expire after ttl.
func NewSeriesCache(sizeMegabytes int, ttl time.Duration) *SeriesCache {
	if sizeMegabytes <= 0 {
		sizeMegabytes = 1
	}
	return &SeriesCache{
		cache: freecache.NewCache(sizeMegabytes * megabyte),
		ttl:   ttl,
	}
}

// Get returns the cached series for key.
func (c *SeriesCache) Get(key string) ([]analytics.DailyPoint, bool) {
	raw, err := c.cache.Get([]byte(key))
	if err != nil {
		observability.RecordCacheLookup(false)
		return nil, false
	}

	var points []analytics.DailyPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		log.Errorf("series cache: decode %s: %s", key, err)
		c.cache.Del([]byte(key))
		observability.RecordCacheLookup(false)
		return nil, false
	}
	observability.RecordCacheLookup(true)
	return points, true
}

// Set stores points under key. Series too large for the cache are skipped.
func (c *SeriesCache) Set(key string, points []analytics.DailyPoint) {
	raw, err := json.Marshal(points)
	if err != nil {
		log.Errorf("series cache: encode %s: %s", key, err)
		return
	}
	if err := c.cache.Set([]byte(key), raw, int(c.ttl.Seconds())); err != nil {
		log.Debugf("series cache: set %s: %s", key, err)
	}
}

// Delete drops every given key.
func (c *SeriesCache) Delete(keys ...string) {
	for _, key := range keys {
		c.cache.Del([]byte(key))
	}
}

// EntryCount reports how many entries are currently stored.
func (c *SeriesCache) EntryCount() int64 {
	return c.cache.EntryCount()
}
