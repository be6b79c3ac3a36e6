package marketdata

import (
	"fmt"
	"sort"
	"time"

	"vela/internal/domain"
)

// seriesKey uniquely identifies one fetched series. Ranges are exact: two
// overlapping but unequal ranges are distinct entries.
type seriesKey struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
}

func (k seriesKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%d", k.Instrument, k.Timeframe, k.Start, k.End)
}

// Entry is one cached series together with its insertion time. It is the
// unit the persistence mirror serializes.
type Entry struct {
	Key      seriesKey    `json:"key"`
	Bars     []domain.Bar `json:"bars"`
	StoredAt time.Time    `json:"stored_at"`
	Seq      uint64       `json:"seq"`
}

// Snapshot is the serializable image of the whole series cache.
type Snapshot struct {
	Entries []Entry `json:"entries"`
}

// seriesCache is an expiring, capacity-bounded map of fetched series.
// Entries expire lazily: removal happens on the next operation that touches
// the cache, never on a background timer. The caller holds the lock.
type seriesCache struct {
	entries    map[seriesKey]*Entry
	maxEntries int
	ttl        time.Duration
	seq        uint64
}

func newSeriesCache(maxEntries int, ttl time.Duration) *seriesCache {
	return &seriesCache{
		entries:    make(map[seriesKey]*Entry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// get returns the live entry for the exact key, pruning expired entries
// first. There is no partial-range matching.
func (c *seriesCache) get(key seriesKey, now time.Time) ([]domain.Bar, bool) {
	c.pruneExpired(now)
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.Bars, true
}

// put inserts or refreshes an entry, then applies expiry and capacity
// eviction.
func (c *seriesCache) put(key seriesKey, bars []domain.Bar, now time.Time) {
	c.seq++
	c.entries[key] = &Entry{Key: key, Bars: bars, StoredAt: now, Seq: c.seq}
	c.evict(now)
}

// pruneExpired removes all entries whose age exceeds the TTL.
func (c *seriesCache) pruneExpired(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.StoredAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// evict prunes expired entries, then removes the oldest remaining entries
// (by StoredAt, ties broken by insertion sequence) until the store is
// within capacity.
func (c *seriesCache) evict(now time.Time) {
	c.pruneExpired(now)
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}

	ordered := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].StoredAt.Equal(ordered[j].StoredAt) {
			return ordered[i].StoredAt.Before(ordered[j].StoredAt)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	for _, e := range ordered[:len(c.entries)-c.maxEntries] {
		delete(c.entries, e.Key)
	}
}

// clear removes entries scoped by instrument and timeframe code. An empty
// scope field matches all values, so clear("", "") wipes the whole store and
// clear("", "15m") drops every 15m series. Clearing keys that do not exist
// is not an error.
func (c *seriesCache) clear(instrument, timeframe string) {
	if instrument == "" && timeframe == "" {
		c.entries = make(map[seriesKey]*Entry)
		return
	}
	for key := range c.entries {
		if instrument != "" && key.Instrument != instrument {
			continue
		}
		if timeframe != "" && key.Timeframe != timeframe {
			continue
		}
		delete(c.entries, key)
	}
}

// snapshot returns a stable image of the cache for persistence, ordered by
// insertion sequence.
func (c *seriesCache) snapshot() Snapshot {
	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return Snapshot{Entries: entries}
}

// restore loads a persisted snapshot, dropping entries that expired while
// on disk and re-numbering the insertion sequence.
func (c *seriesCache) restore(snap Snapshot, now time.Time) {
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Seq < snap.Entries[j].Seq })
	for _, e := range snap.Entries {
		if now.Sub(e.StoredAt) > c.ttl {
			continue
		}
		c.seq++
		restored := e
		restored.Seq = c.seq
		c.entries[e.Key] = &restored
	}
	c.evict(now)
}

func (c *seriesCache) len() int { return len(c.entries) }
