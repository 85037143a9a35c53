// Package cache implements the bounded, in-memory LRU cache of raw HTTP
// responses that sits in front of the upstream client. The freshness
// rules on CacheEntry are a direct port of the reference proxy's cache
// semantics; the byte storage underneath is a pluggable Store so it can
// be swapped for a compressing, encrypting, or alternate in-memory
// backend without touching the freshness logic.
package cache

import "time"

// CacheEntry is an immutable snapshot of one cached response and the
// freshness metadata derived from its headers at insertion time. Get and
// Insert return entries by value so a caller can act on them without
// holding any lock, mirroring the reference implementation's
// shared_ptr<CacheEntry> snapshots.
type CacheEntry struct {
	url            string
	response       []byte
	mustRevalidate bool
	neverExpires   bool
	noCache        bool
	expireTime     time.Time
}

// URL is the cache key the entry was stored under.
func (e CacheEntry) URL() string { return e.url }

// Response is the raw cached response bytes.
func (e CacheEntry) Response() []byte { return e.response }

// MustRevalidate reports whether the response carried
// Cache-Control: must-revalidate.
func (e CacheEntry) MustRevalidate() bool { return e.mustRevalidate }

// NoCache reports whether the response carried Cache-Control: no-cache.
func (e CacheEntry) NoCache() bool { return e.noCache }

// NeverExpires reports whether the response carried no Cache-Control
// header at all. This mirrors a known-permissive default in the
// reference implementation (flagged, not silently corrected): an
// origin that omits Cache-Control entirely is treated as cacheable
// forever rather than as uncacheable.
func (e CacheEntry) NeverExpires() bool { return e.neverExpires }

// ExpireTime is the absolute time this entry's max-age elapses.
func (e CacheEntry) ExpireTime() time.Time { return e.expireTime }

// IsExpired reports whether the entry must be treated as stale: never
// for a never-expires entry, always for must-revalidate or no-cache
// entries, otherwise once ExpireTime has passed.
func (e CacheEntry) IsExpired(now time.Time) bool {
	if e.neverExpires {
		return false
	}
	if e.mustRevalidate || e.noCache {
		return true
	}
	return now.After(e.expireTime)
}

// IsFresh reports whether the entry is within its lifetime: true for a
// never-expires entry, otherwise only before ExpireTime. It does not
// look at must-revalidate or no-cache, so IsFresh and IsExpired are not
// strict complements — an entry with must-revalidate set is, before its
// expire time, both fresh and expired. The request engine therefore
// checks MustRevalidate/NoCache first, then IsFresh, then IsExpired.
func (e CacheEntry) IsFresh(now time.Time) bool {
	if e.neverExpires {
		return true
	}
	return now.Before(e.expireTime)
}
