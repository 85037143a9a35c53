package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/httpmsg"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/metrics"
)

// DefaultCapacity is the reference proxy's fixed cache bound: at most
// this many entries are retained before the least-recently-used one is
// evicted.
const DefaultCapacity = 10240

// LRU is the bounded, most-recently-used-ordered cache of CacheEntry
// values, kept in a list/map pair for O(1) move-to-front and O(1)
// eviction, the representation spec.md's design notes call out as the
// intended one. Each list node holds the whole entry, including the
// response bytes captured at Insert; the same bytes are also written to
// a pluggable Store, and Get returns the Store's copy when it has one.
type LRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
	store    Store
	logger   *logging.Logger
	metrics  metrics.Collector
}

type node struct {
	entry CacheEntry
}

// Option configures an LRU at construction time.
type Option func(*LRU)

// WithStore overrides the backing Store for serialized response bytes.
// The default is an unwrapped MemoryStore.
func WithStore(s Store) Option {
	return func(l *LRU) { l.store = s }
}

// WithLogger attaches a logging.Logger for eviction and insertion notes.
func WithLogger(lg *logging.Logger) Option {
	return func(l *LRU) { l.logger = lg }
}

// WithMetrics attaches a metrics.Collector for cache operation counters.
func WithMetrics(m metrics.Collector) Option {
	return func(l *LRU) { l.metrics = m }
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(capacity int) Option {
	return func(l *LRU) { l.capacity = capacity }
}

// New returns an empty LRU cache.
func New(opts ...Option) *LRU {
	l := &LRU{
		capacity: DefaultCapacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		store:    NewMemoryStore(),
		logger:   logging.Default(),
		metrics:  metrics.Default,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Insert parses response's Cache-Control and ETag headers, builds a
// CacheEntry for url, stores it (moving it to the front if url was
// already present, evicting the least-recently-used entry if the cache
// is full and url is new), and returns the entry it stored.
//
// A response with no Cache-Control header at all is treated as never
// expiring — a known, overly permissive default carried over unchanged
// from the reference implementation (spec.md design note: flag, don't
// silently fix).
func (l *LRU) Insert(ctx context.Context, id, url, response string) (CacheEntry, error) {
	start := time.Now()
	headers := httpmsg.ParseHeaders(response)
	cacheControl := headers["Cache-Control"]
	cc := httpmsg.ParseCacheControl(cacheControl)

	_, mustRevalidate := cc["must-revalidate"]
	_, noCache := cc["no-cache"]
	maxAgeSeconds := 0
	if v, ok := cc["max-age"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxAgeSeconds = n
		}
	}
	neverExpires := cacheControl == ""

	if etag := headers["Etag"]; etag != "" {
		l.logger.NoteWithID(id, "ETag: "+etag)
	}
	if cacheControl != "" {
		l.logger.NoteWithID(id, "Cache-Control: "+cacheControl)
	}

	entry := CacheEntry{
		url:            url,
		response:       []byte(response),
		mustRevalidate: mustRevalidate,
		noCache:        noCache,
		neverExpires:   neverExpires,
		expireTime:     time.Now().Add(time.Duration(maxAgeSeconds) * time.Second),
	}

	if err := l.store.Set(ctx, url, entry.response); err != nil {
		l.metrics.RecordCacheOperation("set", "error", time.Since(start))
		return CacheEntry{}, err
	}

	l.mu.Lock()
	if el, ok := l.index[url]; ok {
		el.Value = &node{entry: entry}
		l.order.MoveToFront(el)
	} else {
		el := l.order.PushFront(&node{entry: entry})
		l.index[url] = el
		if l.order.Len() > l.capacity {
			l.evictLocked()
		}
	}
	count := int64(l.order.Len())
	l.mu.Unlock()

	l.metrics.RecordCacheOperation("set", "success", time.Since(start))
	l.metrics.RecordCacheEntries(count)
	return entry, nil
}

// Get returns the CacheEntry stored for url and moves it to the front
// of the LRU order, or false if url is not present.
func (l *LRU) Get(ctx context.Context, url string) (CacheEntry, bool) {
	start := time.Now()

	l.mu.Lock()
	el, ok := l.index[url]
	if !ok {
		l.mu.Unlock()
		l.metrics.RecordCacheOperation("get", "miss", time.Since(start))
		return CacheEntry{}, false
	}
	l.order.MoveToFront(el)
	entry := el.Value.(*node).entry
	l.mu.Unlock()

	// The Store lookup re-fetches the response bytes through whatever
	// wrapper (decompression, decryption) sits underneath, rather than
	// trusting the in-memory copy captured at Insert time, so a Store
	// swap changes what bytes come back without changing eviction state.
	if raw, found, err := l.store.Get(ctx, url); err == nil && found {
		entry.response = raw
	}

	l.metrics.RecordCacheOperation("get", "hit", time.Since(start))
	return entry, true
}

// evictLocked removes the least-recently-used entry. l.mu must be held.
func (l *LRU) evictLocked() {
	back := l.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*node).entry
	l.logger.Note("evicted " + entry.url + " from cache")
	delete(l.index, entry.url)
	l.order.Remove(back)
	_ = l.store.Delete(context.Background(), entry.url)
	l.metrics.RecordCacheOperation("evict", "success", 0)
}

// Len returns the current number of entries held in the cache.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
