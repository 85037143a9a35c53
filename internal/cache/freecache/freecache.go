// Package freecache implements cache.Store on top of
// github.com/coocood/freecache, an alternate zero-GC-overhead in-memory
// backend. It is process-local like the default MemoryStore — not a
// persistent or distributed cache — so swapping it in does not expand
// the proxy's scope past the spec's single-node, in-memory model; it
// exists to demonstrate that cache.Store is a real seam, not a
// theoretical one.
package freecache

import (
	"context"
	"fmt"

	"github.com/coocood/freecache"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
)

// Store wraps a freecache.Cache.
type Store struct {
	cache *freecache.Cache
}

// New creates a Store backed by a freecache.Cache of the given size in
// bytes (512KB minimum, enforced by freecache itself).
func New(sizeBytes int) *Store {
	return &Store{cache: freecache.NewCache(sizeBytes)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, err := s.cache.Get([]byte(key))
	if err != nil {
		if err == freecache.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value with no expiration; freecache evicts by its own LRU
// once its fixed byte budget is exhausted.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if err := s.cache.Set([]byte(key), value, 0); err != nil {
		return fmt.Errorf("freecache: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.cache.Del([]byte(key))
	return nil
}

// EntryCount returns the number of entries currently held.
func (s *Store) EntryCount() int64 { return s.cache.EntryCount() }

var _ cache.Store = (*Store)(nil)
