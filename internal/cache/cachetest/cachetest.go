// Package cachetest provides a shared conformance test for cache.Store
// implementations so every backend (memory, secure, compressed,
// freecache) is held to the same Get/Set/Delete contract.
package cachetest

import (
	"bytes"
	"context"
	"testing"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
)

// Store exercises a cache.Store implementation's basic round-trip and
// deletion contract.
func Store(t *testing.T, store cache.Store) {
	t.Helper()
	ctx := context.Background()
	key := "testKey"

	if _, ok, err := store.Get(ctx, key); err != nil {
		t.Fatalf("error getting key: %v", err)
	} else if ok {
		t.Fatal("retrieved key before adding it")
	}

	val := []byte("some bytes")
	if err := store.Set(ctx, key, val); err != nil {
		t.Fatalf("error setting key: %v", err)
	}

	retVal, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("error getting key: %v", err)
	}
	if !ok {
		t.Fatal("could not retrieve an element we just added")
	}
	if !bytes.Equal(retVal, val) {
		t.Fatalf("retrieved %q, want %q", retVal, val)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("error deleting key: %v", err)
	}

	if _, ok, err := store.Get(ctx, key); err != nil {
		t.Fatalf("error getting key: %v", err)
	} else if ok {
		t.Fatal("deleted key still present")
	}
}
