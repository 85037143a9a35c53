package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestLRUInsertAndGet(t *testing.T) {
	c := New()
	ctx := context.Background()

	resp := "HTTP/1.1 200 OK\r\nCache-Control: max-age=60\r\n\r\nbody"
	entry, err := c.Insert(ctx, "id-1", "http://example.com/", resp)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if entry.NeverExpires() {
		t.Errorf("expected entry with Cache-Control not to never-expire")
	}

	got, ok := c.Get(ctx, "http://example.com/")
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(got.Response()) != resp {
		t.Errorf("got %q, want %q", got.Response(), resp)
	}
}

func TestLRUMissingCacheControlNeverExpires(t *testing.T) {
	c := New()
	ctx := context.Background()

	entry, err := c.Insert(ctx, "id-1", "http://example.com/", "HTTP/1.1 200 OK\r\n\r\nbody")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !entry.NeverExpires() {
		t.Errorf("expected entry with no Cache-Control to never expire")
	}
	if !entry.IsFresh(time.Now()) {
		t.Errorf("expected never-expiring entry to be fresh")
	}
}

func TestLRUMustRevalidateIsFreshBeforeMaxAgeButExpired(t *testing.T) {
	c := New()
	ctx := context.Background()

	entry, err := c.Insert(ctx, "id-1", "http://example.com/", "HTTP/1.1 200 OK\r\nCache-Control: max-age=60, must-revalidate\r\n\r\nbody")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	now := time.Now()
	if !entry.IsFresh(now) {
		t.Errorf("must-revalidate entry should still be fresh before its max-age elapses")
	}
	if !entry.IsExpired(now) {
		t.Errorf("must-revalidate entry should be treated as requiring revalidation (expired)")
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(WithCapacity(2))
	ctx := context.Background()

	c.Insert(ctx, "id-1", "http://a/", "HTTP/1.1 200 OK\r\n\r\nA")
	c.Insert(ctx, "id-2", "http://b/", "HTTP/1.1 200 OK\r\n\r\nB")
	// touch a so b becomes LRU
	c.Get(ctx, "http://a/")
	c.Insert(ctx, "id-3", "http://c/", "HTTP/1.1 200 OK\r\n\r\nC")

	if _, ok := c.Get(ctx, "http://b/"); ok {
		t.Errorf("expected b to have been evicted")
	}
	if _, ok := c.Get(ctx, "http://a/"); !ok {
		t.Errorf("expected a to survive eviction")
	}
	if _, ok := c.Get(ctx, "http://c/"); !ok {
		t.Errorf("expected c to be present")
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestLRUUpdateExistingEntryMovesToFront(t *testing.T) {
	c := New(WithCapacity(2))
	ctx := context.Background()

	c.Insert(ctx, "id-1", "http://a/", "HTTP/1.1 200 OK\r\n\r\nA1")
	c.Insert(ctx, "id-2", "http://b/", "HTTP/1.1 200 OK\r\n\r\nB")
	c.Insert(ctx, "id-3", "http://a/", "HTTP/1.1 200 OK\r\n\r\nA2")
	c.Insert(ctx, "id-4", "http://c/", "HTTP/1.1 200 OK\r\n\r\nC")

	if _, ok := c.Get(ctx, "http://b/"); ok {
		t.Errorf("expected b to have been evicted after a was refreshed")
	}
	got, ok := c.Get(ctx, "http://a/")
	if !ok {
		t.Fatalf("expected a to survive")
	}
	if string(got.Response()) != "HTTP/1.1 200 OK\r\n\r\nA2" {
		t.Errorf("expected refreshed response body, got %q", got.Response())
	}
}

func TestLRUCapacityBound(t *testing.T) {
	c := New(WithCapacity(10))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		c.Insert(ctx, fmt.Sprintf("id-%d", i), fmt.Sprintf("http://host-%d/", i), "HTTP/1.1 200 OK\r\n\r\nx")
	}
	if got := c.Len(); got != 10 {
		t.Errorf("Len() = %d, want 10", got)
	}
}
