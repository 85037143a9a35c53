package compresscache

import (
	"context"
	"testing"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache/cachetest"
)

func TestGzipStoreConformance(t *testing.T) {
	s, err := NewGzip(cache.NewMemoryStore(), 0, nil)
	if err != nil {
		t.Fatalf("NewGzip: %v", err)
	}
	cachetest.Store(t, s)
}

func TestBrotliStoreConformance(t *testing.T) {
	s, err := NewBrotli(cache.NewMemoryStore(), 0, nil)
	if err != nil {
		t.Fatalf("NewBrotli: %v", err)
	}
	cachetest.Store(t, s)
}

func TestSnappyStoreConformance(t *testing.T) {
	s, err := NewSnappy(cache.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewSnappy: %v", err)
	}
	cachetest.Store(t, s)
}

func TestCrossAlgorithmDecompression(t *testing.T) {
	backend := cache.NewMemoryStore()
	gz, err := NewGzip(backend, 0, nil)
	if err != nil {
		t.Fatalf("NewGzip: %v", err)
	}
	br, err := NewBrotli(backend, 0, nil)
	if err != nil {
		t.Fatalf("NewBrotli: %v", err)
	}

	ctx := context.Background()
	if err := gz.Set(ctx, "k", []byte("hello world")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := br.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(got) != "hello world" {
		t.Fatalf("got %q, %v, want hello world, true", got, ok)
	}
}

func TestStatsTrackCompression(t *testing.T) {
	s, err := NewGzip(cache.NewMemoryStore(), 0, nil)
	if err != nil {
		t.Fatalf("NewGzip: %v", err)
	}
	ctx := context.Background()
	payload := make([]byte, 4096)
	if err := s.Set(ctx, "k", payload); err != nil {
		t.Fatalf("Set: %v", err)
	}
	stats := s.Stats()
	if stats.CompressedCount != 1 {
		t.Errorf("CompressedCount = %d, want 1", stats.CompressedCount)
	}
	if stats.UncompressedBytes != int64(len(payload)) {
		t.Errorf("UncompressedBytes = %d, want %d", stats.UncompressedBytes, len(payload))
	}
}
