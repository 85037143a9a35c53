// Package compresscache wraps a cache.Store to compress values at rest,
// trading CPU for the memory the bounded LRU cache is allowed to hold.
// Gzip, Brotli, and Snappy are supported; all three can decompress each
// other's output via a one-byte algorithm marker, so switching
// algorithms mid-deployment doesn't strand previously-written entries.
package compresscache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
)

// Algorithm identifies a supported at-rest compression codec.
type Algorithm int

const (
	Gzip Algorithm = iota
	Brotli
	Snappy
)

func (a Algorithm) String() string {
	switch a {
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// Stats reports cumulative compression effectiveness.
type Stats struct {
	CompressedBytes   int64
	UncompressedBytes int64
	CompressedCount   int64
	UncompressedCount int64
}

// CompressionRatio is CompressedBytes/UncompressedBytes, 0 if nothing
// has been compressed yet.
func (s Stats) CompressionRatio() float64 {
	if s.UncompressedBytes == 0 {
		return 0
	}
	return float64(s.CompressedBytes) / float64(s.UncompressedBytes)
}

type compressFunc func([]byte) ([]byte, error)
type decompressFunc func([]byte) ([]byte, error)

// Store is the common at-rest compression wrapper; each algorithm gets
// a thin constructor below that fills in its compress/decompress pair.
type Store struct {
	inner     cache.Store
	algorithm Algorithm
	logger    *logging.Logger
	compress  compressFunc
	decompress decompressFunc

	compressedBytes   atomic.Int64
	uncompressedBytes atomic.Int64
	compressedCount   atomic.Int64
	uncompressedCount atomic.Int64
}

func newStore(inner cache.Store, algo Algorithm, logger *logging.Logger, compress compressFunc, decompress decompressFunc) (*Store, error) {
	if inner == nil {
		return nil, fmt.Errorf("compresscache: Store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{inner: inner, algorithm: algo, logger: logger, compress: compress, decompress: decompress}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(data) < 1 {
		return data, true, nil
	}

	marker := data[0]
	if marker == 0 {
		return data[1:], true, nil
	}

	storedAlgo := Algorithm(marker - 1)
	decompressFn := s.decompress
	if storedAlgo != s.algorithm {
		decompressFn, err = decompressorFor(storedAlgo)
		if err != nil {
			return nil, false, err
		}
	}
	plain, err := decompressFn(data[1:])
	if err != nil {
		s.logger.Warning(fmt.Sprintf("compresscache: decompression failed for key %s (algorithm %s): %v", key, storedAlgo, err))
		return nil, false, err
	}
	return plain, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	compressed, err := s.compress(value)
	if err != nil {
		s.logger.Warning(fmt.Sprintf("compresscache: compression failed for key %s, storing uncompressed: %v", key, err))
		data := make([]byte, len(value)+1)
		data[0] = 0
		copy(data[1:], value)
		s.uncompressedCount.Add(1)
		s.uncompressedBytes.Add(int64(len(value)))
		return s.inner.Set(ctx, key, data)
	}

	data := make([]byte, len(compressed)+1)
	data[0] = byte(s.algorithm + 1)
	copy(data[1:], compressed)

	s.compressedCount.Add(1)
	s.compressedBytes.Add(int64(len(compressed)))
	s.uncompressedBytes.Add(int64(len(value)))
	return s.inner.Set(ctx, key, data)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// Stats returns cumulative compression statistics for this Store.
func (s *Store) Stats() Stats {
	return Stats{
		CompressedBytes:   s.compressedBytes.Load(),
		UncompressedBytes: s.uncompressedBytes.Load(),
		CompressedCount:   s.compressedCount.Load(),
		UncompressedCount: s.uncompressedCount.Load(),
	}
}

func decompressorFor(algo Algorithm) (decompressFunc, error) {
	switch algo {
	case Gzip:
		return gzipDecompress, nil
	case Brotli:
		return brotliDecompress, nil
	case Snappy:
		return snappyDecompress, nil
	default:
		return nil, fmt.Errorf("compresscache: unsupported algorithm %d", algo)
	}
}

var (
	_ cache.Store = (*Store)(nil)
)
