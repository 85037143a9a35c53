package compresscache

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
)

// NewSnappy wraps store with snappy compression.
func NewSnappy(store cache.Store, logger *logging.Logger) (*Store, error) {
	return newStore(store, Snappy, logger, snappyCompress, snappyDecompress)
}

func snappyCompress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func snappyDecompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}
