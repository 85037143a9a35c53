package compresscache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
)

// NewBrotli wraps store with brotli compression at the given level
// (0-11, defaulting to 6).
func NewBrotli(store cache.Store, level int, logger *logging.Logger) (*Store, error) {
	if level == 0 {
		level = 6
	}
	if level < 0 || level > 11 {
		return nil, fmt.Errorf("compresscache: invalid brotli level %d", level)
	}
	return newStore(store, Brotli, logger, brotliCompressor(level), brotliDecompress)
}

func brotliCompressor(level int) compressFunc {
	return func(data []byte) ([]byte, error) {
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, level)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("brotli write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("brotli close: %w", err)
		}
		return buf.Bytes(), nil
	}
}

func brotliDecompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli read: %w", err)
	}
	return out, nil
}
