// Package config parses the proxy's startup flags, following the same
// flag-block shape main.cpp's PORT/NUMBER_OF_WORKERS/LOG_PATH constants
// implied once they became runtime-configurable.
package config

import (
	"flag"
	"os"
)

// Config holds the proxy's startup configuration.
type Config struct {
	// Addr is the listen address, e.g. ":12345".
	Addr string

	// Workers is the fixed worker pool size.
	Workers int

	// LogPath is the append-only request log file path.
	LogPath string

	// CacheCapacity bounds the number of entries the LRU cache retains.
	CacheCapacity int

	// Prewarm is a comma-separated list of "host[:port][/path]" targets
	// fetched into the cache at startup, before the listener accepts
	// traffic.
	Prewarm string
}

// defaults mirror main.cpp's PORT (12345), NUMBER_OF_WORKERS (100), and
// LOG_PATH ("/var/log/erss/proxy.log") constants.
const (
	defaultAddr          = ":12345"
	defaultWorkers       = 100
	defaultLogPath       = "/var/log/erss/proxy.log"
	defaultCacheCapacity = 10240
)

// Parse builds a Config from args (pass os.Args[1:] in production),
// falling back to $PROXY_ADDR when -addr is not given, for the common
// case of running a test instance on an ephemeral port without editing
// flags.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("proxy", flag.ContinueOnError)

	addrDefault := defaultAddr
	if env := os.Getenv("PROXY_ADDR"); env != "" {
		addrDefault = env
	}

	cfg := Config{}
	fs.StringVar(&cfg.Addr, "addr", addrDefault, "listen address")
	fs.IntVar(&cfg.Workers, "workers", defaultWorkers, "worker pool size")
	fs.StringVar(&cfg.LogPath, "log", defaultLogPath, "request log file path")
	fs.IntVar(&cfg.CacheCapacity, "cache-capacity", defaultCacheCapacity, "maximum cache entries")
	fs.StringVar(&cfg.Prewarm, "prewarm", "", "comma-separated host[:port][/path] list to prewarm at startup")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
