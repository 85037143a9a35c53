// Command proxy runs the caching, forwarding HTTP/1.1 proxy: GET
// responses are cached and revalidated per Cache-Control, POST and
// CONNECT are tunnelled straight through.
package main

import (
	"compress/gzip"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache/compresscache"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/config"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/engine"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/logging"
	promcollector "github.com/SuoChen1008/caching-fttp-proxy-server/internal/metrics/prometheus"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/prewarmer"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/server"
	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/upstream"
)

// metricsAddr is the listen address for the Prometheus scrape endpoint,
// separate from the proxy's own address since /metrics is served over
// plain net/http rather than the raw-byte proxy protocol.
const metricsAddr = ":9090"

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("proxy: parse flags: %v", err)
	}

	logger, err := logging.Open(cfg.LogPath)
	if err != nil {
		log.Fatalf("proxy: open log file: %v", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	metricsCollector := promcollector.New()
	go serveMetrics(logger)

	store, err := compresscache.NewGzip(cache.NewMemoryStore(), gzip.DefaultCompression, logger)
	if err != nil {
		log.Fatalf("proxy: build cache store: %v", err)
	}

	lru := cache.New(
		cache.WithStore(store),
		cache.WithCapacity(cfg.CacheCapacity),
		cache.WithLogger(logger),
		cache.WithMetrics(metricsCollector),
	)

	exchangers := upstream.NewExchangerPool(nil, metricsCollector)
	eng := engine.New(lru,
		engine.WithLogger(logger),
		engine.WithMetrics(metricsCollector),
		engine.WithExchangerPool(exchangers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Prewarm != "" {
		prewarmAtStartup(ctx, eng, cfg.Prewarm, logger)
	}

	srv, err := server.New(cfg.Addr, cfg.Workers, eng, server.WithLogger(logger))
	if err != nil {
		log.Fatalf("proxy: start server: %v", err)
	}
	logger.Note("listening on " + srv.Addr().String())

	if err := srv.Serve(ctx); err != nil {
		logger.Error("serve: " + err.Error())
	}
	srv.Shutdown()
}

func prewarmAtStartup(ctx context.Context, eng *engine.Engine, list string, logger *logging.Logger) {
	targets, err := prewarmer.ParseTargets(list)
	if err != nil {
		logger.Warning("prewarm: " + err.Error())
		return
	}
	pw, err := prewarmer.New(prewarmer.Config{Engine: eng, Concurrency: 8})
	if err != nil {
		logger.Warning("prewarm: " + err.Error())
		return
	}
	stats := pw.Run(ctx, targets)
	logger.Note("prewarm complete")
	for _, e := range stats.Errors {
		logger.Warning("prewarm: " + e.Error())
	}
}

func serveMetrics(logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		logger.Warning("metrics server: " + err.Error())
	}
}
