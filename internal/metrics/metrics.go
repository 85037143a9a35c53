// Package metrics defines a pluggable interface for observing the
// proxy's cache, worker pool, and upstream behavior, so any concrete
// monitoring system (Prometheus, or nothing at all) can be wired in
// without the rest of the proxy depending on it.
package metrics

import "time"

// Collector receives observations from the cache, request engine,
// worker pool, and tunnel forwarder. Implementations must be safe for
// concurrent use.
type Collector interface {
	// RecordCacheOperation records a cache operation ("get", "set",
	// "evict", "refresh") and its result ("hit", "miss", "success",
	// "error", "stale-served").
	RecordCacheOperation(operation, result string, duration time.Duration)

	// RecordCacheEntries records the current number of entries held in
	// the cache.
	RecordCacheEntries(count int64)

	// RecordRequest records a fully-handled client request: its method,
	// the cache disposition that determined the response ("hit",
	// "miss", "revalidated", "refreshed", "bypass"), and how long it
	// took end to end.
	RecordRequest(method, disposition string, duration time.Duration)

	// RecordUpstreamExchange records one upstream TCP exchange
	// (connect+send+receive) and its outcome ("ok", "timeout", "error").
	RecordUpstreamExchange(outcome string, duration time.Duration)

	// RecordWorkerPoolQueueDepth records the number of tasks currently
	// waiting in the worker pool queue.
	RecordWorkerPoolQueueDepth(depth int)

	// RecordTunnelSession records one CONNECT tunnel's lifetime.
	RecordTunnelSession(duration time.Duration)
}

// NoOpCollector implements Collector with no-op operations; it is the
// default when no monitoring system is configured.
type NoOpCollector struct{}

func (NoOpCollector) RecordCacheOperation(operation, result string, duration time.Duration) {}
func (NoOpCollector) RecordCacheEntries(count int64)                                        {}
func (NoOpCollector) RecordRequest(method, disposition string, duration time.Duration)       {}
func (NoOpCollector) RecordUpstreamExchange(outcome string, duration time.Duration)          {}
func (NoOpCollector) RecordWorkerPoolQueueDepth(depth int)                                   {}
func (NoOpCollector) RecordTunnelSession(duration time.Duration)                             {}

var _ Collector = NoOpCollector{}

// Default is the no-op collector used when the server is not configured
// with one.
var Default Collector = NoOpCollector{}
