// Package prometheus implements metrics.Collector for Prometheus. It is
// a separate package so the proxy's core does not pull in the
// client_golang dependency unless Prometheus metrics are actually wired.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/metrics"
)

// Collector implements metrics.Collector backed by Prometheus metric
// families.
type Collector struct {
	cacheOps        *prometheus.CounterVec
	cacheOpDuration *prometheus.HistogramVec
	cacheEntries    prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamOps     *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	poolQueueDepth  prometheus.Gauge
	tunnelDuration  prometheus.Histogram
}

// Config controls the registry and naming prefix the collector
// registers its metric families under.
type Config struct {
	// Registry to register with. Defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
	// Namespace prefixes every metric name. Defaults to "proxy".
	Namespace string
}

// New creates a Collector with the default registry and namespace.
func New() *Collector {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a Collector using the given Config.
func NewWithConfig(cfg Config) *Collector {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "proxy"
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		cacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations by type and result.",
		}, []string{"operation", "result"}),
		cacheOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Duration of cache operations in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"operation"}),
		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_entries",
			Help:      "Current number of entries held in the cache.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "requests_total",
			Help:      "Total number of handled client requests by method and disposition.",
		}, []string{"method", "disposition"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of handled client requests in seconds.",
			Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"method", "disposition"}),
		upstreamOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "upstream_exchanges_total",
			Help:      "Total number of upstream exchanges by outcome.",
		}, []string{"outcome"}),
		upstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "upstream_exchange_duration_seconds",
			Help:      "Duration of upstream exchanges in seconds.",
			Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
		}, []string{"outcome"}),
		poolQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "worker_pool_queue_depth",
			Help:      "Current number of tasks waiting in the worker pool queue.",
		}),
		tunnelDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "tunnel_session_duration_seconds",
			Help:      "Duration of CONNECT tunnel sessions in seconds.",
			Buckets:   []float64{.1, 1, 10, 60, 300, 1800},
		}),
	}
}

func (c *Collector) RecordCacheOperation(operation, result string, duration time.Duration) {
	c.cacheOps.WithLabelValues(operation, result).Inc()
	c.cacheOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) RecordCacheEntries(count int64) {
	c.cacheEntries.Set(float64(count))
}

func (c *Collector) RecordRequest(method, disposition string, duration time.Duration) {
	c.requests.WithLabelValues(method, disposition).Inc()
	c.requestDuration.WithLabelValues(method, disposition).Observe(duration.Seconds())
}

func (c *Collector) RecordUpstreamExchange(outcome string, duration time.Duration) {
	c.upstreamOps.WithLabelValues(outcome).Inc()
	c.upstreamLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordWorkerPoolQueueDepth(depth int) {
	c.poolQueueDepth.Set(float64(depth))
}

func (c *Collector) RecordTunnelSession(duration time.Duration) {
	c.tunnelDuration.Observe(duration.Seconds())
}

var _ metrics.Collector = (*Collector)(nil)
