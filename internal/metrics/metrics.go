package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Insight outcomes reported by the controller.
const (
	InsightOK            = "ok"
	InsightNotConfigured = "not_configured"
	InsightFailed        = "failed"
	InsightStale         = "stale"
)

// Collector holds all Prometheus metrics for the application.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Simulation metrics
	Ticks         prometheus.Counter
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter
	Resets        prometheus.Counter

	// Insight metrics
	InsightRequests *prometheus.CounterVec
	InsightDuration prometheus.Histogram
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_ticks_total",
			Help:      "Total number of simulated days applied",
		}),
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_started_total",
			Help:      "Total number of runs started from day 0",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_completed_total",
			Help:      "Total number of runs that reached the last day",
		}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_resets_total",
			Help:      "Total number of resets and reconfigurations",
		}),
		InsightRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insight_requests_total",
				Help:      "Insight requests by outcome",
			},
			[]string{"outcome"},
		),
		InsightDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insight_request_duration_seconds",
			Help:      "Insight request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_cache_hits_total",
			Help:      "Total number of insight cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_cache_misses_total",
			Help:      "Total number of insight cache misses",
		}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Ticks,
		c.RunsStarted,
		c.RunsCompleted,
		c.Resets,
		c.InsightRequests,
		c.InsightDuration,
		c.CacheHits,
		c.CacheMisses,
	)

	return c
}

// Registry exposes the underlying registry for gathering
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordTick() {
	if c == nil {
		return
	}
	c.Ticks.Inc()
}

func (c *Collector) RecordRunStarted() {
	if c == nil {
		return
	}
	c.RunsStarted.Inc()
}

func (c *Collector) RecordRunCompleted() {
	if c == nil {
		return
	}
	c.RunsCompleted.Inc()
}

func (c *Collector) RecordReset() {
	if c == nil {
		return
	}
	c.Resets.Inc()
}

func (c *Collector) RecordInsight(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.InsightRequests.WithLabelValues(outcome).Inc()
	c.InsightDuration.Observe(d.Seconds())
}

func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.CacheHits.Inc()
}

func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.CacheMisses.Inc()
}
