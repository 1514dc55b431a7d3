// Package metrics provides Prometheus metrics for the source registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all registry metrics.
	Namespace = "source_registry"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can run without a registry.
type Metrics struct {
	FetchesTotal        *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	RobotsChecksTotal   *prometheus.CounterVec
	ScansTotal          *prometheus.CounterVec
	AssetsProcessed     *prometheus.CounterVec
	NodesMapped         prometheus.Counter
	LLMCallsTotal       *prometheus.CounterVec
	GroundingOutcomes   *prometheus.CounterVec
	VisualAidsReturned  prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initFetchMetrics(factory)
	m.initRegistryMetrics(factory)
	m.initGroundingMetrics(factory)
	m.initHTTPMetrics(factory)

	return m
}

func (m *Metrics) initFetchMetrics(factory promauto.Factory) {
	m.FetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fetcher",
			Name:      "requests_total",
			Help:      "Total number of page fetches by outcome",
		},
		[]string{"host", "outcome"},
	)

	m.FetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "fetcher",
			Name:      "request_duration_seconds",
			Help:      "Duration of page fetches including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"host"},
	)

	m.RobotsChecksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fetcher",
			Name:      "robots_checks_total",
			Help:      "Total number of robots.txt checks by status",
		},
		[]string{"status"},
	)
}

func (m *Metrics) initRegistryMetrics(factory promauto.Factory) {
	m.ScansTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "scans_total",
			Help:      "Total number of seed scans by status",
		},
		[]string{"seed", "status"},
	)

	m.AssetsProcessed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "assets_processed_total",
			Help:      "Assets processed during scans by outcome",
		},
		[]string{"outcome"},
	)

	m.NodesMapped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "toc_nodes_mapped_total",
			Help:      "Total TOC nodes persisted",
		},
	)
}

func (m *Metrics) initGroundingMetrics(factory promauto.Factory) {
	m.LLMCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total LLM calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.GroundingOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "grounding",
			Name:      "outcomes_total",
			Help:      "Grounding results by stage and unavailable kind",
		},
		[]string{"stage", "kind"},
	)

	m.VisualAidsReturned = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "visual",
			Name:      "aids_returned_total",
			Help:      "Visual aids returned after filtering and scoring",
		},
	)
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
}

// ObserveFetch records one fetch outcome.
func (m *Metrics) ObserveFetch(host, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(host, outcome).Inc()
	m.FetchDuration.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveRobots records one robots.txt check.
func (m *Metrics) ObserveRobots(status string) {
	if m == nil {
		return
	}
	m.RobotsChecksTotal.WithLabelValues(status).Inc()
}

// ObserveScan records a finished seed scan.
func (m *Metrics) ObserveScan(seed, status string, nodes int) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(seed, status).Inc()
	m.NodesMapped.Add(float64(nodes))
}

// ObserveAsset records one asset outcome (scanned, skipped, failed).
func (m *Metrics) ObserveAsset(outcome string) {
	if m == nil {
		return
	}
	m.AssetsProcessed.WithLabelValues(outcome).Inc()
}

// ObserveLLM records one model call.
func (m *Metrics) ObserveLLM(operation, outcome string) {
	if m == nil {
		return
	}
	m.LLMCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveGrounding records a grounding stage result; kind is "ok" on success.
func (m *Metrics) ObserveGrounding(stage, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "ok"
	}
	m.GroundingOutcomes.WithLabelValues(stage, kind).Inc()
}

// ObserveVisualAids records the number of aids returned.
func (m *Metrics) ObserveVisualAids(n int) {
	if m == nil {
		return
	}
	m.VisualAidsReturned.Add(float64(n))
}

// GinMiddleware records request count and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
