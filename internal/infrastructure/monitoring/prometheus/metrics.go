// Package prometheus exposes the pipeline's operational metrics.
package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stratlens"

// Default buckets.
var (
	httpDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	pipelineDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}
	langGenDurationBuckets  = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
)

// Metrics holds the registered metric vectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Generation pipeline
	GenerationsTotal     *prometheus.CounterVec
	GenerationDuration   prometheus.Histogram
	StageDuration        *prometheus.HistogramVec
	SegmentFailuresTotal *prometheus.CounterVec

	// Collaborators
	LangGenRequestsTotal *prometheus.CounterVec
	LangGenDuration      prometheus.Histogram
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
}

// New registers all pipeline metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "status"})
	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   httpDurationBuckets,
	}, []string{"method", "path"})

	m.GenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Generation runs by final status",
	}, []string{"status"})
	m.GenerationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "End-to-end generation run duration",
		Buckets:   pipelineDurationBuckets,
	})
	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_stage_duration_seconds",
		Help:      "Per-stage generation duration",
		Buckets:   pipelineDurationBuckets,
	}, []string{"stage"})
	m.SegmentFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segment_failures_total",
		Help:      "Segments that failed during generation",
	}, []string{"segment"})

	m.LangGenRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "langgen_requests_total",
		Help:      "Language generation requests by outcome",
	}, []string{"status"})
	m.LangGenDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "langgen_request_duration_seconds",
		Help:      "Language generation request duration",
		Buckets:   langGenDurationBuckets,
	})
	m.CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Cache hits",
	}, []string{"cache"})
	m.CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Cache misses",
	}, []string{"cache"})
	m.EventsConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_consumed_total",
		Help:      "Kafka events consumed by outcome",
	}, []string{"topic", "outcome"})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GenerationsTotal,
		m.GenerationDuration,
		m.StageDuration,
		m.SegmentFailuresTotal,
		m.LangGenRequestsTotal,
		m.LangGenDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsConsumedTotal,
	)
	return m
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveGeneration records one finished generation run.
func (m *Metrics) ObserveGeneration(status string, duration time.Duration) {
	m.GenerationsTotal.WithLabelValues(status).Inc()
	m.GenerationDuration.Observe(duration.Seconds())
}

// ObserveStage records one pipeline stage for one segment.
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveLangGen records one language-generation call.
func (m *Metrics) ObserveLangGen(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.LangGenRequestsTotal.WithLabelValues(status).Inc()
	m.LangGenDuration.Observe(duration.Seconds())
}
