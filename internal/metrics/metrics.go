// Package metrics exposes Prometheus collectors for the discovery and extraction service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	discoveryURLsTotal         *prometheus.CounterVec
	discoveryErrorsTotal       *prometheus.CounterVec
	discoveryRunsTotal         *prometheus.CounterVec
	catalogOutcomesTotal       *prometheus.CounterVec
	extractionTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	rateLimitHitsTotal         *prometheus.CounterVec
	pacerDelaySeconds          *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobLogDroppedTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		discoveryURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_urls_total",
				Help: "URLs returned by discoverers before dedup, labeled by source.",
			},
			[]string{"source"},
		)

		discoveryErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_errors_total",
				Help: "Discoverer errors, labeled by source.",
			},
			[]string{"source"},
		)

		discoveryRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_runs_total",
				Help: "Completed discovery runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		catalogOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_catalog_outcomes_total",
				Help: "Per-URL catalog outcomes (new, updated, alias, error).",
			},
			[]string{"outcome"},
		)

		extractionTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_documents_total",
				Help: "Documents processed by the extraction pipeline, labeled by final status.",
			},
			[]string{"status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_duration_seconds",
				Help:    "Outbound fetch latency, labeled by component and status code.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"component", "code"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "403/429 responses and blocked pagination probes, labeled by component.",
			},
			[]string{"component"},
		)

		pacerDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pacer_delay_seconds",
				Help:    "Histogram of politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobLogDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "joblog_entries_dropped_total",
				Help: "Job log entries that never reached a sink, labeled by entry type and reason.",
			},
			[]string{"type", "reason"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDiscovered records URLs and errors reported by one discoverer.
func ObserveDiscovered(source string, urls, errs int) {
	Init()
	if urls > 0 {
		discoveryURLsTotal.WithLabelValues(source).Add(float64(urls))
	}
	if errs > 0 {
		discoveryErrorsTotal.WithLabelValues(source).Add(float64(errs))
	}
}

// ObserveRun increments the run counter for outcome (success or error).
func ObserveRun(outcome string) {
	Init()
	discoveryRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCatalogOutcome counts one per-URL persistence outcome.
func ObserveCatalogOutcome(outcome string) {
	Init()
	catalogOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveExtraction counts one processed document by final status.
func ObserveExtraction(status string) {
	Init()
	extractionTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one outbound fetch.
func ObserveFetch(component, site string, code int, bytesFetched int, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(component, strconv.Itoa(code)).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveRateLimitHit counts a rate-limit signal seen by component.
func ObserveRateLimitHit(component string) {
	Init()
	rateLimitHitsTotal.WithLabelValues(component).Inc()
}

// ObservePacerDelay records the duration of a politeness wait.
func ObservePacerDelay(domain string, duration time.Duration) {
	Init()
	pacerDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJobLogDropped counts a job log entry discarded before batching.
func ObserveJobLogDropped(entryType, reason string) {
	Init()
	if entryType == "" {
		entryType = "unknown"
	}
	jobLogDroppedTotal.WithLabelValues(entryType, reason).Inc()
}
