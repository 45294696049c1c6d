// Package metrics exposes Prometheus collectors for the ingestion service.
//
// Collectors are registered by Init. Observe helpers are no-ops until Init has
// run, so library packages can record unconditionally.
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
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	sectionFailuresTotal       *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	articlesSavedTotal         *prometheus.CounterVec
	persistConflictsTotal      prometheus.Counter
	fetchesTotal               *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	pacingDelaySeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsingest_runs_total",
				Help: "Total number of ingestion runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newsingest_run_duration_seconds",
				Help:    "Histogram of ingestion run durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		sectionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsingest_section_failures_total",
				Help: "Total number of sections that failed during a run.",
			},
			[]string{"section"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsingest_candidates_total",
				Help: "Total number of candidates built, labeled by section.",
			},
			[]string{"section"},
		)

		articlesSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsingest_articles_saved_total",
				Help: "Total number of articles persisted, labeled by section.",
			},
			[]string{"section"},
		)

		persistConflictsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newsingest_persist_conflicts_total",
				Help: "Bulk saves dropped because of a uniqueness conflict.",
			},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsingest_fetches_total",
				Help: "Total number of page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsingest_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by site.",
			},
			[]string{"site"},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newsingest_pacing_delay_seconds",
				Help:    "Histogram of time spent waiting for a request slot.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
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

// ObserveRun records the outcome and duration of one ingestion run.
func ObserveRun(status string, duration time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveSection records candidates and saves for one section, and whether it failed.
func ObserveSection(section string, candidates, saved int, failed bool) {
	if candidatesTotal == nil {
		return
	}
	candidatesTotal.WithLabelValues(section).Add(float64(candidates))
	articlesSavedTotal.WithLabelValues(section).Add(float64(saved))
	if failed {
		sectionFailuresTotal.WithLabelValues(section).Inc()
	}
}

// ObservePersistConflict counts a bulk save discarded on a uniqueness conflict.
func ObservePersistConflict() {
	if persistConflictsTotal == nil {
		return
	}
	persistConflictsTotal.Inc()
}

// ObserveFetch increments the fetch counter for the site of rawURL.
func ObserveFetch(rawURL string, status string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
}

// ObserveFetchRetry increments the retry counter for the site of rawURL.
func ObserveFetchRetry(rawURL string) {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObservePacingDelay records the duration of a rate limit wait.
func ObservePacingDelay(duration time.Duration) {
	if pacingDelaySeconds == nil {
		return
	}
	pacingDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
