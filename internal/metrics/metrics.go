// Package metrics exposes Prometheus collectors for the forumwatch pipeline.
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
	fetchResultsTotal          *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	completionAttemptsTotal    *prometheus.CounterVec
	feedItemsTotal             *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	scanLinksTotal             *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumwatch_fetch_results_total",
				Help: "Feed fetches, labeled by site and status class.",
			},
			[]string{"site", "class"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forumwatch_fetch_duration_seconds",
				Help:    "Wall-clock duration of a FetchAll batch.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		completionAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumwatch_completion_attempts_total",
				Help: "Completion API attempts, labeled by job and HTTP status.",
			},
			[]string{"job", "code"},
		)

		feedItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumwatch_feed_items_total",
				Help: "Items decoded from feeds, labeled by format.",
			},
			[]string{"format"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumwatch_candidates_total",
				Help: "Candidate domains, labeled by verdict (discovered, verified, failed).",
			},
			[]string{"verdict"},
		)

		scanLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumwatch_scan_links_total",
				Help: "Links upserted by scans, labeled by kind (found, new).",
			},
			[]string{"kind"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumwatch_pipeline_runs_total",
				Help: "Pipeline invocations, labeled by status.",
			},
			[]string{"status"},
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

// StatusClass buckets an HTTP status; zero means the request never produced a response.
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetched URL.
func ObserveFetch(rawURL string, status int) {
	Init()
	fetchResultsTotal.WithLabelValues(SanitizeSite(rawURL), StatusClass(status)).Inc()
}

// ObserveFetchBatch records the duration of a FetchAll batch for a stage.
func ObserveFetchBatch(stage string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveCompletionAttempt records a completion API attempt.
func ObserveCompletionAttempt(job string, code int) {
	Init()
	completionAttemptsTotal.WithLabelValues(job, strconv.Itoa(code)).Inc()
}

// ObserveFeedItems records how many items a decoder produced.
func ObserveFeedItems(format string, n int) {
	Init()
	if n > 0 {
		feedItemsTotal.WithLabelValues(format).Add(float64(n))
	}
}

// ObserveCandidate increments the candidate counter for a verdict.
func ObserveCandidate(verdict string) {
	Init()
	candidatesTotal.WithLabelValues(verdict).Inc()
}

// ObserveScan records found and new link counts for a scan.
func ObserveScan(found, fresh int) {
	Init()
	scanLinksTotal.WithLabelValues("found").Add(float64(found))
	scanLinksTotal.WithLabelValues("new").Add(float64(fresh))
}

// ObservePipelineRun increments the run counter for the given status.
func ObservePipelineRun(status string) {
	Init()
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
