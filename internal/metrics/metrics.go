// Package metrics exposes Prometheus collectors for the paperscout service.
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
	fetchTotal                  *prometheus.CounterVec
	fetchDurationSeconds        *prometheus.HistogramVec
	fetchRetriesTotal           *prometheus.CounterVec
	fetchCacheHitsTotal         *prometheus.CounterVec
	fetchBytesTotal             *prometheus.CounterVec
	politenessWaitSeconds       prometheus.Histogram
	rateLimitDelaySeconds       *prometheus.HistogramVec
	robotsTLSHandshakeTimeouts  prometheus.Counter
	headlessPromotionsTotal     *prometheus.CounterVec
	anomalySignalsTotal         *prometheus.CounterVec
	recordsTotal                *prometheus.CounterVec
	runsTotal                   *prometheus.CounterVec
	runDurationSeconds          prometheus.Histogram
	enrichActiveWorkers         prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	artifactWriteFailuresTotal  prometheus.Counter
	runEventPublishFailureTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_fetch_total",
				Help: "Upstream fetch attempts, labeled by page kind and HTTP status (0 for transport failures).",
			},
			[]string{"kind", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperscout_fetch_duration_seconds",
				Help:    "Histogram of upstream fetch latencies including retries, labeled by page kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_fetch_retries_total",
				Help: "Retries issued after a transient upstream status, labeled by page kind.",
			},
			[]string{"kind"},
		)

		fetchCacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_fetch_cache_hits_total",
				Help: "Fetches answered from the response cache, labeled by page kind.",
			},
			[]string{"kind"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		politenessWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paperscout_politeness_wait_seconds",
				Help:    "Histogram of politeness jitter waits before live requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paperscout_rate_limit_delay_seconds",
				Help:    "Histogram of token bucket wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsTLSHandshakeTimeouts = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "paperscout_robots_tls_handshake_timeout_total",
				Help: "Total TLS handshake timeouts encountered while fetching robots.txt.",
			},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_headless_promotions_total",
				Help: "Probe responses re-fetched with the headless browser, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		anomalySignalsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_anomaly_signals_total",
				Help: "Anomaly signals raised on search pages, labeled by signal.",
			},
			[]string{"signal"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_records_total",
				Help: "Records passing each pipeline stage, labeled by stage.",
			},
			[]string{"stage"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperscout_runs_total",
				Help: "Pipeline runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paperscout_run_duration_seconds",
				Help:    "Histogram of whole pipeline run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		enrichActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "paperscout_enrich_active_workers",
				Help: "Number of enrichment workers currently processing a record.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		artifactWriteFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "paperscout_artifact_write_failures_total",
				Help: "Artifact writes that failed.",
			},
		)

		runEventPublishFailureTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "paperscout_run_event_publish_failures_total",
				Help: "Run completion events that could not be published.",
			},
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

// ObserveFetch records one upstream attempt.
func ObserveFetch(kind string, status int, site string, bytesFetched int) {
	if fetchTotal == nil {
		return
	}
	fetchTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveFetchDuration records the total latency of a fetch including retries.
func ObserveFetchDuration(kind string, duration time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for kind.
func ObserveRetry(kind string) {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveCacheHit increments the cache hit counter for kind.
func ObserveCacheHit(kind string) {
	if fetchCacheHitsTotal == nil {
		return
	}
	fetchCacheHitsTotal.WithLabelValues(kind).Inc()
}

// ObservePolitenessWait records a jitter wait.
func ObservePolitenessWait(duration time.Duration) {
	if politenessWaitSeconds == nil {
		return
	}
	politenessWaitSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsTLSHandshakeTimeout increments the robots.txt handshake timeout counter.
func ObserveRobotsTLSHandshakeTimeout() {
	if robotsTLSHandshakeTimeouts == nil {
		return
	}
	robotsTLSHandshakeTimeouts.Inc()
}

// ObserveHeadlessPromotion records whether a headless re-fetch replaced the probe.
func ObserveHeadlessPromotion(outcome string) {
	if headlessPromotionsTotal == nil {
		return
	}
	headlessPromotionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAnomalySignal increments the counter for a fired signal.
func ObserveAnomalySignal(signal string) {
	if anomalySignalsTotal == nil {
		return
	}
	anomalySignalsTotal.WithLabelValues(signal).Inc()
}

// ObserveRecords adds n records to the stage counter.
func ObserveRecords(stage string, n int) {
	if recordsTotal == nil || n <= 0 {
		return
	}
	recordsTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveRun records a finished run.
func ObserveRun(outcome string, duration time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active enrichment workers gauge.
func IncActiveWorkers() {
	if enrichActiveWorkers == nil {
		return
	}
	enrichActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active enrichment workers gauge.
func DecActiveWorkers() {
	if enrichActiveWorkers == nil {
		return
	}
	enrichActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveArtifactWriteFailure increments the artifact failure counter.
func ObserveArtifactWriteFailure() {
	if artifactWriteFailuresTotal == nil {
		return
	}
	artifactWriteFailuresTotal.Inc()
}

// ObserveRunEventPublishFailure increments the publish failure counter.
func ObserveRunEventPublishFailure() {
	if runEventPublishFailureTotal == nil {
		return
	}
	runEventPublishFailureTotal.Inc()
}
