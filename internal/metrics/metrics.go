// Package metrics exposes Prometheus collectors for the brochure crawlers.
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
	brochuresTotal             *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	assetsTotal                *prometheus.CounterVec
	skippedPagesTotal          *prometheus.CounterVec
	politenessDelaySeconds     *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		brochuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brochures_total",
				Help: "Brochures processed, labeled by store and outcome status.",
			},
			[]string{"store", "status"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brochure_fetches_total",
				Help: "Outbound fetches, labeled by site and status class.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brochure_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		assetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brochure_assets_total",
				Help: "Page and document assets probed, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		skippedPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brochure_skipped_pages_total",
				Help: "Pages dropped during assembly because they could not be decoded.",
			},
			[]string{"store"},
		)

		politenessDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brochure_politeness_delay_seconds",
				Help:    "Histogram of politeness waits before outbound requests.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"site"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "brochure_active_workers",
				Help: "Number of workers currently processing a brochure.",
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

// ObserveBrochure counts one brochure outcome.
func ObserveBrochure(storeID, status string) {
	Init()
	brochuresTotal.WithLabelValues(storeID, status).Inc()
}

// ObserveFetch counts one outbound fetch and the bytes it returned.
func ObserveFetch(rawURL, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveAsset counts one collector probe, labeled "ok" or the rejection reason.
func ObserveAsset(rawURL, result string) {
	Init()
	assetsTotal.WithLabelValues(SanitizeSite(rawURL), result).Inc()
}

// ObserveSkippedPages adds to the skipped page counter.
func ObserveSkippedPages(storeID string, n int) {
	if n <= 0 {
		return
	}
	Init()
	skippedPagesTotal.WithLabelValues(storeID).Add(float64(n))
}

// ObservePolitenessDelay records the duration of a politeness wait.
func ObservePolitenessDelay(site string, duration time.Duration) {
	Init()
	politenessDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
