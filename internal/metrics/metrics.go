// Package metrics exposes Prometheus collectors for archive crawl runs.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page kinds used as the "kind" label on crawler_pages_total.
const (
	PageRoot  = "root"
	PageYear  = "year"
	PageMonth = "month"
)

var (
	crawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Total number of archive pages fetched, labeled by kind and status.",
		},
		[]string{"kind", "status"},
	)

	crawlerJobsDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_jobs_discovered_total",
			Help: "Total number of image jobs enqueued by discovery.",
		},
	)

	crawlerDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_downloads_total",
			Help: "Total number of image jobs processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	crawlerBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_bytes_total",
			Help: "Total number of image bytes written, labeled by site.",
		},
		[]string{"site"},
	)

	crawlerQueueOutstanding = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_queue_outstanding",
			Help: "Number of image jobs enqueued or in flight.",
		},
	)

	crawlerActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_active_workers",
			Help: "Number of workers currently processing a job.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of status server requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of status server latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

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

// ObservePage counts one archive page fetch.
func ObservePage(kind, status string) {
	crawlerPagesTotal.WithLabelValues(kind, status).Inc()
}

// ObserveJobDiscovered counts one enqueued image job.
func ObserveJobDiscovered() {
	crawlerJobsDiscoveredTotal.Inc()
}

// ObserveDownload counts one processed job and the bytes it wrote.
func ObserveDownload(sourceURL, outcome string, bytesWritten int64) {
	crawlerDownloadsTotal.WithLabelValues(outcome).Inc()
	if bytesWritten > 0 {
		crawlerBytesTotal.WithLabelValues(SanitizeSite(sourceURL)).Add(float64(bytesWritten))
	}
}

// SetQueueOutstanding records the queue's outstanding count.
func SetQueueOutstanding(n int) {
	crawlerQueueOutstanding.Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}

// ObserveHTTPRequest records one status server request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
