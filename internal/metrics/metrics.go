// Package metrics exposes Prometheus counters for the HTTP surface and the
// credential paths. Collectors register on the default registry; promhttp
// serves them on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyward_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyward_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyward_auth_failures_total",
		Help: "Credential verification failures by credential kind",
	}, []string{"kind"})

	keyVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyward_key_verifications_total",
		Help: "API key verification outcomes",
	}, []string{"result"})

	quotaRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyward_quota_rejections_total",
		Help: "Requests rejected by quota, by window",
	}, []string{"window"})
)

// ObserveRequest records one completed HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordAuthFailure counts a rejected credential. kind is "session" or
// "api_key".
func RecordAuthFailure(kind string) {
	authFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordVerification counts an API key verification outcome.
func RecordVerification(result string) {
	keyVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordQuotaRejection counts a request turned away by quota.
func RecordQuotaRejection(window string) {
	quotaRejectionsTotal.WithLabelValues(window).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
