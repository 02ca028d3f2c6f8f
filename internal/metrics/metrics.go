// Package metrics provides Prometheus metrics collection for the magic-link server.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "magiclinks"

// Collectors are swapped in by Init; Record* calls before Init are no-ops.
var (
	requestsTotal        atomic.Pointer[prometheus.CounterVec]
	requestDuration      atomic.Pointer[prometheus.HistogramVec]
	linksIssuedTotal     atomic.Pointer[prometheus.CounterVec]
	exchangesTotal       atomic.Pointer[prometheus.CounterVec]
	authDecisionsTotal   atomic.Pointer[prometheus.CounterVec]
	adminAuthFailedTotal atomic.Pointer[prometheus.CounterVec]
)

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// Init creates the collectors and registers them with reg.
// version labels the info gauge. Call it once at startup.
func Init(reg prometheus.Registerer, version string) error {
	requests := counterVec("http", "requests_total",
		"Total number of HTTP requests handled", "method", "path", "status")
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	issued := counterVec("", "links_issued_total",
		"Total number of magic links issued, by template", "template")
	exchanges := counterVec("", "exchanges_total",
		"Total number of requests seen by the redirect exchange, by outcome", "outcome")
	decisions := counterVec("", "auth_decisions_total",
		"Total number of authentication decisions, by strategy, result and reason", "strategy", "result", "reason")
	adminFailures := counterVec("admin", "auth_failures_total",
		"Total number of admin API authentication failures", "reason")
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "info",
		Help:      "Server version and build information",
	}, []string{"version"})

	for name, c := range map[string]prometheus.Collector{
		"requests":       requests,
		"duration":       duration,
		"links_issued":   issued,
		"exchanges":      exchanges,
		"auth_decisions": decisions,
		"admin_failures": adminFailures,
		"info":           info,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	info.WithLabelValues(version).Set(1)

	requestsTotal.Store(requests)
	requestDuration.Store(duration)
	linksIssuedTotal.Store(issued)
	exchangesTotal.Store(exchanges)
	authDecisionsTotal.Store(decisions)
	adminAuthFailedTotal.Store(adminFailures)

	return nil
}

// RecordRequest counts one request. path must already be normalized,
// e.g. "/login/:token" rather than "/login/AbCd1234".
func RecordRequest(method, path, status string) {
	if c := requestsTotal.Load(); c != nil {
		c.WithLabelValues(method, path, status).Inc()
	}
}

// RecordRequestDuration observes a request latency in seconds.
func RecordRequestDuration(method, path, status string, seconds float64) {
	if h := requestDuration.Load(); h != nil {
		h.WithLabelValues(method, path, status).Observe(seconds)
	}
}

// RecordLinkIssued counts a link issued through the named template.
func RecordLinkIssued(template string) {
	if c := linksIssuedTotal.Load(); c != nil {
		c.WithLabelValues(template).Inc()
	}
}

// RecordExchange counts an exchange outcome: "passthrough", "fallback" or "redirect".
func RecordExchange(outcome string) {
	if c := exchangesTotal.Load(); c != nil {
		c.WithLabelValues(outcome).Inc()
	}
}

// RecordAuthDecision counts one strategy decision.
func RecordAuthDecision(strategy, result, reason string) {
	if c := authDecisionsTotal.Load(); c != nil {
		c.WithLabelValues(strategy, result, reason).Inc()
	}
}

// RecordAdminAuthFailure counts a rejected admin request ("missing_key", "invalid_key").
func RecordAdminAuthFailure(reason string) {
	if c := adminAuthFailedTotal.Load(); c != nil {
		c.WithLabelValues(reason).Inc()
	}
}

// Handler serves the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GetMetricsText renders reg in Prometheus text format.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	w := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}
	return string(body), nil
}
