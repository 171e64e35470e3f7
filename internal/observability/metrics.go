package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects rules client and backend metrics.
type Metrics interface {
	RecordRequest(operation, status string, duration time.Duration)
	RecordTokenRefresh(outcome string)
	RecordRoute(route, status string)
}

// PrometheusMetrics implements Metrics with Prometheus collectors.
type PrometheusMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TokenRefreshes  *prometheus.CounterVec
	RouteRequests   *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them on reg.
// A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rules_client_requests_total",
				Help: "Total number of rules API calls by operation and outcome",
			},
			[]string{"operation", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rules_client_request_duration_seconds",
				Help:    "Duration of rules API calls, including the credential retry",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rules_client_token_refresh_total",
				Help: "Forced credential refreshes after a 401",
			},
			[]string{"outcome"},
		),

		RouteRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rules_mock_requests_total",
				Help: "Requests served by the development rules backend",
			},
			[]string{"route", "status"},
		),
	}
}

// RecordRequest records one client call
func (m *PrometheusMetrics) RecordRequest(operation, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTokenRefresh records a forced refresh outcome
func (m *PrometheusMetrics) RecordTokenRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordRoute records a request served by the backend
func (m *PrometheusMetrics) RecordRoute(route, status string) {
	m.RouteRequests.WithLabelValues(route, status).Inc()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordRequest(string, string, time.Duration) {}
func (NopMetrics) RecordTokenRefresh(string)                   {}
func (NopMetrics) RecordRoute(string, string)                  {}
