// Package observability provides structured logging and metrics for the
// rules client and the development backend.
//
// Loggers are zap-based and configured from ObservabilityConfig. Metrics are
// Prometheus collectors registered on a caller-supplied registerer, with a
// no-op implementation for callers that do not export metrics.
package observability
