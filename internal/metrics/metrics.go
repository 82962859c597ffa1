// Package metrics provides Prometheus metrics collection for the reconciler.
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

var (
	// Global metrics - used by the application
	// Using atomic.Pointer for lock-free initialization checks on hot path metrics.
	requestsTotal        atomic.Pointer[prometheus.CounterVec]
	requestDuration      atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal    atomic.Pointer[prometheus.CounterVec]
	syncRunsTotal        atomic.Pointer[prometheus.CounterVec]
	endpointSyncsTotal   atomic.Pointer[prometheus.CounterVec]
	orphanRoutesDeleted  atomic.Pointer[prometheus.Counter]
	gatewayRequestsTotal atomic.Pointer[prometheus.CounterVec]
)

const namespace = "gateway_reconciler"

// Init initializes all Prometheus metrics and registers them with the provided registry.
// version labels the info gauge. This should be called once at application startup.
func Init(reg prometheus.Registerer, version string) error {
	// HTTP request counter: tracks all requests by method, path (normalized), and status code
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	// Request duration histogram: tracks latency distribution
	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets, // Default buckets: .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	// Auth failures counter: tracks failed authentication attempts
	authFailuresTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresTotalVec); err != nil {
		return fmt.Errorf("failed to register authFailuresTotal: %w", err)
	}

	// Info gauge: static metric with constant label values for build info
	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Reconciler version and build information",
		},
		[]string{"version"},
	)
	infoGaugeInstance := infoGaugeVec.WithLabelValues(version)
	if err := reg.Register(infoGaugeVec); err != nil {
		return fmt.Errorf("failed to register infoGauge: %w", err)
	}
	infoGaugeInstance.Set(1)

	// Full reconciliation runs by outcome: "success", "partial", "error"
	syncRunsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of full gateway reconciliation runs",
		},
		[]string{"result"},
	)
	if err := reg.Register(syncRunsVec); err != nil {
		return fmt.Errorf("failed to register syncRunsTotal: %w", err)
	}

	endpointSyncsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_syncs_total",
			Help:      "Total number of single endpoint syncs by result",
		},
		[]string{"result"},
	)
	if err := reg.Register(endpointSyncsVec); err != nil {
		return fmt.Errorf("failed to register endpointSyncsTotal: %w", err)
	}

	orphanCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_routes_deleted_total",
			Help:      "Total number of gateway routes removed because no endpoint claims them",
		},
	)
	if err := reg.Register(orphanCounter); err != nil {
		return fmt.Errorf("failed to register orphanRoutesDeleted: %w", err)
	}

	gatewayRequestsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway admin API calls by method and status",
		},
		[]string{"method", "status"},
	)
	if err := reg.Register(gatewayRequestsVec); err != nil {
		return fmt.Errorf("failed to register gatewayRequestsTotal: %w", err)
	}

	// Store metrics in atomics for lock-free access in record functions
	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	authFailuresTotal.Store(authFailuresTotalVec)
	syncRunsTotal.Store(syncRunsVec)
	endpointSyncsTotal.Store(endpointSyncsVec)
	orphanRoutesDeleted.Store(&orphanCounter)
	gatewayRequestsTotal.Store(gatewayRequestsVec)

	return nil
}

// RecordRequest increments the requests counter for the given method, path, and status code.
// The path should be normalized (e.g., "/api/endpoints/:id" instead of "/api/endpoints/123").
// Uses atomic.Pointer for lock-free nil checks; Prometheus operations themselves are thread-safe.
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request.
// Duration should be in seconds.
// Uses atomic.Pointer for lock-free nil checks; Prometheus operations themselves are thread-safe.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordAuthFailure increments the auth failures counter for the given reason.
// Common reasons: "missing_token", "invalid_token"
// Uses atomic.Pointer for lock-free nil checks; Prometheus operations themselves are thread-safe.
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordSyncRun increments the full sync counter for the given result.
func RecordSyncRun(result string) {
	if counter := syncRunsTotal.Load(); counter != nil {
		counter.WithLabelValues(result).Inc()
	}
}

// RecordEndpointSync increments the per-endpoint sync counter ("success" or "failure").
func RecordEndpointSync(result string) {
	if counter := endpointSyncsTotal.Load(); counter != nil {
		counter.WithLabelValues(result).Inc()
	}
}

// RecordOrphanDeleted counts one orphan route removed from the gateway.
func RecordOrphanDeleted() {
	if counter := orphanRoutesDeleted.Load(); counter != nil {
		(*counter).Inc()
	}
}

// RecordGatewayRequest counts one admin API call. status is the HTTP status code
// or "error" when the call failed before a response was received.
func RecordGatewayRequest(method, status string) {
	if counter := gatewayRequestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, status).Inc()
	}
}

// Handler returns an HTTP handler for Prometheus metrics in text format.
// This handler should be registered at /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GetMetricsText returns the Prometheus text-format output from a registry.
// This is useful for testing and debugging.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	// Use httptest to capture the handler output
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}

	return string(body), nil
}
