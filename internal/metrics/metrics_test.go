package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestInitSucceeds verifies that Init() registers metrics without error
func TestInitSucceeds(t *testing.T) {
	// Don't run in parallel since we're testing global state
	reg := prometheus.NewRegistry()

	if err := Init(reg, "test"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Record some data to make vector metrics appear in Gather output
	RecordRequest("GET", "/api/endpoints", "200")
	RecordRequestDuration("GET", "/api/endpoints", "200", 0.05)
	RecordAuthFailure("invalid_token")
	RecordSyncRun("success")
	RecordEndpointSync("failure")
	RecordOrphanDeleted()
	RecordGatewayRequest("PUT", "200")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	metricNames := make(map[string]bool)
	for _, mf := range metrics {
		metricNames[mf.GetName()] = true
	}

	expectedMetrics := []string{
		"gateway_reconciler_http_requests_total",
		"gateway_reconciler_http_request_duration_seconds",
		"gateway_reconciler_http_auth_failures_total",
		"gateway_reconciler_info",
		"gateway_reconciler_sync_runs_total",
		"gateway_reconciler_endpoint_syncs_total",
		"gateway_reconciler_orphan_routes_deleted_total",
		"gateway_reconciler_gateway_requests_total",
	}

	for _, name := range expectedMetrics {
		if !metricNames[name] {
			t.Errorf("expected metric %s not registered. Found: %v", name, metricNames)
		}
	}
}

// TestRecordFunctionsDoNotPanic verifies that record functions handle nil metrics gracefully
func TestRecordFunctionsDoNotPanic(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Record function panicked: %v", r)
		}
	}()

	RecordRequest("GET", "/test", "200")
	RecordRequestDuration("GET", "/test", "200", 0.1)
	RecordAuthFailure("test_reason")
	RecordSyncRun("error")
	RecordEndpointSync("success")
	RecordOrphanDeleted()
	RecordGatewayRequest("GET", "error")
}

func TestHandlerReturnsHTTPHandler(t *testing.T) {
	t.Parallel()

	if h := Handler(); h == nil {
		t.Fatal("Handler() returned nil")
	}
}

// TestSyncMetricsText checks the reconciliation counters in text output
func TestSyncMetricsText(t *testing.T) {
	// Don't run in parallel - calls Init() which modifies global state
	reg := prometheus.NewRegistry()
	if err := Init(reg, "test"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	RecordSyncRun("partial")
	RecordEndpointSync("success")
	RecordEndpointSync("success")
	RecordEndpointSync("failure")
	RecordOrphanDeleted()
	RecordOrphanDeleted()
	RecordGatewayRequest("DELETE", "404")

	output, err := GetMetricsText(reg)
	if err != nil {
		t.Fatalf("GetMetricsText() error: %v", err)
	}

	expected := []string{
		`gateway_reconciler_sync_runs_total{result="partial"} 1`,
		`gateway_reconciler_endpoint_syncs_total{result="success"} 2`,
		`gateway_reconciler_endpoint_syncs_total{result="failure"} 1`,
		`gateway_reconciler_orphan_routes_deleted_total 2`,
		`gateway_reconciler_gateway_requests_total{method="DELETE",status="404"} 1`,
	}
	for _, line := range expected {
		if !strings.Contains(output, line) {
			t.Errorf("expected %q in output:\n%s", line, output)
		}
	}
}

// TestGetMetricsTextWithInitializedRegistry checks GetMetricsText output format
func TestGetMetricsTextWithInitializedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, "test"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	RecordRequest("GET", "/api/endpoints", "200")
	RecordRequestDuration("GET", "/api/endpoints", "200", 0.05)

	output, err := GetMetricsText(reg)
	if err != nil {
		t.Errorf("GetMetricsText() unexpected error: %v", err)
	}

	if !strings.Contains(output, "# TYPE") {
		t.Error("Expected Prometheus format in output")
	}
	if !strings.Contains(output, "gateway_reconciler_http_requests_total") {
		t.Errorf("requests counter missing from output:\n%s", output)
	}
}

// TestInitRegistrationErrors tests that Init returns errors when metrics are already registered
func TestInitRegistrationErrors(t *testing.T) {
	reg := prometheus.NewRegistry()

	if err := Init(reg, "test"); err != nil {
		t.Fatalf("first Init failed: %v", err)
	}

	if err := Init(reg, "test"); err == nil {
		t.Fatal("expected error on duplicate registration, got nil")
	}
}

func TestInfoGaugeCarriesVersion(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, "2.4.1"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	output, err := GetMetricsText(reg)
	if err != nil {
		t.Fatalf("GetMetricsText() error: %v", err)
	}
	if !strings.Contains(output, `gateway_reconciler_info{version="2.4.1"} 1`) {
		t.Errorf("expected version label in output:\n%s", output)
	}
}
