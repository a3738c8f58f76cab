package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m := NewMetrics(false)
	m.ConnectAttempted(true)
	m.OpExecuted("succeeded", time.Second)

	var nilMetrics *Metrics
	nilMetrics.ConnectAttempted(false)
	nilMetrics.OpExecuted("failed", 0)

	if err := nilMetrics.Serve("127.0.0.1:0"); err == nil {
		t.Error("expected error serving disabled metrics")
	}
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(true)
	m.ConnectAttempted(true)
	m.ConnectAttempted(false)
	m.OpExecuted("succeeded", 120*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		`opsline_connects_total{outcome="succeeded"} 1`,
		`opsline_connects_total{outcome="failed"} 1`,
		`opsline_ops_executed_total{status="succeeded"} 1`,
		"opsline_op_duration_seconds_count 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
